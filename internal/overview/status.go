package overview

import "strings"

// PaymentState is the canonical payment state of an invoice.
type PaymentState string

// Payment states. PaymentNone excludes the record from payment totals.
const (
	PaymentPaid   PaymentState = "paid"
	PaymentUnpaid PaymentState = "unpaid"
	PaymentNone   PaymentState = ""
)

// Workflow statuses with special meaning. Any other non-empty status is an
// open, unpaid workflow.
const (
	WorkflowDraft     = "draft"
	WorkflowPaid      = "paid"
	WorkflowCancelled = "cancelled"
)

// NormalizePaymentStatus reconciles the payment status and the workflow
// status of an invoice. An explicit payment status always wins.
func NormalizePaymentStatus(inv Invoice) PaymentState {
	switch PaymentState(strings.ToLower(strings.TrimSpace(inv.PaymentStatus))) {
	case PaymentPaid:
		return PaymentPaid
	case PaymentUnpaid:
		return PaymentUnpaid
	}
	switch workflow := strings.ToLower(strings.TrimSpace(inv.Status)); workflow {
	case "":
		return PaymentNone
	case WorkflowPaid:
		return PaymentPaid
	case WorkflowCancelled:
		return PaymentNone
	default:
		return PaymentUnpaid
	}
}
