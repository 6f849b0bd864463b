package overview

import "testing"

func TestNormalizePaymentStatus(t *testing.T) {
	cases := []struct {
		name    string
		inv     Invoice
		expects PaymentState
	}{
		{"explicit paid wins over cancelled", Invoice{Status: "cancelled", PaymentStatus: "paid"}, PaymentPaid},
		{"explicit unpaid wins over paid workflow", Invoice{Status: "paid", PaymentStatus: "unpaid"}, PaymentUnpaid},
		{"explicit status is case-insensitive", Invoice{Status: "draft", PaymentStatus: " PAID "}, PaymentPaid},
		{"workflow paid", Invoice{Status: "paid"}, PaymentPaid},
		{"workflow cancelled excluded", Invoice{Status: "cancelled"}, PaymentNone},
		{"workflow pending", Invoice{Status: "pending"}, PaymentUnpaid},
		{"workflow received", Invoice{Status: "received"}, PaymentUnpaid},
		{"workflow draft", Invoice{Status: "draft"}, PaymentUnpaid},
		{"unknown payment status falls back", Invoice{Status: "received", PaymentStatus: "partial"}, PaymentUnpaid},
		{"empty everything", Invoice{}, PaymentNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePaymentStatus(tc.inv); got != tc.expects {
				t.Fatalf("expected %q got %q", tc.expects, got)
			}
		})
	}
}

func TestNormalizePaymentStatusIdempotent(t *testing.T) {
	for _, status := range []string{"", "draft", "pending", "received", "paid", "cancelled", "weird"} {
		for _, payment := range []string{"", "paid", "unpaid", "refunded"} {
			inv := Invoice{Status: status, PaymentStatus: payment}
			first := NormalizePaymentStatus(inv)
			switch first {
			case PaymentPaid, PaymentUnpaid, PaymentNone:
			default:
				t.Fatalf("unexpected state %q", first)
			}
			inv.PaymentStatus = string(first)
			if second := NormalizePaymentStatus(inv); second != first {
				t.Fatalf("status=%q payment=%q: not idempotent %q then %q", status, payment, first, second)
			}
		}
	}
}
