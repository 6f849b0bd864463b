package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverviewWarmup rebuilds cached overview snapshots for known outlet scopes.
	TaskOverviewWarmup = "overview:warmup"
)

// DefaultWarmupRanges are the selectors warmed when a payload names none.
var DefaultWarmupRanges = []string{"today", "last_7_days", "this_month"}

// OverviewWarmupPayload describes which scopes and ranges to warm. Empty
// Scopes means every scope known to the scope lister.
type OverviewWarmupPayload struct {
	Scopes [][]string `json:"scopes,omitempty"`
	Ranges []string   `json:"ranges,omitempty"`
}

// NewOverviewWarmupTask constructs an Asynq task.
func NewOverviewWarmupTask(payload OverviewWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverviewWarmup, data), nil
}

// ParseScopes reads scopes written as "o1,o2;o3": semicolons separate scopes
// and commas separate outlets within a scope.
func ParseScopes(raw string) [][]string {
	scopes := make([][]string, 0)
	for _, group := range strings.Split(raw, ";") {
		ids := make([]string, 0)
		for _, id := range strings.Split(group, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			scopes = append(scopes, ids)
		}
	}
	return scopes
}
