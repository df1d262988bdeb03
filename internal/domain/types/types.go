// Package types contains response shapes shared with the admin API.
package types

import "time"

// TargetStatus reports the health of one tracked target.
type TargetStatus struct {
	AccountID           string    `json:"account_id"`
	GameID              int64     `json:"app_id"`
	ContextID           int64     `json:"context_id"`
	LastCheckedAt       time.Time `json:"last_checked_at,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorKind       string    `json:"last_error_kind,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastNewItems        int       `json:"last_new_items"`
}

// CycleReport summarizes one check cycle.
type CycleReport struct {
	CycleID      string        `json:"cycle_id"`
	Targets      int           `json:"targets"`
	Failed       int           `json:"failed"`
	NewItems     int           `json:"new_items"`
	Notified     int           `json:"notified"`
	NotifyFailed int           `json:"notify_failed"`
	Duration     time.Duration `json:"duration"`
}
