package models

import "time"

// AuditResult is the outcome recorded for one authorization decision.
type AuditResult string

const (
	ResultSuccess AuditResult = "success"
	ResultFailure AuditResult = "failure"
)

// AnonymousActor is recorded when no identity was established.
const AnonymousActor = "anonymous"

// AuditEntry is an immutable record of one authorization decision.
type AuditEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	ClientIP  string      `json:"client_ip"`
	Username  string      `json:"username"`
	Action    string      `json:"action"`
	Resource  string      `json:"resource"`
	Result    AuditResult `json:"result"`
	Details   string      `json:"details"`
}
