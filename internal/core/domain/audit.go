package domain

import "time"

const ActorSystem = "system"

// AuditEvent, AIDecision and ComplianceRecord are append-only log entries.
// They reference documents by file name only. Confidences are fractions.
type AuditEvent struct {
	ID         string    `json:"id"`
	Document   string    `json:"document"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Details    string    `json:"details"`
	User       string    `json:"user,omitempty"`
}

type AIDecision struct {
	ID           string    `json:"id"`
	Document     string    `json:"document"`
	Model        string    `json:"model"`
	Confidence   float64   `json:"confidence"`
	Extracted    string    `json:"extracted"`
	Timestamp    time.Time `json:"timestamp"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
}

type ComplianceRecord struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	Compliant bool      `json:"compliant"`
	Notes     string    `json:"notes,omitempty"`
}
