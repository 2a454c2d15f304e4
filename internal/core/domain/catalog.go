package domain

import "time"

type ConnectorError struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Severity  string    `json:"severity"`
}

// Connector is a named data source toggle. Toggling never talks to the
// source itself.
type Connector struct {
	ID                 string           `json:"id"`
	Type               string           `json:"type"`
	Name               string           `json:"name"`
	Enabled            bool             `json:"enabled"`
	LastSync           *time.Time       `json:"last_sync,omitempty"`
	DocumentsProcessed int              `json:"documents_processed"`
	Errors             []ConnectorError `json:"errors,omitempty"`
	Icon               string           `json:"icon,omitempty"`
	Description        string           `json:"description,omitempty"`
}


type Playbook struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Rule        string     `json:"rule"`
	Active      bool       `json:"active"`
	Runs        int        `json:"runs"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	SuccessRate float64    `json:"success_rate,omitempty"`
	Category    string     `json:"category,omitempty"`
	Triggers    []string   `json:"triggers,omitempty"`
	Actions     []string   `json:"actions,omitempty"`
}

// ProcessingStats aggregates the registry for the dashboard. Percentages are
// in [0,100].
type ProcessingStats struct {
	Total                 int     `json:"total"`
	Processed             int     `json:"processed"`
	Pending               int     `json:"pending"`
	AverageConfidence     float64 `json:"average_confidence"`
	ProcessingRate        float64 `json:"processing_rate"`
	HighConfidencePercent float64 `json:"high_confidence_percent"`
}
