package model

import "time"

// UserExport is the export-ready analytics bundle for one user.
type UserExport struct {
	UserID          string           `json:"user_id"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Metrics         []SubjectMetrics `json:"metrics"`
	Progress        *ProgressData    `json:"progress,omitempty"`
	Trends          *TrendAnalysis   `json:"trends,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
}
