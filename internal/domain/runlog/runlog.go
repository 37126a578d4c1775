// Package runlog defines the structured processing log produced by one
// orchestration run. The log is the audit trail: every stage outcome,
// success or degraded default, is recorded and never dropped.
package runlog

import (
	"time"

	"github.com/apfabric/apfabric/internal/domain/invoice"
)

// Stage names, in pipeline order.
const (
	StageIntake         = "intake"
	StageDuplicateCheck = "duplicate_check"
	StagePOMatching     = "po_matching"
	StageSESCheck       = "ses_check"
	StageGLCoding       = "gl_coding"
	StageVarianceCheck  = "variance_check"
	StageITC            = "itc_reconciliation"
)

// Stage completion statuses.
const (
	StatusCompleted = "completed"
	StatusBlocked   = "blocked"
	StatusDegraded  = "degraded"
)

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Result any    `json:"result"`
}

// ProcessingLog is the stage-by-stage record of one orchestration run,
// returned to the caller and usable for audit display and KPI aggregation.
type ProcessingLog struct {
	InvoiceID        string         `json:"invoice_id"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	Stages           []StageResult  `json:"stages"`
	FinalStatus      invoice.Status `json:"final_status"`
	Error            string         `json:"error,omitempty"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
}

// Append records a stage outcome.
func (l *ProcessingLog) Append(stage, status string, result any) {
	l.Stages = append(l.Stages, StageResult{Stage: stage, Status: status, Result: result})
}

// StageFor returns the recorded result for a stage, or nil.
func (l *ProcessingLog) StageFor(stage string) *StageResult {
	for i := range l.Stages {
		if l.Stages[i].Stage == stage {
			return &l.Stages[i]
		}
	}
	return nil
}
