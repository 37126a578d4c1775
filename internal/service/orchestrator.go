// Package service contains the application services that coordinate agents,
// persistence and messaging: the pipeline orchestrator, classifier trainer
// and reporting views.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	apotel "github.com/apfabric/apfabric/internal/adapter/otel"
	"github.com/apfabric/apfabric/internal/agent/duplicate"
	"github.com/apfabric/apfabric/internal/agent/glcode"
	"github.com/apfabric/apfabric/internal/agent/intake"
	"github.com/apfabric/apfabric/internal/agent/matching"
	"github.com/apfabric/apfabric/internal/agent/trust"
	"github.com/apfabric/apfabric/internal/agent/variance"
	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/domain/runlog"
	"github.com/apfabric/apfabric/internal/memory"
	"github.com/apfabric/apfabric/internal/port/events"
	"github.com/apfabric/apfabric/internal/port/ledger"
)

// stageAgents names the agent responsible for each stage in audit entries.
var stageAgents = map[string]string{
	runlog.StageIntake:         "intake_agent",
	runlog.StageDuplicateCheck: "duplicate_agent",
	runlog.StagePOMatching:     "matching_agent",
	runlog.StageSESCheck:       "ses_agent",
	runlog.StageGLCoding:       "gl_agent",
	runlog.StageVarianceCheck:  "surcharge_agent",
	runlog.StageITC:            "itc_agent",
}

// Orchestrator drives an invoice through the decision pipeline and records
// every stage outcome.
type Orchestrator struct {
	cfg        config.Pipeline
	ledger     ledger.Ledger
	memory     *memory.Store
	intake     *intake.Agent
	matching   *matching.Agent
	gl         *glcode.Agent
	duplicates *duplicate.Agent
	trust      *trust.Agent
	variance   *variance.Agent
	publisher  events.Publisher
	metrics    *apotel.Metrics
	log        *slog.Logger
}

// NewOrchestrator wires the pipeline. Publisher and metrics may be nil.
func NewOrchestrator(
	cfg config.Pipeline,
	l ledger.Ledger,
	mem *memory.Store,
	intakeAgent *intake.Agent,
	matchingAgent *matching.Agent,
	glAgent *glcode.Agent,
	duplicateAgent *duplicate.Agent,
	trustAgent *trust.Agent,
	varianceAgent *variance.Agent,
	publisher events.Publisher,
	metrics *apotel.Metrics,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		ledger:     l,
		memory:     mem,
		intake:     intakeAgent,
		matching:   matchingAgent,
		gl:         glAgent,
		duplicates: duplicateAgent,
		trust:      trustAgent,
		variance:   varianceAgent,
		publisher:  publisher,
		metrics:    metrics,
		log:        log,
	}
}

// Process runs the full pipeline for one invoice. It always returns a
// processing log: stage failures are captured in the log rather than
// returned, and every run is persisted, audited and remembered.
func (o *Orchestrator) Process(ctx context.Context, inv *invoice.Invoice) *runlog.ProcessingLog {
	if inv.ID == "" {
		inv.ID = "INV-" + uuid.NewString()
	}
	if inv.DateReceived.IsZero() {
		inv.DateReceived = time.Now().UTC()
	}

	start := time.Now()
	plog := &runlog.ProcessingLog{
		InvoiceID:   inv.ID,
		StartTime:   start.UTC(),
		FinalStatus: invoice.StatusPending,
	}

	ctx, span := apotel.StartPipelineSpan(ctx, inv.ID, inv.VendorID)
	defer span.End()

	if err := o.runStages(ctx, inv, plog); err != nil {
		span.RecordError(err)
		plog.Error = err.Error()
		plog.FinalStatus = invoice.StatusError
		o.log.Error("pipeline failed", "invoice_id", inv.ID, "error", err)
	}

	plog.EndTime = time.Now().UTC()
	plog.ProcessingTimeMS = time.Since(start).Milliseconds()

	o.finish(ctx, inv, plog)
	o.observeRun(ctx, plog, time.Since(start))
	return plog
}

// ProcessBatch runs the pipeline over a batch with bounded concurrency.
// Logs are returned in input order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, invs []*invoice.Invoice) []*runlog.ProcessingLog {
	logs := make([]*runlog.ProcessingLog, len(invs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, inv := range invs {
		g.Go(func() error {
			logs[i] = o.Process(gctx, inv)
			return nil
		})
	}
	_ = g.Wait() // Process never returns an error through the group
	return logs
}

func (o *Orchestrator) runStages(ctx context.Context, inv *invoice.Invoice, plog *runlog.ProcessingLog) error {
	intakeRes, err := runStage(ctx, o, inv.ID, runlog.StageIntake, func(ctx context.Context) (*intake.Result, error) {
		return o.intake.Process(ctx, inv)
	})
	if err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	plog.Append(runlog.StageIntake, runlog.StatusCompleted, intakeRes)

	dupRes, err := runStage(ctx, o, inv.ID, runlog.StageDuplicateCheck, func(ctx context.Context) (*duplicate.Result, error) {
		return o.duplicates.Check(ctx, inv)
	})
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if dupRes.IsDuplicate {
		plog.Append(runlog.StageDuplicateCheck, runlog.StatusBlocked, dupRes)
		inv.IsDuplicate = true
		plog.FinalStatus = invoice.StatusDuplicateBlocked
		return nil
	}
	plog.Append(runlog.StageDuplicateCheck, runlog.StatusCompleted, dupRes)

	if inv.PORef() != "" {
		poRes, err := runStage(ctx, o, inv.ID, runlog.StagePOMatching, func(ctx context.Context) (*matching.POResult, error) {
			return o.matching.MatchPO(ctx, inv)
		})
		if err != nil {
			return fmt.Errorf("po matching: %w", err)
		}
		plog.Append(runlog.StagePOMatching, runlog.StatusCompleted, poRes)
	}

	if intakeRes.InvoiceType == intake.TypeService {
		sesRes, err := runStage(ctx, o, inv.ID, runlog.StageSESCheck, func(ctx context.Context) (*matching.SESResult, error) {
			return o.matching.CheckSES(ctx, inv)
		})
		if err != nil {
			return fmt.Errorf("ses check: %w", err)
		}
		plog.Append(runlog.StageSESCheck, runlog.StatusCompleted, sesRes)
	}

	glRes, _ := runStage(ctx, o, inv.ID, runlog.StageGLCoding, func(ctx context.Context) (glcode.Result, error) {
		return o.gl.Classify(ctx, inv.VendorName, inv.Description, inv.AmountValue()), nil
	})
	glStatus := runlog.StatusCompleted
	if glRes.Source == glcode.SourceDefault {
		glStatus = runlog.StatusDegraded
	}
	plog.Append(runlog.StageGLCoding, glStatus, glRes)
	inv.GLCode = glRes.GLCode
	if glRes.AutoPost && o.metrics != nil {
		o.metrics.AutoPosted.Add(ctx, 1)
	}

	if inv.Amount != nil {
		poAmount, err := o.poAmount(ctx, inv)
		if err != nil {
			return fmt.Errorf("variance check: %w", err)
		}
		varRes, err := runStage(ctx, o, inv.ID, runlog.StageVarianceCheck, func(ctx context.Context) (*variance.Result, error) {
			return o.variance.Evaluate(ctx, poAmount, *inv.Amount, inv.Description, inv.VendorID)
		})
		if err != nil {
			return fmt.Errorf("variance check: %w", err)
		}
		plog.Append(runlog.StageVarianceCheck, runlog.StatusCompleted, varRes)
	}

	trustRes, err := runStage(ctx, o, inv.ID, runlog.StageITC, func(ctx context.Context) (*trust.Result, error) {
		return o.trust.Evaluate(ctx, inv.VendorID, inv.AmountValue())
	})
	if err != nil {
		return fmt.Errorf("itc reconciliation: %w", err)
	}
	plog.Append(runlog.StageITC, runlog.StatusCompleted, trustRes)

	plog.FinalStatus = invoice.StatusProcessed
	return nil
}

// poAmount resolves the referenced order's total for variance comparison.
// A missing reference or unknown order compares against zero.
func (o *Orchestrator) poAmount(ctx context.Context, inv *invoice.Invoice) (float64, error) {
	if inv.PORef() == "" {
		return 0, nil
	}
	po, err := o.ledger.GetPurchaseOrder(ctx, inv.PORef())
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return po.TotalAmount, nil
}

// finish persists the outcome, appends audit entries, remembers the episode
// and publishes the run event. A persistence failure downgrades the run to
// error status.
func (o *Orchestrator) finish(ctx context.Context, inv *invoice.Invoice, plog *runlog.ProcessingLog) {
	inv.Status = plog.FinalStatus
	if err := o.ledger.SaveInvoice(ctx, inv); err != nil {
		o.log.Error("persist invoice failed", "invoice_id", inv.ID, "error", err)
		if plog.Error == "" {
			plog.Error = fmt.Sprintf("persist invoice: %v", err)
		}
		plog.FinalStatus = invoice.StatusError
	}

	now := time.Now().UTC()
	for _, stage := range plog.Stages {
		details, err := json.Marshal(stage.Result)
		if err != nil {
			details = []byte("{}")
		}
		entry := ledger.AuditEntry{
			InvoiceID: inv.ID,
			Action:    stage.Stage,
			Agent:     stageAgents[stage.Stage],
			Details:   string(details),
			Timestamp: now,
		}
		if err := o.ledger.AppendAuditLog(ctx, entry); err != nil {
			o.log.Warn("append audit log failed", "invoice_id", inv.ID, "stage", stage.Stage, "error", err)
		}
	}

	o.memory.AddEpisode(memory.Episode{
		Type:      "invoice_processed",
		InvoiceID: inv.ID,
		VendorID:  inv.VendorID,
		Outcome:   string(plog.FinalStatus),
	})

	if o.publisher != nil {
		if payload, err := json.Marshal(plog); err == nil {
			subject := "invoices." + string(plog.FinalStatus)
			if err := o.publisher.Publish(ctx, subject, payload); err != nil {
				o.log.Warn("publish run event failed", "invoice_id", inv.ID, "error", err)
			}
		}
	}
}

func (o *Orchestrator) observeRun(ctx context.Context, plog *runlog.ProcessingLog, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	switch plog.FinalStatus {
	case invoice.StatusProcessed:
		o.metrics.InvoicesProcessed.Add(ctx, 1)
	case invoice.StatusDuplicateBlocked:
		o.metrics.InvoicesBlocked.Add(ctx, 1)
	case invoice.StatusError:
		o.metrics.InvoicesErrored.Add(ctx, 1)
	}
	o.metrics.PipelineDuration.Record(ctx, elapsed.Seconds())
}

// runStage wraps one stage with a span and a duration metric.
func runStage[T any](ctx context.Context, o *Orchestrator, invoiceID, name string, fn func(context.Context) (T, error)) (T, error) {
	sctx, span := apotel.StartStageSpan(ctx, invoiceID, name)
	defer span.End()

	start := time.Now()
	res, err := fn(sctx)
	if o.metrics != nil {
		o.metrics.StageDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("stage", name)))
	}
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}
