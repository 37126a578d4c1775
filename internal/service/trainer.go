package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apfabric/apfabric/internal/agent/glcode"
	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/port/ledger"
)

// Trainer retrains the GL classifier from approved invoice history.
type Trainer struct {
	ledger     ledger.Ledger
	classifier *glcode.Classifier
	log        *slog.Logger
}

// NewTrainer creates the trainer.
func NewTrainer(l ledger.Ledger, clf *glcode.Classifier, log *slog.Logger) *Trainer {
	return &Trainer{ledger: l, classifier: clf, log: log}
}

// Train fits the classifier on coded history. Too little history is not an
// error: the classifier stays untrained and the cascade covers for it.
func (t *Trainer) Train(ctx context.Context) error {
	rows, err := t.ledger.ListCodedInvoices(ctx)
	if err != nil {
		return fmt.Errorf("load training history: %w", err)
	}

	samples := make([]glcode.Sample, 0, len(rows))
	for _, inv := range rows {
		name := inv.VendorName
		if name == "" {
			name = inv.VendorID
		}
		samples = append(samples, glcode.Sample{
			VendorName:  strings.ToUpper(name),
			Description: inv.Description,
			Amount:      inv.AmountValue(),
			GLCode:      inv.GLCode,
		})
	}

	if err := t.classifier.Fit(samples); err != nil {
		if errors.Is(err, domain.ErrUntrained) {
			t.log.Info("not enough history to train classifier", "samples", len(samples))
			return nil
		}
		return fmt.Errorf("fit classifier: %w", err)
	}

	acc, _ := t.classifier.Accuracy()
	t.log.Info("classifier trained", "samples", len(samples), "accuracy", acc)
	return nil
}

// TrainAsync runs Train in the background so startup and the train endpoint
// never block on model fitting.
func (t *Trainer) TrainAsync(ctx context.Context) {
	go func() {
		if err := t.Train(ctx); err != nil {
			t.log.Error("background training failed", "error", err)
		}
	}()
}

// Accuracy proxies the classifier's current accuracy estimate.
func (t *Trainer) Accuracy() (float64, bool) {
	return t.classifier.Accuracy()
}
