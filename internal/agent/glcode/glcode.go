// Package glcode assigns general-ledger accounts to invoices through a
// four-layer cascade: static vendor rules, a trained classifier, semantic
// concept search, and an external reasoning service as last resort.
package glcode

import (
	"context"
	"log/slog"
	"strings"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/memory"
	"github.com/apfabric/apfabric/internal/port/reasoner"
)

// Result is the outcome of one classification.
type Result struct {
	GLCode     string  `json:"gl_code"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	AutoPost   bool    `json:"auto_post"`
}

// Cascade layer names, recorded in Result.Source.
const (
	SourceStaticRule     = "static_rule"
	SourceMLClassifier   = "ml_classifier"
	SourceSemanticSearch = "semantic_search"
	SourceLLMReasoning   = "llm_reasoning"
	SourceDefault        = "default"
)

// Agent runs the GL coding cascade.
type Agent struct {
	cfg        config.GL
	memory     *memory.Store
	classifier *Classifier
	reasoner   reasoner.Reasoner
	log        *slog.Logger
}

// New creates the agent. The reasoner may be nil, in which case the cascade
// terminates at the default account.
func New(cfg config.GL, mem *memory.Store, clf *Classifier, r reasoner.Reasoner, log *slog.Logger) *Agent {
	return &Agent{cfg: cfg, memory: mem, classifier: clf, reasoner: r, log: log}
}

// Classifier exposes the underlying model for training.
func (a *Agent) Classifier() *Classifier { return a.classifier }

// Classify resolves a GL account for the invoice. It never returns an error:
// every layer degrades to the next, ending at the default account.
func (a *Agent) Classify(ctx context.Context, vendorName, description string, amount float64) Result {
	upper := strings.ToUpper(vendorName)
	for _, rule := range vendorRules {
		if strings.Contains(upper, rule.Pattern) {
			return Result{GLCode: rule.GLCode, Confidence: 1.0, Source: SourceStaticRule, AutoPost: true}
		}
	}

	// A sub-threshold model prediction stays alive as a candidate: later
	// layers must beat its confidence to displace it.
	var candidate *Result
	if a.classifier != nil && a.classifier.Trained() {
		gl, conf, err := a.classifier.Predict(vendorName, description, amount)
		if err == nil {
			res := Result{
				GLCode:     gl,
				Confidence: conf,
				Source:     SourceMLClassifier,
				AutoPost:   conf >= a.cfg.AutoPostThreshold,
			}
			if conf >= a.cfg.AutoPostThreshold {
				return res
			}
			candidate = &res
		} else {
			a.log.Warn("classifier prediction failed", "error", err)
		}
	}

	matches, err := a.memory.SemanticSearch(description, 3)
	if err == nil && len(matches) > 0 && matches[0].Similarity >= a.cfg.SemanticThreshold {
		sem := Result{
			GLCode:     MapConceptToGL(matches[0].Concept),
			Confidence: matches[0].Similarity,
			Source:     SourceSemanticSearch,
			AutoPost:   matches[0].Similarity >= a.cfg.SemanticAutoPost,
		}
		if candidate != nil && candidate.Confidence > sem.Confidence {
			return *candidate
		}
		return sem
	}

	if candidate != nil {
		return *candidate
	}

	if a.reasoner != nil {
		sug, err := a.reasoner.SuggestGL(ctx, vendorName, description)
		if err == nil {
			return Result{
				GLCode:     sug.GLCode,
				Confidence: sug.Confidence,
				Source:     SourceLLMReasoning,
				AutoPost:   sug.Confidence >= a.cfg.AutoPostThreshold,
			}
		}
		a.log.Warn("reasoning service unavailable, using default account", "error", err)
	}

	return Result{GLCode: DefaultGLCode, Confidence: 0.5, Source: SourceDefault, AutoPost: false}
}
