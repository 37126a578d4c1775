// Package memory holds the shared knowledge the agents consult during a
// pipeline run: a semantic concept catalog searched by TF-IDF similarity,
// an append-only episode log of past runs, and named workflow definitions.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apfabric/apfabric/internal/textsim"
)

// conceptDocuments is the expense and control-concept catalog. Each document
// is a bag of terms describing one accounts-payable concept.
var conceptDocuments = map[string]string{
	"software_expense":    "Software licenses subscriptions cloud services SaaS Microsoft Google Adobe AWS",
	"travel_expense":      "Travel hotel flight taxi uber ola railway booking accommodation",
	"hardware_expense":    "Hardware laptop computer server printer equipment IT",
	"rent_expense":        "Rent lease property office building monthly",
	"utility_expense":     "Utility electricity water gas internet phone bill",
	"marketing_expense":   "Marketing advertisement promotion branding event",
	"maintenance_expense": "Maintenance repair AMC service equipment",
	"legal_expense":       "Legal advocate attorney fees consultation",
	"consulting_expense":  "Consulting advisory strategy management",
	"logistics_expense":   "Logistics shipping freight courier delivery",
	"po_matching":         "Purchase order PO line item quantity price match 3-way",
	"ses_missing":         "Service Entry Sheet SES missing operations approval",
	"duplicate_invoice":   "Duplicate fraud suspicious same invoice number",
	"price_variance":      "Price variance surcharge freight dynamic",
	"itc_reconciliation":  "ITC GST tax GSTR input tax credit",
}

// ConceptMatch is one semantic search hit.
type ConceptMatch struct {
	Concept    string  `json:"concept"`
	Document   string  `json:"document"`
	Similarity float64 `json:"similarity"`
}

// Episode records the outcome of one pipeline run for a vendor.
type Episode struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	InvoiceID string    `json:"invoice_id"`
	VendorID  string    `json:"vendor_id"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Workflow names the ordered steps and responsible agents for one pipeline
// segment.
type Workflow struct {
	Steps  []string `json:"steps"`
	Agents []string `json:"agents"`
}

// Store is the in-process memory shared by the agents. Safe for concurrent
// use.
type Store struct {
	vectorizer *textsim.Vectorizer
	concepts   []string // sorted, fixes ranking order for similarity ties
	vectors    map[string][]float64
	workflows  map[string]Workflow

	mu       sync.RWMutex
	episodes []Episode
}

// New builds the store and fits the concept index.
func New() (*Store, error) {
	s := &Store{
		vectorizer: textsim.NewVectorizer(textsim.WithMaxFeatures(500), textsim.WithBigrams()),
		vectors:    make(map[string][]float64, len(conceptDocuments)),
		workflows:  defaultWorkflows(),
	}

	docs := make([]string, 0, len(conceptDocuments))
	for concept, doc := range conceptDocuments {
		s.concepts = append(s.concepts, concept)
		docs = append(docs, doc)
	}
	sort.Strings(s.concepts)

	if err := s.vectorizer.Fit(docs); err != nil {
		return nil, fmt.Errorf("fit concept index: %w", err)
	}
	for _, concept := range s.concepts {
		vec, err := s.vectorizer.Transform(conceptDocuments[concept])
		if err != nil {
			return nil, fmt.Errorf("index concept %s: %w", concept, err)
		}
		s.vectors[concept] = vec
	}
	return s, nil
}

// SemanticSearch ranks concepts by cosine similarity to the query and returns
// the top k.
func (s *Store) SemanticSearch(query string, topK int) ([]ConceptMatch, error) {
	queryVec, err := s.vectorizer.Transform(query)
	if err != nil {
		return nil, err
	}

	matches := make([]ConceptMatch, 0, len(s.concepts))
	for _, concept := range s.concepts {
		matches = append(matches, ConceptMatch{
			Concept:    concept,
			Document:   conceptDocuments[concept],
			Similarity: textsim.Cosine(queryVec, s.vectors[concept]),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// AddEpisode appends an episode, assigning its ID and timestamp if unset.
func (s *Store) AddEpisode(e Episode) Episode {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes = append(s.episodes, e)
	return e
}

// VendorHistory returns every recorded episode for the vendor, oldest first.
func (s *Store) VendorHistory(vendorID string) []Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Episode
	for _, e := range s.episodes {
		if e.VendorID == vendorID {
			out = append(out, e)
		}
	}
	return out
}

// EpisodeCount returns the total number of recorded episodes.
func (s *Store) EpisodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

// Workflow looks up a named workflow definition.
func (s *Store) Workflow(name string) (Workflow, bool) {
	wf, ok := s.workflows[name]
	return wf, ok
}

func defaultWorkflows() map[string]Workflow {
	return map[string]Workflow{
		"intake_workflow": {
			Steps:  []string{"receive", "extract", "classify", "route"},
			Agents: []string{"intake_agent"},
		},
		"matching_workflow": {
			Steps:  []string{"po_lookup", "fuzzy_match", "semantic_reconcile", "approve"},
			Agents: []string{"matching_agent", "ses_agent"},
		},
		"gl_coding_workflow": {
			Steps:  []string{"extract_features", "predict", "threshold_check", "post_or_escalate"},
			Agents: []string{"gl_agent", "threshold_agent"},
		},
		"duplicate_workflow": {
			Steps:  []string{"hash_invoice", "vector_project", "density_check", "flag"},
			Agents: []string{"duplicate_agent"},
		},
		"itc_workflow": {
			Steps:  []string{"vendor_score", "calculate_trust", "split_payment", "monitor_gstr"},
			Agents: []string{"itc_agent"},
		},
	}
}
