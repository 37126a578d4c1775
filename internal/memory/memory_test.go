package memory

import (
	"testing"
)

func TestSemanticSearchRanksRelevantConcept(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		want  string
	}{
		{"Microsoft Azure cloud subscription", "software_expense"},
		{"flight and hotel booking for conference", "travel_expense"},
		{"monthly office rent lease", "rent_expense"},
		{"electricity bill for warehouse", "utility_expense"},
		{"freight courier delivery charges", "logistics_expense"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			matches, err := s.SemanticSearch(tt.query, 3)
			if err != nil {
				t.Fatal(err)
			}
			if len(matches) != 3 {
				t.Fatalf("expected 3 matches, got %d", len(matches))
			}
			if matches[0].Concept != tt.want {
				t.Errorf("top concept = %s (%.3f), want %s",
					matches[0].Concept, matches[0].Similarity, tt.want)
			}
			if matches[0].Similarity < matches[1].Similarity {
				t.Error("matches not sorted by similarity")
			}
		})
	}
}

func TestSemanticSearchTopKBounds(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}

	matches, err := s.SemanticSearch("anything", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != len(conceptDocuments) {
		t.Errorf("topK=0 should return all concepts, got %d", len(matches))
	}

	matches, _ = s.SemanticSearch("anything", 100)
	if len(matches) != len(conceptDocuments) {
		t.Errorf("oversized topK should cap at catalog size, got %d", len(matches))
	}
}

func TestEpisodes(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}

	e := s.AddEpisode(Episode{Type: "invoice_processing", VendorID: "V001", Outcome: "processed"})
	if e.ID == "" {
		t.Error("expected assigned episode ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected assigned timestamp")
	}

	s.AddEpisode(Episode{Type: "invoice_processing", VendorID: "V002", Outcome: "error"})
	s.AddEpisode(Episode{Type: "invoice_processing", VendorID: "V001", Outcome: "duplicate_blocked"})

	hist := s.VendorHistory("V001")
	if len(hist) != 2 {
		t.Fatalf("expected 2 episodes for V001, got %d", len(hist))
	}
	if hist[0].Outcome != "processed" || hist[1].Outcome != "duplicate_blocked" {
		t.Errorf("episodes out of order: %+v", hist)
	}
	if s.EpisodeCount() != 3 {
		t.Errorf("expected 3 total episodes, got %d", s.EpisodeCount())
	}
}

func TestWorkflowLookup(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}

	wf, ok := s.Workflow("gl_coding_workflow")
	if !ok {
		t.Fatal("expected gl_coding_workflow")
	}
	if len(wf.Steps) != 4 || wf.Steps[0] != "extract_features" {
		t.Errorf("unexpected steps: %v", wf.Steps)
	}

	if _, ok := s.Workflow("nope"); ok {
		t.Error("expected missing workflow to report false")
	}
}
