package textsim

import (
	"math"
	"testing"
)

func TestVectorizerFitTransform(t *testing.T) {
	v := NewVectorizer()
	docs := []string{
		"cloud hosting services",
		"office rent payment",
		"cloud infrastructure subscription",
	}
	if err := v.Fit(docs); err != nil {
		t.Fatal(err)
	}
	if !v.Fitted() {
		t.Fatal("expected fitted vectorizer")
	}

	vec, err := v.Transform("cloud hosting")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != v.VocabSize() {
		t.Fatalf("vector length %d, vocab size %d", len(vec), v.VocabSize())
	}

	norm := 0.0
	for _, x := range vec {
		norm += x * x
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-9 {
		t.Errorf("expected unit norm, got %v", math.Sqrt(norm))
	}
}

func TestVectorizerTransformBeforeFit(t *testing.T) {
	v := NewVectorizer()
	if _, err := v.Transform("anything"); err != ErrNotFitted {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
}

func TestVectorizerMaxFeatures(t *testing.T) {
	v := NewVectorizer(WithMaxFeatures(3))
	docs := []string{
		"alpha beta gamma delta",
		"alpha beta gamma",
		"alpha beta",
		"alpha",
	}
	if err := v.Fit(docs); err != nil {
		t.Fatal(err)
	}
	if v.VocabSize() != 3 {
		t.Errorf("expected vocab size 3, got %d", v.VocabSize())
	}
}

func TestVectorizerBigrams(t *testing.T) {
	v := NewVectorizer(WithBigrams())
	if err := v.Fit([]string{"annual software license"}); err != nil {
		t.Fatal(err)
	}
	// 3 unigrams + 2 bigrams.
	if v.VocabSize() != 5 {
		t.Errorf("expected vocab size 5, got %d", v.VocabSize())
	}
}

func TestVectorizerEmptyCorpus(t *testing.T) {
	v := NewVectorizer()
	if err := v.Fit(nil); err == nil {
		t.Error("expected error for empty corpus")
	}
	if err := v.Fit([]string{"", "  "}); err == nil {
		t.Error("expected error for empty vocabulary")
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 0, 1}, []float64{1, 0, 1}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1}, []float64{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarDocsScoreHigher(t *testing.T) {
	v := NewVectorizer()
	docs := []string{
		"software cloud subscription hosting",
		"office rent lease payment",
		"travel flight hotel booking",
	}
	if err := v.Fit(docs); err != nil {
		t.Fatal(err)
	}

	q, _ := v.Transform("cloud software hosting")
	soft, _ := v.Transform(docs[0])
	rent, _ := v.Transform(docs[1])

	if Cosine(q, soft) <= Cosine(q, rent) {
		t.Errorf("expected software doc to outscore rent doc: %v vs %v",
			Cosine(q, soft), Cosine(q, rent))
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("abc", "abc"); got != 1 {
		t.Errorf("identical strings: got %v, want 1", got)
	}
	if got := Ratio("", ""); got != 1 {
		t.Errorf("empty strings: got %v, want 1", got)
	}
	if got := Ratio("abc", "xyz"); got != 0 {
		t.Errorf("disjoint strings: got %v, want 0", got)
	}
}

func TestRatioNearDuplicateDescriptions(t *testing.T) {
	a := "Invoice for March consulting services"
	b := "Invoice for March consulting service"
	if got := Ratio(a, b); got <= 0.85 {
		t.Errorf("near-duplicate descriptions scored %v, want > 0.85", got)
	}

	c := "Hardware procurement for data center"
	if got := Ratio(a, c); got >= 0.85 {
		t.Errorf("unrelated descriptions scored %v, want < 0.85", got)
	}
}
