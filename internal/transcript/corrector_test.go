package transcript

import (
	"strings"
	"testing"
)

// stubMatcher maps lowercase windows to canonical terms, ignoring the term
// list. It makes corrector behaviour deterministic without depending on the
// phonetic algorithm.
type stubMatcher struct {
	mapping map[string]string
}

func (s stubMatcher) Match(word string, _ []string) (string, float64, bool) {
	if term, ok := s.mapping[strings.ToLower(word)]; ok {
		return term, 0.9, true
	}
	return word, 0, false
}

func TestCorrector_SingleWordSubstitution(t *testing.T) {
	t.Parallel()
	c := NewCorrector(
		stubMatcher{mapping: map[string]string{"recardo": "Ricardo"}},
		[]string{"Ricardo"},
	)

	text, corrections := c.Apply("ask recardo about the deploy")
	if text != "ask Ricardo about the deploy" {
		t.Errorf("text = %q", text)
	}
	if len(corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(corrections))
	}
	if corrections[0].Original != "recardo" || corrections[0].Corrected != "Ricardo" {
		t.Errorf("correction = %+v", corrections[0])
	}
	if corrections[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", corrections[0].Confidence)
	}
}

func TestCorrector_MultiWordWindowTakesPrecedence(t *testing.T) {
	t.Parallel()
	c := NewCorrector(
		stubMatcher{mapping: map[string]string{
			"poll request": "pull request",
			"poll":         "poll", // a single-word match must not win over the bigram
		}},
		[]string{"pull request"},
	)

	text, corrections := c.Apply("open a poll request today")
	if text != "open a pull request today" {
		t.Errorf("text = %q", text)
	}
	if len(corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(corrections))
	}
	if corrections[0].Original != "poll request" {
		t.Errorf("Original = %q, want the two-word window", corrections[0].Original)
	}
}

func TestCorrector_CanonicalSpellingNotRecorded(t *testing.T) {
	t.Parallel()
	c := NewCorrector(
		stubMatcher{mapping: map[string]string{"ricardo": "Ricardo", "Ricardo": "Ricardo"}},
		[]string{"Ricardo"},
	)

	text, corrections := c.Apply("Ricardo already said so")
	if text != "Ricardo already said so" {
		t.Errorf("text = %q", text)
	}
	if len(corrections) != 0 {
		t.Errorf("got %d corrections for canonical spelling, want 0", len(corrections))
	}
}

func TestCorrector_NoMatchesLeavesTextUntouched(t *testing.T) {
	t.Parallel()
	c := NewCorrector(stubMatcher{}, []string{"Ricardo"})

	input := "nothing  to   fix here"
	text, corrections := c.Apply(input)
	if text != input {
		t.Errorf("text = %q, want input preserved verbatim (including spacing)", text)
	}
	if corrections == nil {
		t.Fatal("corrections should be non-nil")
	}
	if len(corrections) != 0 {
		t.Errorf("got %d corrections, want 0", len(corrections))
	}
}

func TestCorrector_EmptyVocabularyIsNoop(t *testing.T) {
	t.Parallel()
	c := NewCorrector(stubMatcher{mapping: map[string]string{"x": "y"}}, nil)

	text, corrections := c.Apply("x marks the spot")
	if text != "x marks the spot" {
		t.Errorf("text = %q", text)
	}
	if len(corrections) != 0 {
		t.Errorf("got %d corrections, want 0", len(corrections))
	}
}

func TestCorrector_EmptyText(t *testing.T) {
	t.Parallel()
	c := NewCorrector(stubMatcher{}, []string{"Ricardo"})

	text, corrections := c.Apply("")
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
	if len(corrections) != 0 {
		t.Errorf("got %d corrections, want 0", len(corrections))
	}
}
