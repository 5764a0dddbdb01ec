// Package transcript turns finalized audio clips into archived transcript
// turns.
//
// It has two parts:
//
//   - [Corrector]: fixes STT errors in domain-specific vocabulary. Project
//     names, jargon, and participant names are frequently misheard; the
//     corrector aligns them against the configured vocabulary using phonetic
//     matching. Each [Correction] records the substitution and its
//     confidence so callers can audit changes.
//
//   - [Pipeline]: the turn handler wired into the capture dispatcher. It
//     transcribes each clip, applies the corrector, archives the turn, and
//     fans the result out to the live feed and the semantic index.
//
// Both are safe for concurrent use.
package transcript

import "strings"

// Correction captures a single substitution made by the [Corrector].
type Correction struct {
	// Original is the text as produced by the STT provider.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the matcher's confidence in this substitution (0.0-1.0).
	Confidence float64
}

// Matcher resolves a word or phrase to a known vocabulary term based on
// pronunciation similarity. It is designed to be fast enough to run on every
// turn without network calls.
//
// When matched is false, corrected must equal word unchanged and confidence
// must be 0. Implementations must be safe for concurrent use.
type Matcher interface {
	Match(word string, terms []string) (corrected string, confidence float64, matched bool)
}

// Corrector rewrites transcript text so that words sounding like a
// configured vocabulary term use the term's canonical spelling.
//
// Corrector is safe for concurrent use; it is read-only after construction.
type Corrector struct {
	matcher  Matcher
	terms    []string
	maxWords int
}

// NewCorrector builds a Corrector over the given vocabulary terms.
// An empty vocabulary yields a no-op corrector.
func NewCorrector(matcher Matcher, terms []string) *Corrector {
	maxWords := 1
	for _, term := range terms {
		if n := len(strings.Fields(term)); n > maxWords {
			maxWords = n
		}
	}
	cp := make([]string, len(terms))
	copy(cp, terms)
	return &Corrector{matcher: matcher, terms: cp, maxWords: maxWords}
}

// Apply corrects text against the vocabulary and returns the corrected text
// plus an itemised record of every substitution. When no corrections are
// needed, the returned text equals the input and the slice is empty (non-nil).
//
// The algorithm:
//  1. Tokenise the text into whitespace-separated words.
//  2. At each token position, try n-gram windows from the maximum term word
//     count down to 1. Accept the longest matching window so multi-word
//     terms take precedence over partial single-word matches.
//  3. Append matched (or unmatched) tokens to the output and advance the
//     cursor by the number of tokens consumed.
func (c *Corrector) Apply(text string) (string, []Correction) {
	corrections := []Correction{}
	if c.matcher == nil || len(c.terms) == 0 {
		return text, corrections
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, corrections
	}

	var output []string

	i := 0
	for i < len(tokens) {
		// Clamp window size to remaining tokens.
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.Match(window, c.terms)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(term)...)
			if window != term {
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  term,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	if len(corrections) == 0 {
		return text, corrections
	}
	return strings.Join(output, " "), corrections
}
