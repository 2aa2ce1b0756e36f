// Package transcript post-processes raw speech-to-text output before it
// reaches the conversation layer. Recognition engines routinely garble
// product names and other business vocabulary ("flexi care" for
// "FlexiCare"); the corrector realigns such spans with a configured
// vocabulary using phonetic matching.
package transcript

import (
	"strings"

	"github.com/lokv010/voiceagent-sub001/internal/transcript/phonetic"
)

// Matcher aligns a transcribed phrase with a vocabulary term. When matched
// is false, corrected equals the input unchanged and confidence is 0.
// [phonetic.Matcher] is the production implementation.
type Matcher interface {
	Match(phrase string, terms []string) (corrected string, confidence float64, matched bool)
}

// Correction records one vocabulary substitution applied to a transcript.
type Correction struct {
	// Original is the span as the recognition engine produced it.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the match score that justified the substitution.
	Confidence float64
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m Matcher) Option {
	return func(c *Corrector) {
		if m != nil {
			c.matcher = m
		}
	}
}

// Corrector applies vocabulary corrections to transcribed text. It is safe
// for concurrent use; both the matcher and the vocabulary are read-only
// after construction.
type Corrector struct {
	matcher      Matcher
	vocabulary   []string
	maxTermWords int
}

// NewCorrector builds a corrector for the given vocabulary. An empty
// vocabulary yields a corrector that passes text through unchanged.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		matcher:      phonetic.New(),
		vocabulary:   vocabulary,
		maxTermWords: maxWordCount(vocabulary),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct scans the text for spans that align with vocabulary terms and
// substitutes them. At each token position, n-gram windows are tried from
// the widest vocabulary term down to a single word, so multi-word terms
// take precedence over partial single-word matches.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if len(c.vocabulary) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		// Clamp window size to remaining tokens.
		maxN := c.maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.Match(window, c.vocabulary)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(term)...)
			if !strings.EqualFold(window, term) {
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

	return strings.Join(output, " "), corrections
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any vocabulary term. Returns 1 when the vocabulary is empty.
func maxWordCount(terms []string) int {
	max := 1
	for _, t := range terms {
		if n := len(strings.Fields(t)); n > max {
			max = n
		}
	}
	return max
}
