package phonetic_test

import (
	"testing"

	"github.com/lokv010/voiceagent-sub001/internal/transcript/phonetic"
)

func TestMatcher_SingleWordMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	// "flexi care" is a two-word n-gram that should phonetically match
	// "FlexiCare": both share the leading phoneme cluster.
	terms := []string{"FlexiCare", "Zenvoice", "premium support plan"}

	corrected, conf, matched := m.Match("flexi care", terms)
	if !matched {
		t.Fatalf("Match(%q, terms): matched=false, want true", "flexi care")
	}
	if corrected != "FlexiCare" {
		t.Errorf("Match(%q): corrected=%q, want %q", "flexi care", corrected, "FlexiCare")
	}
	if conf < 0.7 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.7", "flexi care", conf)
	}
}

func TestMatcher_MultiWordTermMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	terms := []string{"premium support plan", "FlexiCare", "Zenvoice"}

	// "premium suport plan" should match the multi-word term.
	corrected, conf, matched := m.Match("premium suport plan", terms)
	if !matched {
		t.Fatalf("Match(%q, terms): matched=false, want true", "premium suport plan")
	}
	if corrected != "premium support plan" {
		t.Errorf("Match(%q): corrected=%q, want %q", "premium suport plan", corrected, "premium support plan")
	}
	if conf < 0.7 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.7", "premium suport plan", conf)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	terms := []string{"FlexiCare", "Zenvoice"}

	corrected, conf, matched := m.Match("hello", terms)
	if matched {
		t.Fatalf("Match(%q, terms): matched=true, want false", "hello")
	}
	if corrected != "hello" {
		t.Errorf("Match(%q): corrected=%q, want original word %q", "hello", corrected, "hello")
	}
	if conf != 0 {
		t.Errorf("Match(%q): confidence=%f, want 0", "hello", conf)
	}
}

func TestMatcher_CaseInsensitivity(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	terms := []string{"FlexiCare"}

	// Uppercased input should still match.
	corrected, _, matched := m.Match("FLEXICARE", terms)
	if !matched {
		t.Fatalf("Match(%q, terms): matched=false, want true", "FLEXICARE")
	}
	// Should return the original term casing.
	if corrected != "FlexiCare" {
		t.Errorf("Match(%q): corrected=%q, want %q", "FLEXICARE", corrected, "FlexiCare")
	}
}

func TestMatcher_ExactMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	terms := []string{"Zenvoice", "FlexiCare"}

	// Exact case-insensitive match should return high confidence.
	corrected, conf, matched := m.Match("zenvoice", terms)
	if !matched {
		t.Fatalf("Match(%q, terms): matched=false, want true", "zenvoice")
	}
	if corrected != "Zenvoice" {
		t.Errorf("Match(%q): corrected=%q, want %q", "zenvoice", corrected, "Zenvoice")
	}
	if conf < 0.9 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.9 for near-exact match", "zenvoice", conf)
	}
}

func TestMatcher_PhoneticThresholdFiltering(t *testing.T) {
	t.Parallel()

	// Set a very high phonetic threshold so near-matches are rejected.
	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	terms := []string{"FlexiCare"}

	_, _, matched := m.Match("flexi care", terms)
	if matched {
		t.Fatal("Match with threshold=0.99 should reject near-matches, got matched=true")
	}
}

func TestMatcher_EmptyTerms(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("flexicare", nil)
	if matched {
		t.Fatal("Match with nil terms should return matched=false")
	}
	if corrected != "flexicare" {
		t.Errorf("corrected=%q, want original", corrected)
	}
	if conf != 0 {
		t.Errorf("conf=%f, want 0", conf)
	}
}

func TestMatcher_EmptyPhrase(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("", []string{"FlexiCare"})
	if matched {
		t.Fatal("Match with empty phrase should return matched=false")
	}
	if corrected != "" {
		t.Errorf("corrected=%q, want empty string", corrected)
	}
	if conf != 0 {
		t.Errorf("conf=%f, want 0", conf)
	}
}

func TestWithOptions(t *testing.T) {
	t.Parallel()

	// Verify that options are applied without panicking.
	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.75),
		phonetic.WithFuzzyThreshold(0.90),
	)
	if m == nil {
		t.Fatal("New returned nil")
	}
}
