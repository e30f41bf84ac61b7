// Package risk holds the heuristic detectors used to spot prompt-injection
// style text in tool metadata and tool output.
package risk

import "regexp"

// Detector decides whether a piece of text is risky. Implementations must be
// safe for concurrent use.
type Detector interface {
	// Match reports whether text is risky and, if so, a short detail naming
	// the pattern that fired.
	Match(text string) (bool, string)
}

// Pattern is a single compiled rule.
type Pattern struct {
	Re     *regexp.Regexp
	Detail string
}

// DefaultPatterns are compiled once at startup, never during a request.
// All use (?i) so the text never needs lowercasing.
var DefaultPatterns = []Pattern{
	{regexp.MustCompile(`(?i)ignore\s+all\s+previous\s+instructions`), "override: ignore all previous instructions"},
	{regexp.MustCompile(`(?i)system\s+instruction`), "delimiter injection: system instruction"},
	{regexp.MustCompile(`(?i)exfiltrat`), "data exfiltration"},
}

// ExtendedPatterns adds override, delimiter and extraction phrasing on top of
// DefaultPatterns. Noisier on ordinary prose.
var ExtendedPatterns = append(append([]Pattern{}, DefaultPatterns...),
	Pattern{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above)\s+instructions`), "override: ignore previous instructions"},
	Pattern{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|guidelines)`), "override: disregard instructions"},
	Pattern{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions|context)`), "override: forget instructions"},
	Pattern{regexp.MustCompile(`(?i)\[SYSTEM\]`), "delimiter injection: [SYSTEM] tag"},
	Pattern{regexp.MustCompile(`(?i)<\|im_start\|>system`), "delimiter injection: ChatML system tag"},
	Pattern{regexp.MustCompile(`(?i)###\s*(SYSTEM|INSTRUCTION|NEW INSTRUCTION)`), "delimiter injection: markdown system header"},
	Pattern{regexp.MustCompile(`(?i)override\s+(system|safety|security)\s+(prompt|instructions|rules|policy)`), "explicit override attempt"},
	Pattern{regexp.MustCompile(`(?i)bypass\s+(the\s+)?(safety|security|content)\s+(filter|check|policy|rules)`), "explicit bypass attempt"},
	Pattern{regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system|initial|original|hidden)\s+(prompt|instructions|message)`), "system prompt extraction"},
)

// PatternDetector matches text against an ordered pattern table.
type PatternDetector struct {
	patterns []Pattern
}

// NewPatternDetector builds a detector over the given patterns.
func NewPatternDetector(patterns []Pattern) *PatternDetector {
	return &PatternDetector{patterns: patterns}
}

// NewDefaultDetector returns a detector over DefaultPatterns.
func NewDefaultDetector() *PatternDetector {
	return NewPatternDetector(DefaultPatterns)
}

// Match returns the first pattern that fires.
func (d *PatternDetector) Match(text string) (bool, string) {
	for _, p := range d.patterns {
		if p.Re.MatchString(text) {
			return true, p.Detail
		}
	}
	return false, ""
}

// Chain runs detectors in order; the first match wins.
type Chain []Detector

func (c Chain) Match(text string) (bool, string) {
	for _, d := range c {
		if ok, detail := d.Match(text); ok {
			return true, detail
		}
	}
	return false, ""
}

// ByName resolves a pattern table name used in configuration.
// Unknown names fall back to the default table.
func ByName(name string) *PatternDetector {
	if name == "extended" {
		return NewPatternDetector(ExtendedPatterns)
	}
	return NewDefaultDetector()
}
