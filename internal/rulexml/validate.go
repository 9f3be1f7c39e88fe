// Package rulexml checks generated rule text for structural soundness and
// unsafe embedded markup before it is persisted or rendered.
package rulexml

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError names the specific check that failed.
type ValidationError struct {
	Check  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule validation failed (%s): %s", e.Check, e.Reason)
}

var (
	reRuleTag     = regexp.MustCompile(`(?i)<rule[\s>]`)
	reIDAttr      = regexp.MustCompile(`(?i)\bid\s*=`)
	reLevelAttr   = regexp.MustCompile(`(?i)\blevel\s*=`)
	reDescription = regexp.MustCompile(`(?i)<description[\s>]`)

	// id="100-200" style composite identifiers. The upstream tooling used to
	// rewrite these to base+suffix; that can silently collide with an
	// unrelated rule, so they are rejected here instead.
	reCompositeID = regexp.MustCompile(`(?i)\bid\s*=\s*["']\d+[-_.]\d+["']`)
)

// Dangerous markup is rejected outright, never stripped. Each pattern is an
// independent failure with its own name so callers can report precisely.
var unsafePatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"script tag", regexp.MustCompile(`(?i)<script`)},
	{"event handler attribute", regexp.MustCompile(`(?i)\bon\w+\s*=`)},
	{"javascript scheme", regexp.MustCompile(`(?i)javascript:`)},
	{"iframe tag", regexp.MustCompile(`(?i)<iframe`)},
}

// Validate confirms the text is structurally a usable rule and free of
// unsafe markup, returning a trimmed copy suitable for storage.
func Validate(ruleXML string) (string, error) {
	trimmed := strings.TrimSpace(ruleXML)
	if trimmed == "" {
		return "", &ValidationError{Check: "empty", Reason: "rule XML cannot be empty"}
	}

	for _, p := range unsafePatterns {
		if p.re.MatchString(trimmed) {
			return "", &ValidationError{
				Check:  "unsafe content",
				Reason: "rule XML contains a " + p.name,
			}
		}
	}

	if reCompositeID.MatchString(trimmed) {
		return "", &ValidationError{
			Check:  "malformed id",
			Reason: "rule id must be a single integer",
		}
	}

	if !reRuleTag.MatchString(trimmed) {
		return "", &ValidationError{Check: "rule tag", Reason: "rule XML must contain a <rule> tag"}
	}
	if !reIDAttr.MatchString(trimmed) {
		return "", &ValidationError{Check: "id attribute", Reason: "rule XML must contain an id attribute"}
	}
	if !reLevelAttr.MatchString(trimmed) {
		return "", &ValidationError{Check: "level attribute", Reason: "rule XML must contain a level attribute"}
	}
	if !reDescription.MatchString(trimmed) {
		return "", &ValidationError{Check: "description", Reason: "rule XML must contain a description element"}
	}

	return trimmed, nil
}

var reRuleID = regexp.MustCompile(`(?i)\bid\s*=\s*["'](\d+)["']`)

// ExtractRuleID pulls the numeric identifier out of rule text, if present.
func ExtractRuleID(ruleXML string) (int, bool) {
	m := reRuleID.FindStringSubmatch(ruleXML)
	if m == nil {
		return 0, false
	}
	var id int
	if _, err := fmt.Sscanf(m[1], "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}
