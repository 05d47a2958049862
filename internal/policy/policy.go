// Package policy holds the tunable limits and thresholds of an interview:
// how confidence is weighted, when an overwrite counts as a conflict, how many
// turns a session may take, and which media sources a turn may reference.
package policy

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines the scoring and budget parameters for an interview session.
type Policy struct {
	// Confidence formula weights, normalized at scoring time.
	RequiredWeight float64 `json:"required_weight"`
	SignalWeight   float64 `json:"signal_weight"`

	// ConflictThreshold is the session confidence at or above which
	// overwriting a differing field value raises a high-severity warning.
	ConflictThreshold float64 `json:"conflict_threshold"`

	// CompleteConfidence gates the derived ready-to-commit phase.
	CompleteConfidence float64 `json:"complete_confidence"`

	// MaxTurns bounds user turns per session; 0 disables the check.
	MaxTurns int `json:"max_turns"`

	// AllowedMediaGlobs restricts image URLs supplied to chat.
	AllowedMediaGlobs []string `json:"allowed_media_globs"`
}

// DefaultPolicy provides workable defaults for interactive cataloging.
var DefaultPolicy = Policy{
	RequiredWeight:     0.7,
	SignalWeight:       0.3,
	ConflictThreshold:  0.6,
	CompleteConfidence: 0.5,
	MaxTurns:           50,
	AllowedMediaGlobs:  []string{"https://**"},
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
	Fatal   bool
}

// CheckTurns verifies the session is within its turn budget.
func (p Policy) CheckTurns(userTurns int) *Violation {
	if p.MaxTurns > 0 && userTurns > p.MaxTurns {
		return &Violation{Rule: "max_turns", Message: "turn budget exceeded", Fatal: true}
	}
	return nil
}

// CheckMediaURL verifies an image URL matches an allowed glob. An empty URL
// is always fine; a session without glob patterns accepts anything.
func (p Policy) CheckMediaURL(url string) *Violation {
	if url == "" || len(p.AllowedMediaGlobs) == 0 {
		return nil
	}

	for _, pattern := range p.AllowedMediaGlobs {
		match, err := doublestar.Match(pattern, url)
		if err == nil && match {
			return nil
		}
	}
	return &Violation{
		Rule:    "allowed_media_globs",
		Message: "media source not allowed: " + redact(url),
		Fatal:   true,
	}
}

// redact trims query strings out of violation messages.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
