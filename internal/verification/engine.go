// Package verification scores extracted document fields against per-type rule
// tables. Evaluation is pure: the same input and day always produce the same result.
package verification

import (
	"fmt"
	"strings"
	"time"

	"carepay/internal/identity/models"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	time.RFC3339,
}

// Result is the engine output recorded on a document.
type Result struct {
	Status     models.VerificationStatus
	Confidence int
	Issues     []string
}

// Verification converts the result for storage at the given time.
func (r Result) Verification(at time.Time) models.Verification {
	return models.Verification{Status: r.Status, Confidence: r.Confidence, Issues: r.Issues, VerifiedAt: at}
}

// Engine evaluates documents against a rule table.
type Engine struct {
	rules Rules
}

type Option func(*Engine)

// WithRules replaces the rule sets for the types present in rules.
func WithRules(rules Rules) Option {
	return func(e *Engine) {
		for t, rs := range rules {
			e.rules[t] = rs.clone()
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns a copy of the active rule table.
func (e *Engine) Rules() Rules {
	return e.rules.clone()
}

// EvaluateDocument scores a stored document. A missing document is rejected with
// zero confidence.
func (e *Engine) EvaluateDocument(doc *models.IdentityDocument, now time.Time) Result {
	if doc == nil {
		return Result{Status: models.StatusRejected, Confidence: 0, Issues: []string{"document not found"}}
	}
	return e.Evaluate(doc.DocumentType, doc.ExtractedFields, now)
}

// Evaluate scores extracted fields for a document type. Missing or malformed
// fields lower the confidence; they never produce an error.
func (e *Engine) Evaluate(docType models.DocumentType, fields models.ExtractedFields, now time.Time) Result {
	fields = fields.Normalize()

	confidence := startingConfidence
	issues := []string{}

	if raw, ok := fields.Lookup(expirationField); ok {
		expires, err := parseDate(raw)
		if err != nil {
			issues = append(issues, "expiration_date is not a recognized date")
			confidence -= badExpirationPenalty
		} else if expires.Before(startOfDay(now)) {
			return Result{
				Status:     models.StatusExpired,
				Confidence: expiredConfidenceScore,
				Issues:     []string{fmt.Sprintf("document expired on %s", expires.Format("2006-01-02"))},
			}
		}
	}

	rs, ok := e.rules[docType]
	if !ok {
		issues = append(issues, fmt.Sprintf("no automated rule set for document type %q", docType))
		confidence -= fallbackPenalty
		if len(fields) == 0 {
			issues = append(issues, "no extracted fields present")
			confidence -= noFieldsPenalty
		}
	} else {
		for _, rule := range rs.Required {
			if _, present := fields.Lookup(rule.keys()...); present {
				continue
			}
			issues = append(issues, "missing required field: "+rule.Field)
			confidence -= rule.Penalty
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	return Result{Status: statusFor(confidence), Confidence: confidence, Issues: issues}
}

func statusFor(confidence int) models.VerificationStatus {
	switch {
	case confidence >= verifiedThreshold:
		return models.StatusVerified
	case confidence >= needsReviewThreshold:
		return models.StatusNeedsReview
	default:
		return models.StatusRejected
	}
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return startOfDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
