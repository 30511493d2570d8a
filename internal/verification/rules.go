package verification

import (
	"carepay/internal/identity/models"
)

// Fallback scoring for document types without a rule set.
const (
	fallbackPenalty        = 25
	noFieldsPenalty        = 35
	badExpirationPenalty   = 20
	expirationField        = "expiration_date"
	verifiedThreshold      = 80
	needsReviewThreshold   = 50
	startingConfidence     = 100
	expiredConfidenceScore = 100
)

// FieldRule is one required field. Aliases are alternative keys an extraction step
// may use for the same value; any of them satisfies the rule.
type FieldRule struct {
	Field   string   `yaml:"field"`
	Aliases []string `yaml:"aliases,omitempty"`
	Penalty int      `yaml:"penalty"`
}

func (r FieldRule) keys() []string {
	return append([]string{r.Field}, r.Aliases...)
}

// RuleSet is the checklist for one document type, applied in order.
type RuleSet struct {
	Required []FieldRule `yaml:"required"`
}

// Rules maps document types to their rule sets. Types absent from the table use the
// generic fallback check.
type Rules map[models.DocumentType]RuleSet

// DefaultRules returns the built-in rule table.
func DefaultRules() Rules {
	license := RuleSet{Required: []FieldRule{
		{Field: "document_number", Penalty: 30},
		{Field: "expiration_date", Penalty: 20},
		{Field: "issuing_state", Penalty: 10},
	}}
	return Rules{
		models.DocumentTypeDriversLicense: license,
		models.DocumentTypeStateID:        license.clone(),
		models.DocumentTypePassport: {Required: []FieldRule{
			{Field: "passport_number", Penalty: 20},
			{Field: "expiration_date", Penalty: 20},
			{Field: "issuing_country", Penalty: 10},
		}},
		models.DocumentTypeEBTCardFront: {Required: []FieldRule{
			{Field: "card_number", Aliases: []string{"account_number"}, Penalty: 30},
			{Field: "issuing_state", Penalty: 10},
		}},
		models.DocumentTypeEBTCardBack: {Required: []FieldRule{
			{Field: "card_number", Aliases: []string{"account_number"}, Penalty: 30},
		}},
		models.DocumentTypeMedicaidCard: {Required: []FieldRule{
			{Field: "member_id", Aliases: []string{"medicaid_id", "account_number"}, Penalty: 30},
			{Field: "issuing_state", Penalty: 10},
		}},
	}
}

func (rs RuleSet) clone() RuleSet {
	out := RuleSet{Required: make([]FieldRule, len(rs.Required))}
	for i, r := range rs.Required {
		out.Required[i] = FieldRule{Field: r.Field, Aliases: append([]string(nil), r.Aliases...), Penalty: r.Penalty}
	}
	return out
}

func (r Rules) clone() Rules {
	out := make(Rules, len(r))
	for k, v := range r {
		out[k] = v.clone()
	}
	return out
}
