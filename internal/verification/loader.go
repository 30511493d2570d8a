package verification

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"carepay/internal/identity/models"
)

type rulesFile struct {
	DocumentTypes map[string]RuleSet `yaml:"document_types"`
}

// LoadRules reads rule overrides from a YAML file:
//
//	document_types:
//	  passport:
//	    required:
//	      - field: passport_number
//	        penalty: 25
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes and validates a rule override document.
func ParseRules(raw []byte) (Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	out := make(Rules, len(file.DocumentTypes))
	for name, rs := range file.DocumentTypes {
		docType, err := models.ParseDocumentType(name)
		if err != nil {
			return nil, fmt.Errorf("rules for %q: %w", name, err)
		}
		if docType == models.DocumentTypeOther {
			return nil, fmt.Errorf("rules for %q: the generic type cannot carry a rule set", name)
		}
		if len(rs.Required) == 0 {
			return nil, fmt.Errorf("rules for %q: at least one required field", name)
		}
		for i, rule := range rs.Required {
			rule.Field = strings.ToLower(strings.TrimSpace(rule.Field))
			if rule.Field == "" {
				return nil, fmt.Errorf("rules for %q: field %d has no name", name, i)
			}
			if rule.Penalty < 0 || rule.Penalty > 100 {
				return nil, fmt.Errorf("rules for %q: penalty for %s must be between 0 and 100", name, rule.Field)
			}
			for j, alias := range rule.Aliases {
				rule.Aliases[j] = strings.ToLower(strings.TrimSpace(alias))
			}
			rs.Required[i] = rule
		}
		out[docType] = rs
	}
	return out, nil
}
