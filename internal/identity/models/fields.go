package models

import (
	"fmt"
	"sort"
	"strings"

	dErrors "carepay/pkg/domain-errors"
)

const (
	MaxExtractedFields     = 64
	MaxExtractedValueChars = 512
	maxExtractedKeyChars   = 64
)

// ExtractedFields are the key/value pairs read off a document by an upstream
// extraction step. Values are PHI and must never be logged or published.
type ExtractedFields map[string]string

// Normalize lowercases and trims keys and trims values. Empty values are dropped so
// that a blank field counts as missing. When several keys fold onto the same name,
// the key already in normal form wins, then the first in sorted order.
func (f ExtractedFields) Normalize() ExtractedFields {
	out := make(ExtractedFields, len(f))
	canonical := make(map[string]bool, len(f))
	for _, k := range f.Keys() {
		nk := normalizeKey(k)
		v := strings.TrimSpace(f[k])
		if nk == "" || v == "" || canonical[nk] {
			continue
		}
		if _, seen := out[nk]; seen && k != nk {
			continue
		}
		out[nk] = v
		canonical[nk] = k == nk
	}
	return out
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Validate enforces the upload limits. Keys that differ only in case or surrounding
// whitespace are rejected since they would name the same field.
func (f ExtractedFields) Validate() error {
	if len(f) > MaxExtractedFields {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("extracted_fields may contain at most %d keys", MaxExtractedFields))
	}
	seen := make(map[string]string, len(f))
	for _, k := range f.Keys() {
		if len(k) > maxExtractedKeyChars {
			return dErrors.New(dErrors.CodeValidation, "extracted_fields key too long")
		}
		nk := normalizeKey(k)
		if prev, dup := seen[nk]; dup {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("extracted_fields keys %q and %q name the same field", prev, k))
		}
		seen[nk] = k
		if len([]rune(f[k])) > MaxExtractedValueChars {
			// The key is safe to echo; the value is not.
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("extracted_fields.%s exceeds %d characters", k, MaxExtractedValueChars))
		}
	}
	return nil
}

// Lookup returns the first non-blank value among keys.
func (f ExtractedFields) Lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(f[k]); v != "" {
			return v, true
		}
	}
	return "", false
}

// Keys returns the field names in sorted order.
func (f ExtractedFields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
