// Package verification decides which quota pays for a requested
// verification type and what a request for that type must carry.
package verification

import (
	"bytes"
	"encoding/json"
	"fmt"

	id "verigate/pkg/domain"
	dErrors "verigate/pkg/domain-errors"
	strs "verigate/pkg/platform/strings"
)

// Rule is the ledger policy for one requested type.
type Rule struct {
	Type id.VerificationType
	// Chain is the quota priority; the first type with a usable Order pays.
	Chain          []id.VerificationType
	RequireConsent bool
}

// Policy maps requested types to rules. Types without an entry pay from
// their own quota only.
type Policy struct {
	rules map[id.VerificationType]Rule
}

// NewPolicy builds a policy from the configured fallback chains and the
// types that need consent.
func NewPolicy(fallbacks map[string][]string, consentRequired []string) (*Policy, error) {
	p := &Policy{rules: make(map[id.VerificationType]Rule, len(fallbacks))}

	for rawType, rawChain := range fallbacks {
		t, err := id.ParseVerificationType(rawType)
		if err != nil {
			return nil, fmt.Errorf("fallback key %q: %w", rawType, err)
		}
		chain, err := id.ParseVerificationTypes(strs.DedupeAndTrimLower(rawChain))
		if err != nil {
			return nil, fmt.Errorf("fallback chain for %q: %w", rawType, err)
		}
		if len(chain) == 0 {
			return nil, fmt.Errorf("fallback chain for %q is empty", rawType)
		}
		p.rules[t] = Rule{Type: t, Chain: chain}
	}

	consentTypes, err := id.ParseVerificationTypes(strs.DedupeAndTrimLower(consentRequired))
	if err != nil {
		return nil, fmt.Errorf("consent required types: %w", err)
	}
	for _, t := range consentTypes {
		rule := p.Rule(t)
		rule.RequireConsent = true
		p.rules[t] = rule
	}
	return p, nil
}

// Rule returns the rule for t, defaulting to a chain of t alone.
func (p *Policy) Rule(t id.VerificationType) Rule {
	if rule, ok := p.rules[t]; ok {
		return rule
	}
	return Rule{Type: t, Chain: []id.VerificationType{t}}
}

// Chain returns the quota priority for t.
func (p *Policy) Chain(t id.VerificationType) []id.VerificationType {
	return p.Rule(t).Chain
}

// CheckPayload rejects a request the provider must not see. It runs before
// any quota lookup.
func (r Rule) CheckPayload(payload json.RawMessage) error {
	if !r.RequireConsent {
		return nil
	}
	var body struct {
		Consent any `json:"consent"`
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &body) != nil {
		return dErrors.New(dErrors.CodeBadRequest, "consent is required")
	}
	if !consentGiven(body.Consent) {
		return dErrors.New(dErrors.CodeBadRequest, "consent is required")
	}
	return nil
}

// consentGiven accepts true or a non-empty string such as "Y".
func consentGiven(v any) bool {
	switch c := v.(type) {
	case bool:
		return c
	case string:
		return c != "" && c != "N" && c != "n"
	default:
		return false
	}
}
