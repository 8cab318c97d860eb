package domain

import (
	"encoding/json"
	"fmt"
)

// Policy is a named, versioned rule set. Verification consults it but never
// mutates it.
type Policy struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Version  int             `json:"version"`
	Rules    json.RawMessage `json:"rules"`
	IsActive bool            `json:"isActive"`
}

// PolicyRules is the decoded form of Policy.Rules.
type PolicyRules struct {
	MinSecurityLevel     SecurityLevel `json:"minSecurityLevel,omitempty"`
	RejectSoftwareKeys   bool          `json:"rejectSoftwareKeys,omitempty"`
	RequireDeviceBinding bool          `json:"requireDeviceBinding,omitempty"`
}

// DecodeRules parses the rule document. A nil policy or empty document yields
// the zero rules.
func (p *Policy) DecodeRules() (PolicyRules, error) {
	var rules PolicyRules
	if p == nil || len(p.Rules) == 0 {
		return rules, nil
	}
	if err := json.Unmarshal(p.Rules, &rules); err != nil {
		return PolicyRules{}, fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, p.Name, err)
	}
	return rules, nil
}
