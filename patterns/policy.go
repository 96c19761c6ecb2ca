// CLAUDE:SUMMARY Promotion policy thresholds and the automatic status transition function.
package patterns

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Policy holds the thresholds of the promotion state machine.
//
// A decoded policy starts from DefaultPolicy, so a key that is present
// wins even when it is 0 and an absent key keeps its default. In Go, start
// from DefaultPolicy to set a rate to 0; on a literal Policy a field <= 0
// reads as unset.
type Policy struct {
	// PromotionMinDistricts distinct job keys move a learning pattern to review.
	PromotionMinDistricts int `json:"promotion_min_districts" yaml:"promotion_min_districts"`

	// PromotionMinSuccessRate marks a reviewed pattern as a good approval candidate.
	PromotionMinSuccessRate float64 `json:"promotion_min_success_rate" yaml:"promotion_min_success_rate"`

	// FlagMaxSuccessRate: below this rate (with enough districts and
	// observations) a pattern is flagged.
	FlagMaxSuccessRate float64 `json:"flag_max_success_rate" yaml:"flag_max_success_rate"`

	// FlagMinObservations is the minimum match count before flagging.
	FlagMinObservations int `json:"flag_min_observations" yaml:"flag_min_observations"`

	// EffectiveMinDistricts and EffectiveMinSuccessRate admit unapproved
	// learning/review patterns into the effective set.
	EffectiveMinDistricts   int     `json:"effective_min_districts" yaml:"effective_min_districts"`
	EffectiveMinSuccessRate float64 `json:"effective_min_success_rate" yaml:"effective_min_success_rate"`

	// resolved is set once every field holds its final value.
	resolved bool
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		PromotionMinDistricts:   3,
		PromotionMinSuccessRate: 0.7,
		FlagMaxSuccessRate:      0.3,
		FlagMinObservations:     5,
		EffectiveMinDistricts:   2,
		EffectiveMinSuccessRate: 0.5,
		resolved:                true,
	}
}

// UnmarshalYAML decodes over DefaultPolicy.
func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	type plain Policy
	out := plain(DefaultPolicy())
	if err := value.Decode(&out); err != nil {
		return err
	}
	*p = Policy(out)
	p.resolved = true
	return nil
}

// UnmarshalJSON decodes over DefaultPolicy.
func (p *Policy) UnmarshalJSON(data []byte) error {
	type plain Policy
	out := plain(DefaultPolicy())
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*p = Policy(out)
	p.resolved = true
	return nil
}

func (p *Policy) defaults() {
	if p.resolved {
		return
	}
	p.resolved = true
	d := DefaultPolicy()
	if p.PromotionMinDistricts <= 0 {
		p.PromotionMinDistricts = d.PromotionMinDistricts
	}
	if p.PromotionMinSuccessRate <= 0 {
		p.PromotionMinSuccessRate = d.PromotionMinSuccessRate
	}
	if p.FlagMaxSuccessRate <= 0 {
		p.FlagMaxSuccessRate = d.FlagMaxSuccessRate
	}
	if p.FlagMinObservations <= 0 {
		p.FlagMinObservations = d.FlagMinObservations
	}
	if p.EffectiveMinDistricts <= 0 {
		p.EffectiveMinDistricts = d.EffectiveMinDistricts
	}
	if p.EffectiveMinSuccessRate <= 0 {
		p.EffectiveMinSuccessRate = d.EffectiveMinSuccessRate
	}
}

// Next returns the status p moves to after an observation. Approved and
// flagged are only left through human action; a reviewed pattern can still
// be flagged.
func (pol Policy) Next(p *Pattern) string {
	switch p.Status {
	case StatusApproved, StatusFlagged:
		return p.Status
	}
	enough := p.Districts() >= pol.PromotionMinDistricts
	if enough && p.Decided() && p.Matches >= pol.FlagMinObservations && p.SuccessRate < pol.FlagMaxSuccessRate {
		return StatusFlagged
	}
	if enough {
		return StatusReview
	}
	return p.Status
}

// ApprovalCandidate reports whether p is in review with a success rate
// that clears the promotion bar.
func (pol Policy) ApprovalCandidate(p *Pattern) bool {
	return p.Status == StatusReview && p.Districts() >= pol.PromotionMinDistricts &&
		p.Decided() && p.SuccessRate >= pol.PromotionMinSuccessRate
}

// trusted reports whether an unapproved pattern joins the effective set.
func (pol Policy) trusted(p *Pattern) bool {
	if p.Status != StatusLearning && p.Status != StatusReview {
		return false
	}
	return p.Districts() >= pol.EffectiveMinDistricts && p.Decided() && p.SuccessRate >= pol.EffectiveMinSuccessRate
}

// priority orders the review queue: review, flagged, learning.
func priority(status string) int {
	switch status {
	case StatusReview:
		return 0
	case StatusFlagged:
		return 1
	default:
		return 2
	}
}
