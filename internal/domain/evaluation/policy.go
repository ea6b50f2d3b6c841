package evaluation

import (
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunable rules for saving and submitting items.
type Policy struct {
	MinScore               float64 `yaml:"minScore" json:"minScore"`
	MaxScore               float64 `yaml:"maxScore" json:"maxScore"`
	MaxContentLength       int     `yaml:"maxContentLength" json:"maxContentLength"`
	RequireContentOnSubmit bool    `yaml:"requireContentOnSubmit" json:"requireContentOnSubmit"`
}

func DefaultPolicy() Policy {
	return Policy{
		MinScore:               0,
		MaxScore:               100,
		MaxContentLength:       4000,
		RequireContentOnSubmit: true,
	}
}

// LoadPolicyFile reads a YAML policy. Keys missing from the file keep their defaults.
func LoadPolicyFile(path string) (Policy, error) {
	policy := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, err
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

func (p Policy) Validate() error {
	if p.MaxScore < p.MinScore {
		return fmt.Errorf("policy maxScore %.2f is below minScore %.2f", p.MaxScore, p.MinScore)
	}
	if p.MaxContentLength < 0 {
		return fmt.Errorf("policy maxContentLength must not be negative")
	}
	return nil
}

func (p Policy) checkItem(op string, content string, score *float64) error {
	if score != nil && (*score < p.MinScore || *score > p.MaxScore) {
		return invalid(op, "score must be between %g and %g", p.MinScore, p.MaxScore)
	}
	if p.MaxContentLength > 0 && utf8.RuneCountInString(content) > p.MaxContentLength {
		return invalid(op, "content exceeds %d characters", p.MaxContentLength)
	}
	return nil
}
