package validate

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

type Policy struct {
	RequiredTags        []string `yaml:"required_tags"`
	SupportedModalities []string `yaml:"supported_modalities"`
}

func DefaultPolicy() Policy {
	p, err := parsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded validation policy: %v", err))
	}
	return p
}

// LoadPolicyFile reads a policy from disk. An empty path yields the default policy.
func LoadPolicyFile(path string) (Policy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	p, err := parsePolicy(raw)
	if err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return p, nil
}

// WithModalities replaces the modality allow-list when mods is non-empty.
func (p Policy) WithModalities(mods []string) Policy {
	clean := normalizeList(mods, true)
	if len(clean) == 0 {
		return p
	}
	p.SupportedModalities = clean
	return p
}

func parsePolicy(raw []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, err
	}
	p.RequiredTags = normalizeList(p.RequiredTags, false)
	p.SupportedModalities = normalizeList(p.SupportedModalities, true)
	if len(p.SupportedModalities) == 0 {
		return Policy{}, fmt.Errorf("supported_modalities must not be empty")
	}
	return p, nil
}

func normalizeList(in []string, upper bool) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if upper {
			v = strings.ToUpper(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
