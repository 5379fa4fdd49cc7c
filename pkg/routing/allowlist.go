package routing

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type RouteClass string

const (
	RouteClassTenantAPI RouteClass = "tenant_api"
	RouteClassOps       RouteClass = "ops"
	RouteClassOther     RouteClass = "other"
)

type AllowlistRule struct {
	Prefix string     `yaml:"prefix"`
	Class  RouteClass `yaml:"class"`
}

// DefaultRules mirror the server entry of config/routing/allowlist.yaml.
func DefaultRules() []AllowlistRule {
	return []AllowlistRule{
		{Prefix: "/api", Class: RouteClassTenantAPI},
		{Prefix: "/ops", Class: RouteClassOps},
		{Prefix: "/health", Class: RouteClassOps},
		{Prefix: "/debug/prometheus", Class: RouteClassOps},
	}
}

func LoadAllowlist(path, entrypoint string) ([]AllowlistRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read routing allowlist")
	}
	return ParseAllowlist(raw, entrypoint)
}

// LoadAllowlistOrDefault returns DefaultRules when path is empty or the file cannot be used.
func LoadAllowlistOrDefault(path, entrypoint string) []AllowlistRule {
	if strings.TrimSpace(path) == "" {
		return DefaultRules()
	}
	rules, err := LoadAllowlist(path, entrypoint)
	if err != nil || len(rules) == 0 {
		return DefaultRules()
	}
	return rules
}

func ParseAllowlist(raw []byte, entrypoint string) ([]AllowlistRule, error) {
	var file struct {
		Version     int                        `yaml:"version"`
		Entrypoints map[string][]AllowlistRule `yaml:"entrypoints"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "invalid routing allowlist")
	}
	if file.Version != 1 {
		return nil, errors.Errorf("unsupported allowlist version: %d", file.Version)
	}
	rules, ok := file.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.Errorf("entrypoint %q not found in allowlist", entrypoint)
	}
	for i, rule := range rules {
		if !strings.HasPrefix(rule.Prefix, "/") {
			return nil, errors.Errorf("allowlist rule[%d]: prefix must start with '/': %q", i, rule.Prefix)
		}
		switch rule.Class {
		case RouteClassTenantAPI, RouteClassOps, RouteClassOther:
		default:
			return nil, errors.Errorf("allowlist rule[%d]: unknown class %q", i, rule.Class)
		}
	}
	return rules, nil
}
