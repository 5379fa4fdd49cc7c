package routing

import (
	"sort"
	"strings"
)

type Classifier struct {
	rules []AllowlistRule
}

func NewClassifier(rules []AllowlistRule) *Classifier {
	sorted := append([]AllowlistRule(nil), rules...)
	// longest prefix wins
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Classifier{rules: sorted}
}

func (c *Classifier) ClassifyPath(path string) RouteClass {
	for _, rule := range c.rules {
		if onBoundary(path, rule.Prefix) {
			return rule.Class
		}
	}
	return RouteClassOther
}

// IsJSON reports whether errors on path should be rendered as JSON envelopes.
func (c *Classifier) IsJSON(path string) bool {
	class := c.ClassifyPath(path)
	return class == RouteClassTenantAPI || class == RouteClassOps
}

// onBoundary matches /api against /api and /api/x but not /apix.
func onBoundary(path, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}
