// Package rules provides a YAML-based rules engine for expense categorization.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// MatchType defines how keywords are matched against text
type MatchType string

const (
	// MatchTypeContains requires a keyword to be a substring of the text
	MatchTypeContains MatchType = "contains"
	// MatchTypeExact requires a keyword to equal the whole text
	MatchTypeExact MatchType = "exact"
)

// Rule represents a single categorization rule.
//
// A rule matches when the text contains at least one keyword, at least one
// of Requires (if any), and none of Excludes. A rule with no keywords but
// with Requires matches on the gate alone, which is how catch-all rules such
// as "any Zelle payment is a contractor payment" are written.
type Rule struct {
	Name      string    `yaml:"name"`
	Keywords  []string  `yaml:"keywords"`
	Requires  []string  `yaml:"requires"`
	Excludes  []string  `yaml:"excludes"`
	MatchType MatchType `yaml:"match_type"`
	Priority  int       `yaml:"priority"`
	Category  string    `yaml:"category"`
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine performs rule matching on expense text
type Engine struct {
	rules []Rule // Sorted by priority (highest first)
}

// MatchResult contains the result of applying a rule
type MatchResult struct {
	Category domain.Category
	RuleName string // For debugging
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}
	return newEngine(ruleSet.Rules)
}

// NewEngineFromRules creates an engine from programmatically built rules.
// The same validation as NewEngine applies.
func NewEngineFromRules(rules []Rule) (*Engine, error) {
	return newEngine(rules)
}

func newEngine(input []Rule) (*Engine, error) {
	rules := make([]Rule, len(input))
	for i, rule := range input {
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
		rule.Keywords = lowerAll(rule.Keywords)
		rule.Requires = lowerAll(rule.Requires)
		rule.Excludes = lowerAll(rule.Excludes)
		if rule.MatchType == "" {
			rule.MatchType = MatchTypeContains
		}
		rules[i] = rule
	}

	// Use SliceStable to preserve YAML file order for rules with equal
	// priority, which keeps first-match-wins deterministic.
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	return &Engine{rules: rules}, nil
}

func validateRule(rule Rule) error {
	if !domain.ValidateCategory(domain.Category(rule.Category)) {
		return fmt.Errorf("invalid category %q", rule.Category)
	}
	if rule.Priority < 0 || rule.Priority > 999 {
		return fmt.Errorf("priority must be in [0,999], got %d", rule.Priority)
	}
	if rule.MatchType != "" && rule.MatchType != MatchTypeExact && rule.MatchType != MatchTypeContains {
		return fmt.Errorf("invalid match_type %q (must be 'exact' or 'contains')", rule.MatchType)
	}
	if len(rule.Keywords) == 0 && len(rule.Requires) == 0 {
		return fmt.Errorf("rule needs keywords or requires")
	}
	for _, list := range [][]string{rule.Keywords, rule.Requires, rule.Excludes} {
		for _, kw := range list {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("keywords cannot be empty")
			}
		}
	}
	return nil
}

// LoadEmbedded loads the embedded rules.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Load returns the rules at path, or the embedded rules when path is empty
func Load(path string) (*Engine, error) {
	if path == "" {
		return LoadEmbedded()
	}
	return LoadFromFile(path)
}

// Match applies rules to text and returns the first match.
// Rules are evaluated in priority order (highest first), then file order.
// Returns (nil, false) if no rules match.
func (e *Engine) Match(text string) (*MatchResult, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil, false
	}
	// Pad so keywords written with surrounding spaces (" ac ") match whole
	// words at either end of the text.
	padded := " " + normalized + " "

	for _, rule := range e.rules {
		if rule.matches(normalized, padded) {
			return &MatchResult{
				Category: domain.Category(rule.Category),
				RuleName: rule.Name,
			}, true
		}
	}

	return nil, false
}

// Categorize returns the category of the first matching rule, or fallback.
// An empty fallback means domain.CategoryOther. The function is total.
func (e *Engine) Categorize(text string, fallback domain.Category) domain.Category {
	if fallback == "" {
		fallback = domain.CategoryOther
	}
	if result, ok := e.Match(text); ok {
		return result.Category
	}
	return fallback
}

func (r *Rule) matches(normalized, padded string) bool {
	if len(r.Requires) > 0 && !containsAny(padded, r.Requires) {
		return false
	}
	if containsAny(padded, r.Excludes) {
		return false
	}
	if len(r.Keywords) == 0 {
		return true
	}
	if r.MatchType == MatchTypeExact {
		for _, kw := range r.Keywords {
			if normalized == strings.TrimSpace(kw) {
				return true
			}
		}
		return false
	}
	return containsAny(padded, r.Keywords)
}

// GetRules returns a deep copy of the rules in evaluation order.
func (e *Engine) GetRules() []Rule {
	result := make([]Rule, len(e.rules))
	for i, rule := range e.rules {
		rule.Keywords = append([]string(nil), rule.Keywords...)
		rule.Requires = append([]string(nil), rule.Requires...)
		rule.Excludes = append([]string(nil), rule.Excludes...)
		result[i] = rule
	}
	return result
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
