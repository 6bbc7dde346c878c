// Package rules categorizes new transactions from a YAML rules file.
//
// A rule matches on description or merchant text (substring or regular
// expression), an absolute amount range, direction, and account. Rules are
// tried highest priority first; the first match supplies the category.
// Within one priority, file order decides.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

// Direction restricts a rule to outflows or inflows.
type Direction string

const (
	DirectionAny     Direction = ""
	DirectionOutflow Direction = "outflow"
	DirectionInflow  Direction = "inflow"
)

// Rule is one entry of the rules file.
type Rule struct {
	Name      string           `yaml:"name"`
	Priority  int              `yaml:"priority,omitempty"`
	Pattern   string           `yaml:"pattern,omitempty"`
	Regex     bool             `yaml:"regex,omitempty"`
	Merchant  string           `yaml:"merchant,omitempty"`
	AmountMin *decimal.Decimal `yaml:"amount_min,omitempty"`
	AmountMax *decimal.Decimal `yaml:"amount_max,omitempty"`
	Direction Direction        `yaml:"direction,omitempty"`
	Account   string           `yaml:"account,omitempty"`
	Category  string           `yaml:"category"`
}

// File is the on-disk layout.
type File struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads a rules file. A missing file yields no rules.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	return f.Rules, nil
}

// Save writes rules to path.
func Save(path string, rules []Rule) error {
	if rules == nil {
		rules = []Rule{}
	}
	data, err := yaml.Marshal(File{Rules: rules})
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

type compiled struct {
	rule      Rule
	re        *regexp.Regexp
	pattern   string
	merchant  string
	accountID string
	category  string
}

// Engine applies compiled rules.
type Engine struct {
	rules []compiled
}

var _ reconcile.Categorizer = (*Engine)(nil)

// Compile validates rules against the directory and returns an Engine.
// Every rule must name a known category and, if it names an account, a
// known account.
func Compile(rules []Rule, dir reconcile.Resolver) (*Engine, error) {
	e := &Engine{}
	var errs []error
	for i, r := range rules {
		c, err := compile(i, r, dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.rules = append(e.rules, c)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].rule.Priority > e.rules[j].rule.Priority
	})
	return e, nil
}

func compile(i int, r Rule, dir reconcile.Resolver) (compiled, error) {
	name := r.Name
	if name == "" {
		name = fmt.Sprintf("#%d", i+1)
	}
	c := compiled{rule: r, merchant: strings.ToLower(strings.TrimSpace(r.Merchant))}

	if r.Pattern == "" && r.Merchant == "" && r.AmountMin == nil && r.AmountMax == nil && r.Account == "" {
		return c, fmt.Errorf("rule %s: needs at least one condition", name)
	}
	if r.Regex {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return c, fmt.Errorf("rule %s: bad pattern: %w", name, err)
		}
		c.re = re
	} else {
		c.pattern = strings.ToLower(strings.TrimSpace(r.Pattern))
	}
	switch r.Direction {
	case DirectionAny, DirectionOutflow, DirectionInflow:
	default:
		return c, fmt.Errorf("rule %s: unknown direction %q", name, r.Direction)
	}
	if r.AmountMin != nil && r.AmountMax != nil && r.AmountMin.GreaterThan(*r.AmountMax) {
		return c, fmt.Errorf("rule %s: amount_min above amount_max", name)
	}

	cat, ok := dir.ResolveCategory(reconcile.CategoryRef{Name: r.Category})
	if !ok {
		cat, ok = dir.ResolveCategory(reconcile.CategoryRef{ID: r.Category})
	}
	if !ok {
		return c, fmt.Errorf("rule %s: unknown category %q", name, r.Category)
	}
	c.category = cat.ID

	if r.Account != "" {
		acct, ok := dir.ResolveAccount(reconcile.AccountRef{Name: r.Account})
		if !ok {
			acct, ok = dir.ResolveAccount(reconcile.AccountRef{ID: r.Account})
		}
		if !ok {
			return c, fmt.Errorf("rule %s: unknown account %q", name, r.Account)
		}
		c.accountID = acct.ID
	}
	return c, nil
}

// Len returns the number of rules.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Categorize returns the category of the first matching rule.
func (e *Engine) Categorize(t model.Transaction) (string, bool) {
	c, ok := e.match(t)
	if !ok {
		return "", false
	}
	return c.category, true
}

func (e *Engine) match(t model.Transaction) (compiled, bool) {
	if e == nil {
		return compiled{}, false
	}
	for _, c := range e.rules {
		if c.matches(t) {
			return c, true
		}
	}
	return compiled{}, false
}

func (c compiled) matches(t model.Transaction) bool {
	if c.accountID != "" && t.AccountID != c.accountID {
		return false
	}
	switch c.rule.Direction {
	case DirectionOutflow:
		if !t.Amount.IsNegative() {
			return false
		}
	case DirectionInflow:
		if !t.Amount.IsPositive() {
			return false
		}
	}
	abs := t.Amount.Abs()
	if c.rule.AmountMin != nil && abs.LessThan(*c.rule.AmountMin) {
		return false
	}
	if c.rule.AmountMax != nil && abs.GreaterThan(*c.rule.AmountMax) {
		return false
	}
	if c.merchant != "" && !strings.Contains(strings.ToLower(t.MerchantName), c.merchant) {
		return false
	}
	switch {
	case c.re != nil:
		return c.re.MatchString(t.Description) || (t.MerchantName != "" && c.re.MatchString(t.MerchantName))
	case c.pattern != "":
		return strings.Contains(strings.ToLower(t.Description), c.pattern) ||
			strings.Contains(strings.ToLower(t.MerchantName), c.pattern)
	}
	return true
}
