package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/contactkeval/option-income-scanner/internal/logger"
)

// ErrInvalidGradeRule reports a grade expression that does not parse.
var ErrInvalidGradeRule = errors.New("invalid grade rule")

// FallbackGrade is assigned when no rule matches.
const FallbackGrade = "C"

// GradeRule assigns Grade when the boolean expression When holds. Expressions
// may reference roi_pct, total_return_pct, upside_pct, cushion_pct, pop and dte.
type GradeRule struct {
	Grade string `json:"grade" mapstructure:"grade" yaml:"grade"`
	When  string `json:"when" mapstructure:"when" yaml:"when"`
}

// DefaultGradeRules grade by total return: A above 5%, B above 0%.
var DefaultGradeRules = []GradeRule{
	{Grade: "A", When: "total_return_pct > 5"},
	{Grade: "B", When: "total_return_pct > 0"},
}

type compiledRule struct {
	grade string
	when  string
	expr  *govaluate.EvaluableExpression
}

// Grader applies grade rules in order; the first match wins.
type Grader struct {
	rules []compiledRule
}

// NewGrader compiles rules. An empty slice selects DefaultGradeRules.
func NewGrader(rules []GradeRule) (*Grader, error) {
	if len(rules) == 0 {
		rules = DefaultGradeRules
	}
	g := &Grader{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Grade == "" || strings.TrimSpace(r.When) == "" {
			return nil, fmt.Errorf("%w: rule %d needs a grade and a condition", ErrInvalidGradeRule, i)
		}
		expr, err := govaluate.NewEvaluableExpression(r.When)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidGradeRule, r.When, err)
		}
		g.rules = append(g.rules, compiledRule{grade: r.Grade, when: r.When, expr: expr})
	}
	return g, nil
}

// Grade returns the grade of r. A nil Grader uses DefaultGradeRules.
func (g *Grader) Grade(r ScanResult) string {
	if g == nil {
		g = defaultGrader
	}
	params := map[string]interface{}{
		"roi_pct":          r.ROIPercent,
		"total_return_pct": r.TotalReturnPercent,
		"upside_pct":       r.UpsidePercent,
		"cushion_pct":      r.CushionPercent,
		"pop":              r.ProbabilityOfProfit,
		"dte":              float64(r.DaysToExpiry),
	}
	for _, rule := range g.rules {
		out, err := rule.expr.Evaluate(params)
		if err != nil {
			logger.Debugf("event=grade_rule_error ticker=%s rule=%q err=%v", r.Ticker, rule.when, err)
			continue
		}
		if ok, isBool := out.(bool); isBool && ok {
			return rule.grade
		}
	}
	return FallbackGrade
}

var defaultGrader = mustGrader(DefaultGradeRules)

func mustGrader(rules []GradeRule) *Grader {
	g, err := NewGrader(rules)
	if err != nil {
		panic(err)
	}
	return g
}
