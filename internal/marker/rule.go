package marker

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// SkipRule moves the marker from From on to To when From is reached while
// advancing and When evaluates true against the stage state. An empty When
// always holds.
type SkipRule struct {
	From string `json:"from"`
	To   string `json:"to"`
	When string `json:"when,omitempty"`
}

type compiledRule struct {
	SkipRule
	program *vm.Program
}

// compileRule validates r against seq and compiles its condition.
// Rules must point strictly forward.
func compileRule(seq *Sequence, r SkipRule) (compiledRule, error) {
	from, ok := seq.Index(r.From)
	if !ok {
		return compiledRule{}, &RuleError{From: r.From, To: r.To, Message: "unknown from marker"}
	}
	to, ok := seq.Index(r.To)
	if !ok {
		return compiledRule{}, &RuleError{From: r.From, To: r.To, Message: "unknown to marker"}
	}
	if to <= from {
		return compiledRule{}, &RuleError{From: r.From, To: r.To, Message: "rule must skip forward"}
	}

	cr := compiledRule{SkipRule: r}
	if r.When == "" {
		return cr, nil
	}
	program, err := expr.Compile(r.When, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return compiledRule{}, &RuleError{From: r.From, To: r.To, Message: "compile condition", Err: err}
	}
	cr.program = program
	return cr, nil
}

// holds evaluates the rule condition against env.
func (r compiledRule) holds(env map[string]any) (bool, error) {
	if r.program == nil {
		return true, nil
	}
	out, err := expr.Run(r.program, env)
	if err != nil {
		return false, &RuleError{From: r.From, To: r.To, Message: "evaluate condition", Err: err}
	}
	b, ok := out.(bool)
	if !ok {
		return false, &RuleError{From: r.From, To: r.To, Message: fmt.Sprintf("condition returned %T", out)}
	}
	return b, nil
}

// ValidateRules checks rules against seq without binding a machine.
func ValidateRules(seq *Sequence, rules ...SkipRule) error {
	for _, r := range rules {
		if _, err := compileRule(seq, r); err != nil {
			return err
		}
	}
	return nil
}
