package security

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
)

// maxRuleExpressionLength bounds custom rule expressions.
const maxRuleExpressionLength = 1024

// ruleCostBudget is the CEL runtime cost limit per evaluation, preventing
// cost-exhaustion through pathological expressions.
const ruleCostBudget = 100_000

// ErrExpressionTooLong is returned when a rule expression exceeds the limit.
var ErrExpressionTooLong = errors.New("rule expression exceeds maximum length")

// Rule is one custom scoring rule: when the CEL expression evaluates to true
// for a request, Score is added and the flag rule_<name> is recorded.
type Rule struct {
	// Name identifies the rule in flags and logs.
	Name string
	// Expression is a CEL expression over path, method, client_ip,
	// user_agent (strings) and headers (map of string to string).
	Expression string
	// Score is the amount added to the threat score when the rule matches.
	Score float64
}

// compiledRule pairs a rule with its compiled CEL program.
type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// RuleSet evaluates operator-defined CEL rules against each request.
// Rules are compiled once at load time; evaluation is read-only.
type RuleSet struct {
	rules  []compiledRule
	logger *slog.Logger
}

// newRuleEnvironment creates the CEL environment custom rules evaluate in.
func newRuleEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("client_ip", cel.StringType),
		cel.Variable("user_agent", cel.StringType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// CompileRules compiles the given rules into a RuleSet.
// A rule that fails to compile fails the whole load so misconfigurations
// surface at startup rather than silently scoring nothing.
func CompileRules(rules []Rule, logger *slog.Logger) (*RuleSet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env, err := newRuleEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if len(r.Expression) > maxRuleExpressionLength {
			return nil, fmt.Errorf("rule %q: %w", r.Name, ErrExpressionTooLong)
		}
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: compilation failed: %w", r.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %q: expression must evaluate to bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.EvalOptions(cel.OptOptimize),
			cel.CostLimit(ruleCostBudget),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %q: program creation failed: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: r, prg: prg})
	}

	return &RuleSet{rules: compiled, logger: logger}, nil
}

// Evaluate runs every rule against ctx, returning the total added score and
// flagging matches as rule_<name>. Evaluation errors are logged and skipped:
// a broken rule must not block or score requests.
func (rs *RuleSet) Evaluate(ctx *Context) float64 {
	if rs == nil || len(rs.rules) == 0 {
		return 0
	}

	input := map[string]any{
		"path":       ctx.Path,
		"method":     ctx.Method,
		"client_ip":  ctx.ClientIP,
		"user_agent": ctx.UserAgent,
		"headers":    ctx.Headers,
	}

	var score float64
	for _, cr := range rs.rules {
		out, _, err := cr.prg.Eval(input)
		if err != nil {
			rs.logger.Debug("custom rule evaluation failed",
				"rule", cr.rule.Name,
				"error", err,
			)
			continue
		}
		matched, ok := out.Value().(bool)
		if !ok || !matched {
			continue
		}
		score += cr.rule.Score
		ctx.AddFlag("rule_" + cr.rule.Name)
	}
	return score
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}
