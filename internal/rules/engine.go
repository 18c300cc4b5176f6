// Package rules provides the CEL-based quiz scoring engine.
package rules

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// Engine scores quiz answers against a compiled rule table.
// The compiled table is swapped atomically on reload.
type Engine struct {
	mu        sync.RWMutex
	env       *cel.Env
	table     *domain.RuleTable
	compiled  []*CompiledCategory
	questions domain.QuestionSet
}

// CompiledCategory holds the pre-compiled CEL programs of one category.
type CompiledCategory struct {
	Config  domain.CategoryRules
	Applies cel.Program
	Amount  cel.Program // nil when the category has no literal estimate
}

// NewEngine creates a scoring engine with no table loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("answers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("points", cel.IntType),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create CEL environment")
	}

	return &Engine{
		env:       env,
		questions: make(domain.QuestionSet),
	}, nil
}

// NewDefaultEngine creates an engine loaded with the embedded table.
func NewDefaultEngine() (*Engine, error) {
	e, err := NewEngine()
	if err != nil {
		return nil, err
	}
	table, err := DefaultTable()
	if err != nil {
		return nil, err
	}
	if err := e.Reload(table); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate compiles a table without mutating the loaded one.
func (e *Engine) Validate(table *domain.RuleTable) error {
	_, err := e.compileTable(table)
	return err
}

// Reload compiles table and replaces the loaded table. On error the
// previous table stays in effect.
func (e *Engine) Reload(table *domain.RuleTable) error {
	compiled, err := e.compileTable(table)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = table
	e.compiled = compiled
	e.questions = Questions(table)
	return nil
}

// Score returns exactly one CategoryScore per scored category.
// Categories absent from the table score zero and do not apply.
func (e *Engine) Score(answers domain.Answers) map[domain.Category]domain.CategoryScore {
	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()

	scores := make(map[domain.Category]domain.CategoryScore, len(domain.ScoredCategories()))
	for _, c := range domain.ScoredCategories() {
		scores[c] = domain.CategoryScore{Category: c}
	}
	for _, cc := range compiled {
		scores[cc.Config.Category] = scoreCategory(cc, answers)
	}
	return scores
}

// scoreCategory sums the points of every rule whose expected answer equals
// the given one, then evaluates the category predicate. Evaluation errors
// count as no evidence.
func scoreCategory(cc *CompiledCategory, answers domain.Answers) domain.CategoryScore {
	score := domain.CategoryScore{Category: cc.Config.Category}
	for _, r := range cc.Config.Rules {
		if v, ok := answers.Get(r.Question); ok && v == r.Answer {
			score.TotalPoints += r.Points
		}
	}

	m := map[string]string(answers)
	if m == nil {
		m = map[string]string{}
	}
	activation := map[string]any{
		"answers": m,
		"points":  int64(score.TotalPoints),
	}

	out, _, err := cc.Applies.Eval(activation)
	if err != nil {
		return score
	}
	applies, ok := out.(types.Bool)
	if !ok || !bool(applies) {
		return score
	}
	score.Applies = true

	if cc.Amount != nil {
		if val, _, err := cc.Amount.Eval(activation); err == nil {
			if amt, ok := toAmount(val); ok {
				score.EstimatedAmount = &amt
			}
		}
	}
	return score
}

// toAmount converts a CEL numeric value to a non-negative decimal.
func toAmount(val ref.Val) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch v := val.(type) {
	case types.Int:
		d = decimal.NewFromInt(int64(v))
	case types.Double:
		d = decimal.NewFromFloat(float64(v))
	default:
		return decimal.Zero, false
	}
	if d.IsNegative() {
		return decimal.Zero, true
	}
	return d, true
}

// Questions returns the question ids known to the loaded table.
func (e *Engine) Questions() domain.QuestionSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.questions
}

// Table returns the loaded rule table.
func (e *Engine) Table() *domain.RuleTable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table
}

// Version returns the loaded table version, or "" when none is loaded.
func (e *Engine) Version() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.table == nil {
		return ""
	}
	return e.table.Version
}

// RulesCount returns the number of point rules in the loaded table.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, cc := range e.compiled {
		n += len(cc.Config.Rules)
	}
	return n
}

// Close unloads the table.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = nil
	e.compiled = nil
	e.questions = make(domain.QuestionSet)
	return nil
}

func (e *Engine) compileTable(table *domain.RuleTable) ([]*CompiledCategory, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}

	compiled := make([]*CompiledCategory, 0, len(table.Categories))
	for _, cr := range table.Categories {
		cc, err := e.compileCategory(cr)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cc)
	}
	return compiled, nil
}

func (e *Engine) compileCategory(cfg domain.CategoryRules) (*CompiledCategory, error) {
	applies, err := e.compile(cfg.Category, "applies", cfg.Applies, cel.BoolType)
	if err != nil {
		return nil, err
	}

	cc := &CompiledCategory{Config: cfg, Applies: applies}
	if cfg.Amount != "" {
		cc.Amount, err = e.compile(cfg.Category, "amount", cfg.Amount, cel.IntType, cel.DoubleType)
		if err != nil {
			return nil, err
		}
	}
	return cc, nil
}

func (e *Engine) compile(category domain.Category, field, expr string, want ...*cel.Type) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, eris.Wrapf(issues.Err(), "failed to compile %s.%s", category, field)
	}

	outputType := ast.OutputType()
	typeOK := false
	for _, w := range want {
		if outputType.IsExactType(w) {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return nil, eris.Errorf("%s.%s: expression must return %v, got %s", category, field, want, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create program for %s.%s", category, field)
	}
	return program, nil
}
