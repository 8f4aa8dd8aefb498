// Package condition evaluates step guards.
//
// Guards are CEL expressions. Every job variable is bound as a top-level string
// identifier so `runtime < "3.4"` compares the bound value lexicographically.
// The full variable set is available as the `vars` map, the job environment as
// `env` and the current branch as `branch`.
// Use semver(a, b) or semverLess(a, b) for version aware comparisons.
package condition

import (
	"cmp"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/raffis/matrun/internal/errdefs"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reserved = map[string]struct{}{
	"vars": {}, "env": {}, "branch": {},
	"true": {}, "false": {}, "null": {}, "in": {},
	"as": {}, "break": {}, "const": {}, "continue": {}, "else": {},
	"for": {}, "function": {}, "if": {}, "import": {}, "let": {},
	"loop": {}, "package": {}, "namespace": {}, "return": {}, "var": {},
	"void": {}, "while": {},
}

// Scope holds the values an expression is evaluated against.
type Scope struct {
	Vars   map[string]string
	Env    map[string]string
	Branch string
}

// Evaluator compiles and evaluates guard expressions.
// Compiled programs are cached and the evaluator is safe for concurrent use.
type Evaluator struct {
	base     *cel.Env
	mu       sync.Mutex
	programs map[string]cel.Program
}

func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("vars", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("env", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("branch", cel.StringType),
		cel.Function("semver",
			cel.Overload("semver_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.IntType,
				cel.BinaryBinding(compareVersions),
			),
		),
		cel.Function("semverLess",
			cel.Overload("semverLess_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					out := compareVersions(lhs, rhs)
					if types.IsError(out) {
						return out
					}

					return types.Bool(out.(types.Int) < 0)
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to setup expression environment: %w", err)
	}

	return &Evaluator{
		base:     env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Eval evaluates expr against scope. An empty expression is true.
// Compile errors, evaluation errors and non boolean results are reported as ErrExpression.
func (e *Evaluator) Eval(expr string, scope Scope) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}

	prg, err := e.program(expr, bindable(scope.Vars))
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(activation(scope))
	if err != nil {
		return false, errdefs.NewExpressionError(expr, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, errdefs.NewExpressionError(expr, fmt.Errorf("expected bool result, got %s", out.Type().TypeName()))
	}

	return result, nil
}

// Check compiles expr with the given variable names declared without evaluating it.
func (e *Evaluator) Check(expr string, names []string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}

	var vars []string
	for _, name := range names {
		if isBindable(name) {
			vars = append(vars, name)
		}
	}

	slices.Sort(vars)
	_, err := e.program(expr, slices.Compact(vars))
	return err
}

func (e *Evaluator) program(expr string, names []string) (cel.Program, error) {
	key := strings.Join(names, ",") + "\x00" + expr

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.programs[key]; ok {
		return prg, nil
	}

	opts := make([]cel.EnvOption, 0, len(names))
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.StringType))
	}

	env, err := e.base.Extend(opts...)
	if err != nil {
		return nil, errdefs.NewExpressionError(expr, err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errdefs.NewExpressionError(expr, issues.Err())
	}

	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errdefs.NewExpressionError(expr, fmt.Errorf("expected bool result, got %s", out))
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, errdefs.NewExpressionError(expr, err)
	}

	e.programs[key] = prg
	return prg, nil
}

func activation(scope Scope) map[string]any {
	vars := scope.Vars
	if vars == nil {
		vars = map[string]string{}
	}

	env := scope.Env
	if env == nil {
		env = map[string]string{}
	}

	act := make(map[string]any, len(vars)+3)
	for name, value := range vars {
		if isBindable(name) {
			act[name] = value
		}
	}

	act["vars"] = vars
	act["env"] = env
	act["branch"] = scope.Branch
	return act
}

func bindable(vars map[string]string) []string {
	var names []string
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		if isBindable(name) {
			names = append(names, name)
		}
	}

	return names
}

func isBindable(name string) bool {
	if _, ok := reserved[name]; ok {
		return false
	}

	return identifier.MatchString(name)
}

func compareVersions(lhs, rhs ref.Val) ref.Val {
	a, ok := lhs.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(lhs)
	}

	b, ok := rhs.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(rhs)
	}

	return types.Int(CompareVersions(string(a), string(b)))
}

// CompareVersions compares two version strings and returns -1, 0 or 1.
// Values which are not semantic versions are compared token by token, numerically
// where both tokens are numbers and lexicographically otherwise.
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}

	ta, tb := tokenize(a), tokenize(b)
	for i := 0; i < len(ta) && i < len(tb); i++ {
		na, errA := strconv.Atoi(ta[i])
		nb, errB := strconv.Atoi(tb[i])

		var c int
		if errA == nil && errB == nil {
			c = cmp.Compare(na, nb)
		} else {
			c = strings.Compare(ta[i], tb[i])
		}

		if c != 0 {
			return c
		}
	}

	return cmp.Compare(len(ta), len(tb))
}

func tokenize(v string) []string {
	return strings.FieldsFunc(strings.TrimPrefix(v, "v"), func(r rune) bool {
		return r == '.' || r == '-' || r == '+' || r == '_'
	})
}
