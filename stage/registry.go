// Package stage holds the ordered onboarding stage registry. Each stage's
// eligibility and completion are CEL predicates compiled once at start-up and
// evaluated against workflow facts on every read.
package stage

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

const signingDone = "total_documents > 0 && signed_documents == total_documents"

// DefaultDefinitions returns the four onboarding stages in order.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:          Commit,
			Label:       "Commit",
			Description: "Confirm your intent to invest in this offering.",
			Guard:       "true",
			Done:        "committed",
		},
		{
			ID:          Signing,
			Label:       "Sign documents",
			Description: "Review and sign each offering document.",
			Guard:       "committed",
			Done:        signingDone,
		},
		{
			ID:          KYC,
			Label:       "Verify identity",
			Description: "Confirm your identity and residential address.",
			Guard:       signingDone,
			Done:        "identity_verified",
		},
		{
			ID:          Wire,
			Label:       "Fund investment",
			Description: "Transfer your commitment from a linked account.",
			Guard:       "identity_verified",
			Done:        "transferred",
		},
	}
}

type compiled struct {
	def   Definition
	guard cel.Program
	done  cel.Program
}

// Registry is immutable after construction and safe for concurrent reads.
type Registry struct {
	stages []compiled
	index  map[ID]int
}

// NewRegistry compiles the predicates of defs, preserving their order.
func NewRegistry(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("stage: no definitions")
	}

	env, err := cel.NewEnv(
		cel.Variable("committed", cel.BoolType),
		cel.Variable("signed_documents", cel.IntType),
		cel.Variable("total_documents", cel.IntType),
		cel.Variable("identity_verified", cel.BoolType),
		cel.Variable("transferred", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("stage: cel environment: %w", err)
	}

	r := &Registry{
		stages: make([]compiled, 0, len(defs)),
		index:  make(map[ID]int, len(defs)),
	}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("stage: definition missing id")
		}
		if _, dup := r.index[def.ID]; dup {
			return nil, fmt.Errorf("stage: duplicate stage %s", def.ID)
		}
		guard, err := compileBool(env, def.Guard)
		if err != nil {
			return nil, fmt.Errorf("stage: %s guard: %w", def.ID, err)
		}
		done, err := compileBool(env, def.Done)
		if err != nil {
			return nil, fmt.Errorf("stage: %s done: %w", def.ID, err)
		}
		r.index[def.ID] = len(r.stages)
		r.stages = append(r.stages, compiled{def: def, guard: guard, done: done})
	}
	return r, nil
}

// Default returns the registry for DefaultDefinitions.
func Default() *Registry {
	r, err := NewRegistry(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return r
}

func compileBool(env *cel.Env, expr string) (cel.Program, error) {
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	return env.Program(ast)
}

// Stages returns the definitions in order.
func (r *Registry) Stages() []Definition {
	out := make([]Definition, len(r.stages))
	for i, s := range r.stages {
		out[i] = s.def
	}
	return out
}

// Lookup returns the definition for id.
func (r *Registry) Lookup(id ID) (Definition, bool) {
	idx, ok := r.index[id]
	if !ok {
		return Definition{}, false
	}
	return r.stages[idx].def, true
}

// Status derives the status of id: completed when its Done predicate holds,
// current when only its Guard holds, locked otherwise.
func (r *Registry) Status(id ID, facts Facts) (Status, error) {
	idx, ok := r.index[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	return r.stages[idx].status(facts.activation())
}

// Statuses derives the status of every stage in order.
func (r *Registry) Statuses(facts Facts) ([]StageStatus, error) {
	vars := facts.activation()
	out := make([]StageStatus, 0, len(r.stages))
	for _, s := range r.stages {
		st, err := s.status(vars)
		if err != nil {
			return nil, err
		}
		out = append(out, StageStatus{Definition: s.def, Status: st})
	}
	return out, nil
}

func (c compiled) status(vars map[string]any) (Status, error) {
	done, err := evalBool(c.done, vars)
	if err != nil {
		return "", fmt.Errorf("stage: %s done: %w", c.def.ID, err)
	}
	if done {
		return StatusCompleted, nil
	}
	eligible, err := evalBool(c.guard, vars)
	if err != nil {
		return "", fmt.Errorf("stage: %s guard: %w", c.def.ID, err)
	}
	if eligible {
		return StatusCurrent, nil
	}
	return StatusLocked, nil
}

func evalBool(prg cel.Program, vars map[string]any) (bool, error) {
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("non-bool result %v", out.Value())
	}
	return b, nil
}
