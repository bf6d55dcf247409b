package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine evaluates capability calls against loaded policies.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy is a policy with its parsed module.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates an engine preloaded with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStore(&builtins[i]); err != nil {
			return nil, fmt.Errorf("compiling built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	return e, nil
}

// Evaluate runs every enabled policy against one capability call.
// A deny with error or critical severity makes the decision blocking.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Decision, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	if input.Timestamp.IsZero() {
		input.Timestamp = start
	}

	var violations []Violation
	evaluated := make([]string, 0, len(e.policies))

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		evaluated = append(evaluated, cp.policy.Name)

		found, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("capability", input.Capability).
				Msg("Policy evaluation failed")
			return nil, fmt.Errorf("evaluating policy %s: %w", cp.policy.Name, err)
		}
		violations = append(violations, found...)
	}

	allowed := true
	for i := range violations {
		if violations[i].Severity.Blocks() {
			allowed = false
			break
		}
	}

	decision := &Decision{
		Allowed:           allowed,
		Violations:        violations,
		EvaluatedPolicies: evaluated,
		Duration:          time.Since(start),
		EvaluatedAt:       time.Now(),
	}

	e.logger.Debug().
		Str("machine", input.Machine.Name).
		Str("guest", input.Guest).
		Str("capability", input.Capability).
		Bool("allowed", decision.Allowed).
		Int("violations", len(violations)).
		Dur("duration", decision.Duration).
		Msg("Policy evaluation completed")

	return decision, nil
}

// evaluatePolicy runs the deny query of one policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	query := cp.module.Package.Path.String() + ".deny"

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.toViolation(cp.policy, d))
			}
		}
	}

	return violations, nil
}

// toViolation converts a deny result into a Violation. Results are
// either bare strings or objects with message and severity fields.
func (e *Engine) toViolation(policy *Policy, result interface{}) Violation {
	v := Violation{
		Policy:     policy.Name,
		Severity:   policy.Severity,
		DetectedAt: time.Now(),
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}

	return v
}

// compileAndStore parses a policy module and registers it. Caller
// holds the write lock, or the engine is not yet shared.
func (e *Engine) compileAndStore(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("parsing policy: %w", err)
	}
	if module.Package == nil || !strings.HasPrefix(module.Package.Path.String(), "data.") {
		return fmt.Errorf("policy %s has no package declaration", policy.Name)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		compiled: time.Now(),
	}

	e.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled")
	return nil
}

// LoadPolicies loads and compiles policy files from the given paths on
// top of whatever is already registered.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}
	return e.SetPolicies(policies)
}

// SetPolicies replaces all file-loaded policies, keeping the built-in
// set. The loader's watch callback uses this for hot reload.
func (e *Engine) SetPolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rebuilt := make(map[string]*compiledPolicy)
	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if existing, ok := e.policies[builtins[i].Name]; ok {
			rebuilt[builtins[i].Name] = existing
		}
	}

	old := e.policies
	e.policies = rebuilt

	for i := range policies {
		if err := e.compileAndStore(&policies[i]); err != nil {
			e.policies = old
			return fmt.Errorf("compiling policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, ok := e.policies[name]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all registered policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
