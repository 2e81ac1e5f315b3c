package flow

import (
	"fmt"
	"strings"
)

// Table is an in-memory registry of flow definitions, keyed by version
// and indexed by (version, from, action) for O(1) rule resolution. It is
// immutable after construction and safe for concurrent readers.
type Table struct {
	defs  map[string]*Definition
	rules map[ruleKey]Rule
}

type ruleKey struct {
	version string
	from    State
	action  Action
}

// NewTable builds a Table from the given definitions, validating each
// one. Validation rejects duplicate versions, duplicate (from, action)
// pairs, rules that reference undeclared states, unparseable guard
// conditions, and timeout states without a TIMEOUT rule.
func NewTable(defs ...*Definition) (*Table, error) {
	t := &Table{
		defs:  make(map[string]*Definition, len(defs)),
		rules: make(map[ruleKey]Rule),
	}
	for _, def := range defs {
		if err := t.add(def); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) add(def *Definition) error {
	if def.Version == "" {
		return fmt.Errorf("flow: definition has empty version")
	}
	if _, ok := t.defs[def.Version]; ok {
		return fmt.Errorf("flow: duplicate definition version %q", def.Version)
	}
	if !def.HasState(def.Initial) {
		return fmt.Errorf("flow %s: initial state %q not declared", def.Version, def.Initial)
	}
	for _, term := range def.Terminal {
		if !def.HasState(term) {
			return fmt.Errorf("flow %s: terminal state %q not declared", def.Version, term)
		}
	}

	for _, r := range def.Rules {
		if r.Version != "" && r.Version != def.Version {
			return fmt.Errorf("flow %s: rule %s/%s carries foreign version %q",
				def.Version, r.From, r.Action, r.Version)
		}
		if !def.HasState(r.From) {
			return fmt.Errorf("flow %s: rule %s/%s: from-state not declared", def.Version, r.From, r.Action)
		}
		if !def.HasState(r.To) {
			return fmt.Errorf("flow %s: rule %s/%s: to-state %q not declared",
				def.Version, r.From, r.Action, r.To)
		}
		if def.IsTerminal(r.From) {
			return fmt.Errorf("flow %s: rule %s/%s: transitions from terminal states are not allowed",
				def.Version, r.From, r.Action)
		}
		for _, cond := range r.Conditions {
			if len(strings.Fields(cond)) != 3 {
				return fmt.Errorf("flow %s: rule %s/%s: condition %q is not of the form \"field op value\"",
					def.Version, r.From, r.Action, cond)
			}
		}

		key := ruleKey{version: def.Version, from: r.From, action: r.Action}
		if _, dup := t.rules[key]; dup {
			return fmt.Errorf("flow %s: duplicate rule for %s/%s", def.Version, r.From, r.Action)
		}
		r.Version = def.Version
		t.rules[key] = r
	}

	// Every rule with a retry budget needs a RETRY rule from its source
	// state, otherwise retryable step failures would be swept into
	// commands nothing can resolve.
	for _, r := range def.Rules {
		if r.MaxRetry <= 0 {
			continue
		}
		if _, ok := t.rules[ruleKey{version: def.Version, from: r.From, action: ActionRetry}]; !ok {
			return fmt.Errorf("flow %s: rule %s/%s has a retry budget but state %s has no RETRY rule",
				def.Version, r.From, r.Action, r.From)
		}
	}

	// Every state with a dwell timeout needs a TIMEOUT rule, otherwise
	// the sweeper would synthesize commands nothing can resolve.
	for state := range def.Timeouts {
		if !def.HasState(state) {
			return fmt.Errorf("flow %s: timeout configured for undeclared state %q", def.Version, state)
		}
		if _, ok := t.rules[ruleKey{version: def.Version, from: state, action: ActionTimeout}]; !ok {
			return fmt.Errorf("flow %s: state %q has a timeout but no TIMEOUT rule", def.Version, state)
		}
	}

	t.defs[def.Version] = def
	return nil
}

// Definition returns the definition registered under version.
func (t *Table) Definition(version string) (*Definition, bool) {
	def, ok := t.defs[version]
	return def, ok
}

// Versions returns all registered definition versions.
func (t *Table) Versions() []string {
	out := make([]string, 0, len(t.defs))
	for v := range t.defs {
		out = append(out, v)
	}
	return out
}

// Lookup resolves the rule for (version, from, action). The second
// return is false when no such rule exists.
func (t *Table) Lookup(version string, from State, action Action) (Rule, bool) {
	r, ok := t.rules[ruleKey{version: version, from: from, action: action}]
	return r, ok
}

// IsTerminal reports whether s is terminal in the given version. Unknown
// versions report false.
func (t *Table) IsTerminal(version string, s State) bool {
	def, ok := t.defs[version]
	if !ok {
		return false
	}
	return def.IsTerminal(s)
}

// FromStates returns every state that appears as the source of at least
// one rule in the given version, deduplicated.
func (t *Table) FromStates(version string) []State {
	def, ok := t.defs[version]
	if !ok {
		return nil
	}
	seen := make(map[State]struct{})
	var out []State
	for _, r := range def.Rules {
		if _, dup := seen[r.From]; dup {
			continue
		}
		seen[r.From] = struct{}{}
		out = append(out, r.From)
	}
	return out
}
