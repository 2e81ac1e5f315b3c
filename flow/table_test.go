package flow

import (
	"testing"
	"time"
)

func minimalDef() *Definition {
	return &Definition{
		Version:  "test.v1",
		Initial:  "A",
		States:   []State{"A", "B", "DONE"},
		Terminal: []State{"DONE"},
		Rules: []Rule{
			{From: "A", Action: "GO", To: "B"},
			{From: "B", Action: "FINISH", To: "DONE"},
		},
	}
}

func TestNewTable_Valid(t *testing.T) {
	table, err := NewTable(minimalDef())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	rule, ok := table.Lookup("test.v1", "A", "GO")
	if !ok {
		t.Fatal("Lookup(test.v1, A, GO) not found")
	}
	if rule.To != "B" {
		t.Errorf("rule.To = %q, want B", rule.To)
	}
	if rule.Version != "test.v1" {
		t.Errorf("rule.Version = %q, want test.v1", rule.Version)
	}
}

func TestNewTable_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{
			name:   "empty version",
			mutate: func(d *Definition) { d.Version = "" },
		},
		{
			name:   "undeclared initial",
			mutate: func(d *Definition) { d.Initial = "MISSING" },
		},
		{
			name: "undeclared to-state",
			mutate: func(d *Definition) {
				d.Rules = append(d.Rules, Rule{From: "A", Action: "X", To: "MISSING"})
			},
		},
		{
			name: "duplicate from-action pair",
			mutate: func(d *Definition) {
				d.Rules = append(d.Rules, Rule{From: "A", Action: "GO", To: "DONE"})
			},
		},
		{
			name: "rule out of terminal state",
			mutate: func(d *Definition) {
				d.Rules = append(d.Rules, Rule{From: "DONE", Action: "RESURRECT", To: "A"})
			},
		},
		{
			name: "malformed condition shape",
			mutate: func(d *Definition) {
				d.Rules[0].Conditions = []string{"score>=70"}
			},
		},
		{
			name: "retry budget without RETRY rule",
			mutate: func(d *Definition) {
				d.Rules[0].MaxRetry = 3
			},
		},
		{
			name: "timeout without TIMEOUT rule",
			mutate: func(d *Definition) {
				d.Timeouts = map[State]time.Duration{"B": time.Hour}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := minimalDef()
			tt.mutate(def)
			if _, err := NewTable(def); err == nil {
				t.Error("NewTable should reject definition")
			}
		})
	}
}

func TestNewTable_DuplicateVersion(t *testing.T) {
	if _, err := NewTable(minimalDef(), minimalDef()); err == nil {
		t.Error("NewTable should reject duplicate versions")
	}
}

func TestLookup_Miss(t *testing.T) {
	table, err := NewTable(minimalDef())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if _, ok := table.Lookup("test.v1", "A", "NOPE"); ok {
		t.Error("Lookup should miss for unknown action")
	}
	if _, ok := table.Lookup("other.v9", "A", "GO"); ok {
		t.Error("Lookup should miss for unknown version")
	}
}

func TestRule_AllowsActor(t *testing.T) {
	tests := []struct {
		name    string
		allowed []Actor
		actor   Actor
		want    bool
	}{
		{"empty list allows anyone", nil, ActorUser, true},
		{"listed actor allowed", []Actor{ActorAdmin, ActorSystem}, ActorSystem, true},
		{"unlisted actor denied", []Actor{ActorAdmin}, ActorUser, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rule{AllowedActors: tt.allowed}
			if got := r.AllowsActor(tt.actor); got != tt.want {
				t.Errorf("AllowsActor(%s) = %v, want %v", tt.actor, got, tt.want)
			}
		})
	}
}

func TestOnboarding_RegistersCleanly(t *testing.T) {
	table, err := NewTable(Onboarding())
	if err != nil {
		t.Fatalf("NewTable(Onboarding()): %v", err)
	}

	def, ok := table.Definition(OnboardingVersion)
	if !ok {
		t.Fatal("onboarding definition not registered")
	}
	if def.Initial != StatePhoneEntered {
		t.Errorf("Initial = %q, want %q", def.Initial, StatePhoneEntered)
	}
	if !def.IsTerminal(StateAccountCreated) {
		t.Error("ACCOUNT_CREATED should be terminal")
	}

	// Every timeout state resolves a TIMEOUT action.
	for state := range def.Timeouts {
		if _, ok := table.Lookup(OnboardingVersion, state, ActionTimeout); !ok {
			t.Errorf("state %s has timeout but no TIMEOUT rule", state)
		}
	}
}
