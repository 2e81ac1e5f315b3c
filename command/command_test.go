package command

import (
	"testing"

	"github.com/journeyhq/journey/flow"
	"github.com/journeyhq/journey/id"
)

func TestCommand_Validate(t *testing.T) {
	valid := func() *Command {
		return &Command{
			InstanceID: id.NewInstanceID(),
			Action:     "VERIFY_OTP",
			Actor:      flow.ActorUser,
			RequestID:  "req-1",
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid command: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Command)
	}{
		{"nil instance id", func(c *Command) { c.InstanceID = id.Nil }},
		{"empty action", func(c *Command) { c.Action = "" }},
		{"empty actor", func(c *Command) { c.Actor = "" }},
		{"empty request id", func(c *Command) { c.RequestID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestSynthesize(t *testing.T) {
	instID := id.NewInstanceID()

	first := Synthesize(instID, flow.ActionRetry)
	second := Synthesize(instID, flow.ActionRetry)

	if first.Actor != flow.ActorSystem {
		t.Errorf("Actor = %s, want SYSTEM", first.Actor)
	}
	if err := first.Validate(); err != nil {
		t.Errorf("synthesized command invalid: %v", err)
	}
	if first.RequestID == second.RequestID {
		t.Error("synthesized commands must carry fresh request ids")
	}
	if first.OccurredAt.IsZero() {
		t.Error("synthesized commands must stamp OccurredAt")
	}
}
