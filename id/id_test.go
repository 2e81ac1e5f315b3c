package id_test

import (
	"testing"

	"github.com/journeyhq/journey/id"
)

func TestNew_CarriesPrefix(t *testing.T) {
	tests := []struct {
		prefix id.Prefix
	}{
		{id.PrefixInstance},
		{id.PrefixIncident},
		{id.PrefixOutbox},
		{id.PrefixCommand},
	}
	for _, tt := range tests {
		got := id.New(tt.prefix)
		if got.Prefix() != tt.prefix {
			t.Errorf("New(%q).Prefix() = %q, want %q", tt.prefix, got.Prefix(), tt.prefix)
		}
		if got.IsNil() {
			t.Errorf("New(%q) returned nil ID", tt.prefix)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	original := id.NewInstanceID()

	parsed, err := id.Parse(original.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", original.String(), err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), original.String())
	}
}

func TestParse_EmptyString(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("Parse(\"\") should fail")
	}
}

func TestParseWithPrefix_RejectsWrongPrefix(t *testing.T) {
	instID := id.NewInstanceID()

	if _, err := id.ParseIncidentID(instID.String()); err == nil {
		t.Errorf("ParseIncidentID(%q) should fail for an instance id", instID.String())
	}
}

func TestNil_Behavior(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Error("Nil.IsNil() = false, want true")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
}

func TestNewRequestID_HasCommandPrefix(t *testing.T) {
	rid := id.NewRequestID()

	parsed, err := id.ParseWithPrefix(rid, id.PrefixCommand)
	if err != nil {
		t.Fatalf("ParseWithPrefix(%q, cmd): %v", rid, err)
	}
	if parsed.IsNil() {
		t.Error("request id parsed to nil")
	}
}

func TestScan_Value_RoundTrip(t *testing.T) {
	original := id.NewOutboxID()

	v, err := original.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("scanned = %q, want %q", scanned.String(), original.String())
	}

	var nilID id.ID
	if err := nilID.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !nilID.IsNil() {
		t.Error("Scan(nil) should produce Nil ID")
	}
}
