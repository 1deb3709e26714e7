package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/paylink/id"
)

func TestNewWithdrawalID(t *testing.T) {
	got := id.NewWithdrawalID()
	if got.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if !strings.HasPrefix(got.String(), "wdr_") {
		t.Errorf("expected prefix %q, got %q", "wdr_", got.String())
	}
	if got.Prefix() != id.PrefixWithdrawal {
		t.Errorf("expected prefix %q, got %q", id.PrefixWithdrawal, got.Prefix())
	}
}

func TestParseWithdrawalID(t *testing.T) {
	original := id.NewWithdrawalID()
	parsed, err := id.ParseWithdrawalID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestParseWithPrefixRejectsOtherPrefix(t *testing.T) {
	other := id.New(id.Prefix("evt"))
	if _, err := id.ParseWithdrawalID(other.String()); err == nil {
		t.Errorf("expected error for cross-type parse of %q, got nil", other.String())
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestScan(t *testing.T) {
	original := id.NewWithdrawalID()

	tests := []struct {
		name    string
		src     any
		want    string
		wantErr bool
	}{
		{"string", original.String(), original.String(), false},
		{"bytes", []byte(original.String()), original.String(), false},
		{"nil", nil, "", false},
		{"empty", "", "", false},
		{"int", 42, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got id.ID
			err := got.Scan(tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan(%v) error = %v, wantErr %v", tt.src, err, tt.wantErr)
			}
			if got.String() != tt.want {
				t.Errorf("got %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestValueNil(t *testing.T) {
	v, err := id.Nil.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil value for Nil ID, got %v", v)
	}
}
