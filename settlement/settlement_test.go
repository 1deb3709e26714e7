package settlement

import "testing"

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Mode
	}{
		{"empty", "", ModeSimulated},
		{"valid", "0x5FbDB2315678afecb367f032d93F642f64180aa3", ModeAuthoritative},
		{"lowercase", "0x5fbdb2315678afecb367f032d93f642f64180aa3", ModeAuthoritative},
		{"surrounding space", " 0x5FbDB2315678afecb367f032d93F642f64180aa3 ", ModeAuthoritative},
		{"zero address", "0x0000000000000000000000000000000000000000", ModeSimulated},
		{"too short", "0x5FbDB2315678afecb367f032d93F642f64180a", ModeSimulated},
		{"no prefix", "005FbDB2315678afecb367f032d93F642f64180aa3", ModeSimulated},
		{"not hex", "0xZZbDB2315678afecb367f032d93F642f64180aa3", ModeSimulated},
		{"placeholder", "0xYOUR_CONTRACT_ADDRESS", ModeSimulated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMode(tt.input); got != tt.want {
				t.Errorf("DetectMode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
