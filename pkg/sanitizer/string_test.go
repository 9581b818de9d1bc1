package sanitizer

import "testing"

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"already clean", "follow-up visit", "follow-up visit"},
		{"surrounding whitespace", "  knee pain  ", "knee pain"},
		{"internal runs collapsed", "annual \t check   up", "annual check up"},
		{"newlines collapsed", "first\nsecond", "first second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimAndNormalize(tt.input)
			if got != tt.expected {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeNote(t *testing.T) {
	if got := NormalizeNote("  persistent   cough "); got != "persistent cough" {
		t.Errorf("NormalizeNote returned %q", got)
	}
}
