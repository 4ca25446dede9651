package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"trims", "  Ana  ", 10, "Ana"},
		{"collapses whitespace", "Fiesta \t\n de  Ana", 0, "Fiesta de Ana"},
		{"drops control characters", "Pi\u0000ñata\u0007", 0, "Piñata"},
		{"caps by rune", "piñata", 3, "piñ"},
		{"no trailing space at cap", "ab cd", 3, "ab"},
		{"empty", "   ", 5, ""},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.input, tt.max); got != tt.want {
			t.Fatalf("%s: SanitizeString(%q, %d) = %q, want %q", tt.name, tt.input, tt.max, got, tt.want)
		}
	}
}
