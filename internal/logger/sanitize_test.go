package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		maxLength int
		want      string
	}{
		{"empty", "", 10, ""},
		{"control characters removed", "a\x00b\x07c", 10, "abc"},
		{"newlines kept", "line1\nline2", 20, "line1\nline2"},
		{"truncated", "abcdefghij", 4, "abcd..."},
		{"truncation keeps runes whole", "회의록 검토", 4, "회..."},
		{"invalid utf8 repaired", "ok\xffok", 10, "okok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeString(tt.input, tt.maxLength); got != tt.want {
				t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.input, tt.maxLength, got, tt.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	if got := SanitizeError(nil); got != "" {
		t.Errorf("SanitizeError(nil) = %q, want empty", got)
	}
	long := errors.New(strings.Repeat("x", MaxErrorMessageLength+50))
	if got := SanitizeError(long); len(got) != MaxErrorMessageLength+3 {
		t.Errorf("Expected truncated error length %d, got %d", MaxErrorMessageLength+3, len(got))
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("p", MaxPreviewLength*2)
	if got := Preview(content, false); len(got) != MaxPreviewLength+3 {
		t.Errorf("Expected non-debug preview of %d bytes, got %d", MaxPreviewLength+3, len(got))
	}
	if got := Preview(content, true); got != content {
		t.Error("Expected debug preview to keep full content under the debug limit")
	}
}
