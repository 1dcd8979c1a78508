package validation

import (
	"testing"

	"github.com/benvon/todo-digest/internal/models"
)

func TestValidateCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		candidate models.TodoCandidate
		wantErr   bool
	}{
		{"valid", models.TodoCandidate{Title: "Review PR #42"}, false},
		{"empty title", models.TodoCandidate{Title: ""}, true},
		{"blank title", models.TodoCandidate{Title: "   "}, true},
		{"sources are not checked here", models.TodoCandidate{Title: "Review PR", Sources: nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateCandidate(tt.candidate)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCandidate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidSources(t *testing.T) {
	t.Parallel()

	sources := []models.TodoSource{
		{Type: models.SourceTypeSlack, ID: "t1", Link: "https://slack.com/x"},
		{Type: models.SourceTypeSlack, ID: "t2"},
		{Type: models.SourceTypeEmail, Link: "https://mail.google.com/x"},
		{Type: "carrier-pigeon", ID: "t3", Link: "https://x"},
		{ID: "t4", Link: "https://notion.so/x"},
		{ID: " ", Link: "https://notion.so/x"},
	}

	got := ValidSources(sources)
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t4" {
		t.Errorf("Expected sources t1 and t4, got %+v", got)
	}
	if len(ValidSources(nil)) != 0 {
		t.Error("Expected no sources from nil")
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	if got := SanitizeText("  hello\x00 world\n "); got != "hello world" {
		t.Errorf("SanitizeText() = %q", got)
	}
}
