package compliance

import (
	"strings"
	"testing"
)

func TestDisclaimerService_Apply(t *testing.T) {
	svc := NewDisclaimerService(DefaultDisclaimerConfig())

	doc := "Patient: P001\nUnique Lesions: 2\n"
	out := svc.Apply(doc)

	if !strings.Contains(out, "extracted by an automated system") {
		t.Errorf("expected medium disclaimer, got:\n%s", out)
	}
	if strings.HasSuffix(out, "\n\n") {
		t.Errorf("expected trimmed document before disclaimer")
	}
}

func TestDisclaimerService_ApplyIdempotent(t *testing.T) {
	svc := NewDisclaimerService(DefaultDisclaimerConfig())

	once := svc.Apply("summary")
	twice := svc.Apply(once)
	if once != twice {
		t.Error("applying twice should not duplicate the disclaimer")
	}
}

func TestDisclaimerService_Disabled(t *testing.T) {
	svc := NewDisclaimerService(DisclaimerConfig{Enabled: false})
	if got := svc.Apply("summary"); got != "summary" {
		t.Errorf("disabled service must not modify the document, got %q", got)
	}
}

func TestDisclaimerService_Levels(t *testing.T) {
	tests := []struct {
		level DisclaimerLevel
		want  string
	}{
		{DisclaimerShort, disclaimerShortText},
		{DisclaimerMedium, disclaimerMediumText},
		{DisclaimerFull, disclaimerFullText},
	}
	for _, tt := range tests {
		svc := NewDisclaimerService(DisclaimerConfig{Level: tt.level, Enabled: true})
		if got := svc.GetDisclaimerText(); got != tt.want {
			t.Errorf("level %s: got %q", tt.level, got)
		}
	}
}

func TestDisclaimerService_CustomText(t *testing.T) {
	svc := NewDisclaimerService(DisclaimerConfig{Enabled: true, CustomText: "custom"})
	if got := svc.GetDisclaimerText(); got != "custom" {
		t.Errorf("expected custom text, got %q", got)
	}
}
