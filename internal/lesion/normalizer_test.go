package lesion

import (
	"errors"
	"testing"
	"time"
)

var tpDate = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestNormalizeValidCandidate(t *testing.T) {
	o, err := Normalize(RawCandidate{
		Location:        "  right upper lobe ",
		SizeCM:          2.3,
		Characteristics: "nodule",
		RawText:         "2.3 cm nodule in the right upper lobe",
	}, tpDate)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if o.Location != "right upper lobe" {
		t.Errorf("location = %q, want trimmed", o.Location)
	}
	if o.SizeCM == nil || *o.SizeCM != 2.3 {
		t.Errorf("size = %v, want 2.3", o.SizeCM)
	}
	if !o.TimepointDate.Equal(tpDate) {
		t.Errorf("timepoint date not set")
	}
}

func TestNormalizeCoercions(t *testing.T) {
	tests := []struct {
		name string
		raw  RawCandidate
		want float64
	}{
		{"string with unit suffix", RawCandidate{Location: "liver", SizeCM: "2.3 cm"}, 2.3},
		{"plain numeric string", RawCandidate{Location: "liver", SizeCM: "1.5"}, 1.5},
		{"millimeters converted", RawCandidate{Location: "liver", SizeMM: 23.0}, 2.3},
		{"millimeter string", RawCandidate{Location: "liver", SizeMM: "15 mm"}, 1.5},
		{"cm wins over mm", RawCandidate{Location: "liver", SizeCM: 2.0, SizeMM: 90.0}, 2.0},
		{"integer size", RawCandidate{Location: "liver", SizeCM: 3}, 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := Normalize(tt.raw, tpDate)
			if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
			if o.SizeCM == nil || *o.SizeCM != tt.want {
				t.Errorf("size = %v, want %v", o.SizeCM, tt.want)
			}
		})
	}
}

func TestNormalizeMissingSizeMeansNotMeasurable(t *testing.T) {
	tests := []struct {
		name string
		raw  RawCandidate
	}{
		{"no size fields", RawCandidate{Location: "liver"}},
		{"empty size string", RawCandidate{Location: "liver", SizeCM: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := Normalize(tt.raw, tpDate)
			if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
			if o.SizeCM != nil {
				t.Errorf("size = %v, want nil", *o.SizeCM)
			}
		})
	}
}

func TestNormalizeRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  RawCandidate
	}{
		{"empty location", RawCandidate{Location: "", SizeCM: 2.0}},
		{"whitespace location", RawCandidate{Location: "   "}},
		{"negative size", RawCandidate{Location: "liver", SizeCM: -1.0}},
		{"negative size string", RawCandidate{Location: "liver", SizeCM: "-2 cm"}},
		{"unparseable size", RawCandidate{Location: "liver", SizeCM: "large"}},
		{"unsupported size type", RawCandidate{Location: "liver", SizeCM: []string{"2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, tpDate)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !errors.Is(err, ErrCandidateRejected) {
				t.Errorf("error %v is not ErrCandidateRejected", err)
			}
		})
	}
}

func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Right Upper Lobe", "right upper lobe"},
		{"  liver   segment 7 ", "liver segment 7"},
		{"LIVER", "liver"},
	}
	for _, tt := range tests {
		if got := NormalizeLocation(tt.in); got != tt.want {
			t.Errorf("NormalizeLocation(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
