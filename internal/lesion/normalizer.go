package lesion

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrCandidateRejected marks a raw candidate that failed validation.
// Rejections are logged by callers and never abort a timepoint.
var ErrCandidateRejected = errors.New("lesion: candidate rejected")

var numberRE = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// Normalize validates and coerces a raw extraction candidate into a strict
// Observation. It fails closed: anything without a usable location, or with
// a size that cannot be coerced to a non-negative number, is rejected.
func Normalize(raw RawCandidate, timepointDate time.Time) (Observation, error) {
	location := strings.TrimSpace(raw.Location)
	if location == "" {
		return Observation{}, fmt.Errorf("%w: location is empty", ErrCandidateRejected)
	}

	size, err := coerceSizeCM(raw)
	if err != nil {
		return Observation{}, err
	}

	return Observation{
		Location:        location,
		SizeCM:          size,
		Characteristics: strings.TrimSpace(raw.Characteristics),
		RawText:         strings.TrimSpace(raw.RawText),
		TimepointDate:   timepointDate,
	}, nil
}

// coerceSizeCM resolves the candidate's size in centimeters. size_cm wins
// over size_mm; a missing size is valid and yields nil ("not measurable").
func coerceSizeCM(raw RawCandidate) (*float64, error) {
	if raw.SizeCM != nil {
		v, err := coerceNumber(raw.SizeCM, "size_cm")
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	if raw.SizeMM != nil {
		v, err := coerceNumber(raw.SizeMM, "size_mm")
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		cm := *v / 10
		return &cm, nil
	}
	return nil, nil
}

func coerceNumber(value any, field string) (*float64, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case float64:
		return validateSize(v, field)
	case float32:
		return validateSize(float64(v), field)
	case int:
		return validateSize(float64(v), field)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not numeric", ErrCandidateRejected, field, v)
		}
		return validateSize(f, field)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		match := numberRE.FindString(trimmed)
		if match == "" {
			return nil, fmt.Errorf("%w: %s %q contains no number", ErrCandidateRejected, field, v)
		}
		f, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not numeric", ErrCandidateRejected, field, v)
		}
		return validateSize(f, field)
	default:
		return nil, fmt.Errorf("%w: %s has unsupported type %T", ErrCandidateRejected, field, value)
	}
}

func validateSize(v float64, field string) (*float64, error) {
	if v < 0 {
		return nil, fmt.Errorf("%w: %s %.2f is negative", ErrCandidateRejected, field, v)
	}
	return &v, nil
}
