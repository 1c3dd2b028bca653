package lesion

import (
	"sort"
	"strings"
	"time"
)

// RawCandidate is one loosely-typed lesion record as returned by the
// extraction gateway. Size fields may arrive as JSON numbers or as strings
// like "2.3 cm"; the normalizer is the single point that coerces them.
type RawCandidate struct {
	Location        string `json:"location"`
	SizeCM          any    `json:"size_cm,omitempty"`
	SizeMM          any    `json:"size_mm,omitempty"`
	Characteristics string `json:"characteristics,omitempty"`
	RawText         string `json:"raw_text,omitempty"`
}

// Observation is a validated lesion measurement at a single timepoint.
// SizeCM is nil when the report gave no measurable size.
type Observation struct {
	Location        string    `json:"location"`
	SizeCM          *float64  `json:"size_cm,omitempty"`
	Characteristics string    `json:"characteristics,omitempty"`
	RawText         string    `json:"raw_text,omitempty"`
	TimepointDate   time.Time `json:"timepoint_date"`
}

// Identity is a persistent lesion track. Created once at first sighting and
// never deleted; a lesion that disappears simply stops receiving observations.
type Identity struct {
	ID             string    `json:"lesion_id"`
	AnchorLocation string    `json:"anchor_location"`
	LastSizeCM     *float64  `json:"last_size_cm,omitempty"`
	FirstSeen      time.Time `json:"first_seen"`
}

// Assignment binds one observation to a lesion identity for one timepoint.
type Assignment struct {
	LesionID    string      `json:"lesion_id"`
	Observation Observation `json:"observation"`
}

// TimepointSnapshot holds everything resolved at one report date.
type TimepointSnapshot struct {
	Date        time.Time    `json:"date"`
	Assignments []Assignment `json:"assignments"`
}

// PatientLesionHistory is the finished per-patient tracking result.
// Timepoints are strictly ordered by date and a lesion id appears at most
// once per timepoint.
type PatientLesionHistory struct {
	PatientID  string              `json:"patient_id"`
	Timepoints []TimepointSnapshot `json:"timepoints"`
	Identities []Identity          `json:"identities"`
	Summary    string              `json:"summary,omitempty"`
}

// AllLesionIDs returns every identity ever created for this patient, in
// creation order. Identities with empty timelines are included.
func (h *PatientLesionHistory) AllLesionIDs() []string {
	ids := make([]string, 0, len(h.Identities))
	for _, id := range h.Identities {
		ids = append(ids, id.ID)
	}
	return ids
}

// LesionTimeline returns the chronological observations for one identity,
// ascending by date. A zero or one-length timeline is valid.
func (h *PatientLesionHistory) LesionTimeline(lesionID string) []Observation {
	var timeline []Observation
	for _, tp := range h.Timepoints {
		for _, a := range tp.Assignments {
			if a.LesionID == lesionID {
				timeline = append(timeline, a.Observation)
			}
		}
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].TimepointDate.Before(timeline[j].TimepointDate)
	})
	return timeline
}

// Identity lookup by id; returns false when the id was never created.
func (h *PatientLesionHistory) Identity(lesionID string) (Identity, bool) {
	for _, id := range h.Identities {
		if id.ID == lesionID {
			return id, true
		}
	}
	return Identity{}, false
}

// NormalizeLocation folds a location string into its matching key:
// lower-cased with runs of whitespace collapsed to single spaces.
func NormalizeLocation(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}
