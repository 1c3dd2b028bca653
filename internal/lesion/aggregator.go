package lesion

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimepointOutOfOrder indicates a timepoint was added with a date not
// strictly after the previous one.
var ErrTimepointOutOfOrder = errors.New("lesion: timepoint out of order")

// Aggregator folds resolved timepoints, in date order, into a
// PatientLesionHistory. It is the sole mutator of the history until
// Finalize, after which the history is treated as immutable.
type Aggregator struct {
	history PatientLesionHistory
}

// NewAggregator starts an empty history for one patient.
func NewAggregator(patientID string) *Aggregator {
	return &Aggregator{
		history: PatientLesionHistory{PatientID: patientID},
	}
}

// AddTimepoint appends one resolved snapshot. Dates must be strictly
// ascending; a degraded timepoint is added with an empty assignment list.
func (a *Aggregator) AddTimepoint(date time.Time, assignments []Assignment) error {
	if n := len(a.history.Timepoints); n > 0 {
		last := a.history.Timepoints[n-1].Date
		if !date.After(last) {
			return fmt.Errorf("%w: %s does not follow %s",
				ErrTimepointOutOfOrder, date.Format(time.DateOnly), last.Format(time.DateOnly))
		}
	}
	a.history.Timepoints = append(a.history.Timepoints, TimepointSnapshot{
		Date:        date,
		Assignments: assignments,
	})
	return nil
}

// Finalize attaches the resolver's identities and returns the completed
// history.
func (a *Aggregator) Finalize(identities []Identity) *PatientLesionHistory {
	a.history.Identities = identities
	h := a.history
	return &h
}
