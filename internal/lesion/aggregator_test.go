package lesion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorBuildsHistoryInDateOrder(t *testing.T) {
	r := NewResolver()
	agg := NewAggregator("P001")

	d1, d2 := date("2024-01-15"), date("2024-03-20")
	require.NoError(t, agg.AddTimepoint(d1, r.ResolveTimepoint([]Observation{obs("right upper lobe", cm(2.3))}, d1)))
	require.NoError(t, agg.AddTimepoint(d2, r.ResolveTimepoint([]Observation{obs("right upper lobe", cm(2.8))}, d2)))

	h := agg.Finalize(r.Identities())
	require.Len(t, h.Timepoints, 2)
	assert.Equal(t, "P001", h.PatientID)
	assert.Equal(t, []string{"L1"}, h.AllLesionIDs())

	timeline := h.LesionTimeline("L1")
	require.Len(t, timeline, 2)
	assert.Equal(t, 2.3, *timeline[0].SizeCM)
	assert.Equal(t, 2.8, *timeline[1].SizeCM)
	assert.True(t, timeline[0].TimepointDate.Before(timeline[1].TimepointDate))
}

func TestAggregatorRejectsOutOfOrderTimepoints(t *testing.T) {
	agg := NewAggregator("P001")
	require.NoError(t, agg.AddTimepoint(date("2024-03-20"), nil))

	err := agg.AddTimepoint(date("2024-01-15"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimepointOutOfOrder))

	err = agg.AddTimepoint(date("2024-03-20"), nil)
	require.Error(t, err, "duplicate dates violate strict ordering")
}

func TestSingleSightingYieldsLengthOneTimeline(t *testing.T) {
	r := NewResolver()
	agg := NewAggregator("P002")

	d1, d2 := date("2024-01-15"), date("2024-03-20")
	require.NoError(t, agg.AddTimepoint(d1, r.ResolveTimepoint([]Observation{obs("lung", cm(1.0))}, d1)))
	require.NoError(t, agg.AddTimepoint(d2, r.ResolveTimepoint(nil, d2)))

	h := agg.Finalize(r.Identities())
	assert.Equal(t, []string{"L1"}, h.AllLesionIDs(), "identity persists even when never re-observed")
	assert.Len(t, h.LesionTimeline("L1"), 1)
	assert.Empty(t, h.LesionTimeline("L99"), "unknown id yields empty timeline")
}

func TestDegradedTimepointRecordedWithZeroAssignments(t *testing.T) {
	agg := NewAggregator("P003")
	require.NoError(t, agg.AddTimepoint(date("2024-01-15"), nil))

	h := agg.Finalize(nil)
	require.Len(t, h.Timepoints, 1)
	assert.Empty(t, h.Timepoints[0].Assignments)
}

func TestIdentityLookup(t *testing.T) {
	r := NewResolver()
	d1 := date("2024-01-15")
	agg := NewAggregator("P004")
	require.NoError(t, agg.AddTimepoint(d1, r.ResolveTimepoint([]Observation{obs("liver", cm(2.0))}, d1)))

	h := agg.Finalize(r.Identities())
	id, ok := h.Identity("L1")
	require.True(t, ok)
	assert.Equal(t, "liver", id.AnchorLocation)

	_, ok = h.Identity("L2")
	assert.False(t, ok)
}
