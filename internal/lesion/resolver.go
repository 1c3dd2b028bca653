package lesion

import (
	"fmt"
	"math"
	"time"
)

// Resolver assigns per-timepoint observations to persistent lesion
// identities for a single patient. It is an explicit state object: one
// resolver per patient, timepoints fed strictly in date order. Resolution
// never fails on validated observations; it only assigns or creates.
//
// Matching policy:
//   - primary key is exact normalized-location equality against an
//     identity's anchor location
//   - duplicate anchor locations are disambiguated by nearest prior size
//   - an observation whose location never appeared before always starts a
//     new identity; a weak match is never forced, since a false merge
//     corrupts the growth trend the pipeline exists to produce
//   - an identity receives at most one observation per timepoint; extra
//     contenders become new identities, in encounter order
//   - an identity with no match this timepoint stays eligible at future
//     timepoints
type Resolver struct {
	identities []*Identity
	byAnchor   map[string][]*Identity
}

// NewResolver creates an empty resolver for one patient.
func NewResolver() *Resolver {
	return &Resolver{
		byAnchor: make(map[string][]*Identity),
	}
}

// ResolveTimepoint matches the validated observations of one timepoint
// against known identities, creating new identities for anything unmatched.
// Observations must be in encounter order (report-text order); given the
// same ordered input the result is always identical.
func (r *Resolver) ResolveTimepoint(observations []Observation, date time.Time) []Assignment {
	assignments := make([]Assignment, 0, len(observations))
	claimed := make(map[string]bool, len(observations))

	for _, obs := range observations {
		obs.TimepointDate = date
		key := NormalizeLocation(obs.Location)

		identity := r.claimMatch(key, obs, claimed)
		if identity == nil {
			identity = r.createIdentity(obs.Location, date)
		}

		claimed[identity.ID] = true
		if obs.SizeCM != nil {
			size := *obs.SizeCM
			identity.LastSizeCM = &size
		}

		assignments = append(assignments, Assignment{
			LesionID:    identity.ID,
			Observation: obs,
		})
	}

	return assignments
}

// Identities returns a snapshot of every identity in creation order.
func (r *Resolver) Identities() []Identity {
	out := make([]Identity, 0, len(r.identities))
	for _, id := range r.identities {
		out = append(out, *id)
	}
	return out
}

// claimMatch finds the best unclaimed identity whose anchor location equals
// key, or nil when the observation should start a new track. When several
// identities share the anchor location the one with the nearest prior size
// wins; identities without a known size rank behind those with one, and
// remaining ties fall back to creation order.
func (r *Resolver) claimMatch(key string, obs Observation, claimed map[string]bool) *Identity {
	var best *Identity
	bestDelta := math.Inf(1)

	for _, identity := range r.byAnchor[key] {
		if claimed[identity.ID] {
			continue
		}
		delta := sizeDelta(obs.SizeCM, identity.LastSizeCM)
		if delta < bestDelta {
			best = identity
			bestDelta = delta
		}
	}

	return best
}

// sizeDelta ranks match candidates. Comparable sizes rank by absolute
// difference; a missing size on either side ranks behind every comparable
// pair but stays finite so creation order can break the tie.
func sizeDelta(observed, prior *float64) float64 {
	if observed == nil || prior == nil {
		return math.MaxFloat64
	}
	return math.Abs(*observed - *prior)
}

func (r *Resolver) createIdentity(location string, firstSeen time.Time) *Identity {
	identity := &Identity{
		ID:             fmt.Sprintf("L%d", len(r.identities)+1),
		AnchorLocation: location,
		FirstSeen:      firstSeen,
	}
	r.identities = append(r.identities, identity)

	key := NormalizeLocation(location)
	r.byAnchor[key] = append(r.byAnchor[key], identity)
	return identity
}
