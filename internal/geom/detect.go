package geom

import "math"

// Detector runs the broad/narrow phase over the static pair table. A pair is
// active when its surface separation (closest approach minus contact length)
// is within the collision limit. Scratch storage is reused between steps;
// Detect must not be called concurrently.
type Detector struct {
	Index          *PairIndex
	CollisionLimit float64
	ContactLen     float64

	edges  [][6]float64 // endpoint coordinates per edge
	combos []PairCoords // stacked coordinates per eligible pair
}

// NewDetector allocates scratch storage for all eligible pairs up front.
func NewDetector(index *PairIndex, collisionLimit, contactLen float64) *Detector {
	return &Detector{
		Index:          index,
		CollisionLimit: collisionLimit,
		ContactLen:     contactLen,
		edges:          make([][6]float64, index.NumEdges),
		combos:         make([]PairCoords, index.Len()),
	}
}

// Detect evaluates every eligible pair against the current node positions and
// returns the active subset plus the minimum distance over all pairs. The
// minimum is reported even when no pair is active so the stiffness feedback
// can react before actual contact. Per-pair work is independent; the loop is
// a straight data-parallel scan.
func (d *Detector) Detect(positions []float64) (active []EdgePair, minDist float64) {
	for i := range d.edges {
		copy(d.edges[i][:], positions[3*i:3*i+6])
	}
	for k, pr := range d.Index.Pairs {
		copy(d.combos[k][:6], d.edges[pr.I][:])
		copy(d.combos[k][6:], d.edges[pr.J][:])
	}

	minDist = math.Inf(1)
	for k := range d.combos {
		dist := d.combos[k].MinDistance()
		if dist < minDist {
			minDist = dist
		}
		if dist-d.ContactLen < d.CollisionLimit {
			active = append(active, d.Index.Pairs[k])
		}
	}
	return active, minDist
}

// GatherPairs re-reads the coordinates of the given pairs from the position
// buffer and evaluates distance and derived parameters for each. Used on
// sub-iterations, where the active set is frozen but the geometry moves.
func (d *Detector) GatherPairs(positions []float64, pairs []EdgePair) (coords []PairCoords, params []Params, minDist float64) {
	coords = make([]PairCoords, len(pairs))
	params = make([]Params, len(pairs))
	minDist = math.Inf(1)
	for k, pr := range pairs {
		copy(coords[k][:6], positions[3*pr.I:3*pr.I+6])
		copy(coords[k][6:], positions[3*pr.J:3*pr.J+6])
		p, dist := coords[k].DerivedParams()
		params[k] = p
		if dist < minDist {
			minDist = dist
		}
	}
	return coords, params, minDist
}

// GatherVelocities snapshots the 12 endpoint velocity components of each pair.
func GatherVelocities(velocities []float64, pairs []EdgePair) []PairCoords {
	out := make([]PairCoords, len(pairs))
	for k, pr := range pairs {
		copy(out[k][:6], velocities[3*pr.I:3*pr.I+6])
		copy(out[k][6:], velocities[3*pr.J:3*pr.J+6])
	}
	return out
}
