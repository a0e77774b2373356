package geom

// DefaultWindow is the number of adjacent edges ignored on each side of an
// edge during contact detection. Closer neighbours always sit within the
// contact margin and would register as permanent false positives.
const DefaultWindow = 2

// EdgePair identifies two rod edges by index, J always greater than I.
type EdgePair struct {
	I, J int
}

// PairIndex is the static table of edge pairs eligible for contact. Edges
// closer than the exclusion window along the rod can never collide without
// the rod bending through itself first, so they are skipped entirely. The
// topology of the rod is fixed, so the table is built once and never changes.
type PairIndex struct {
	NumEdges int
	Window   int // number of adjacent edges ignored on each side
	Pairs    []EdgePair
}

// NewPairIndex enumerates all (i, j) with j-i > window in a single forward
// scan, so pairs sharing a first edge stay contiguous.
func NewPairIndex(numEdges, window int) *PairIndex {
	count := 0
	for i := 0; i < numEdges; i++ {
		if add := numEdges - i - (window + 1); add > 0 {
			count += add
		}
	}

	pairs := make([]EdgePair, 0, count)
	for i := 0; i < numEdges; i++ {
		for j := i + window + 1; j < numEdges; j++ {
			pairs = append(pairs, EdgePair{I: i, J: j})
		}
	}
	return &PairIndex{NumEdges: numEdges, Window: window, Pairs: pairs}
}

// Len returns the number of eligible pairs.
func (p *PairIndex) Len() int { return len(p.Pairs) }
