package shm

import "fmt"

// Buffer names as seen by the external solver. The session id is appended so
// several simulations can run side by side.
const (
	NamePositions  = "node_coordinates"
	NameVelocities = "velocities"
	NameForces     = "contact_forces"
	NameHessian    = "contact_hessian"
	NameMeta       = "meta_data"
)

// Meta slot layout of the control/diagnostics vector.
const (
	MetaFirstIteration = 0 // solver-written: 1 on the first call of a timestep
	MetaFriction       = 1 // solver-written: friction enabled flag
	MetaSimTime        = 2 // solver-written: simulation time, logging only
	MetaIterations     = 3 // solver-written: iteration counter, logging only
	MetaMinDistance    = 4 // core-written: closest approach distance (unscaled)
	MetaHessian        = 5 // solver-written: hessian requested flag

	MetaSize = 6
)

// Mapper maps a named shared region to a float64 slice. How the bytes are
// shared (POSIX shm, mmap, plain heap) is the caller's concern; the core only
// requires that both sides see the same backing store and follow the
// ping-pong access discipline.
type Mapper interface {
	Map(name string, size int) ([]float64, error)
	Close() error
}

// HeapMapper keeps regions on the Go heap. It is the in-process
// implementation used by tests and by solvers linked into the same binary.
type HeapMapper struct {
	regions map[string][]float64
}

func NewHeapMapper() *HeapMapper {
	return &HeapMapper{regions: make(map[string][]float64)}
}

func (m *HeapMapper) Map(name string, size int) ([]float64, error) {
	if buf, ok := m.regions[name]; ok {
		if len(buf) != size {
			return nil, fmt.Errorf("shm: region %q already mapped with size %d, requested %d", name, len(buf), size)
		}
		return buf, nil
	}
	buf := make([]float64, size)
	m.regions[name] = buf
	return buf, nil
}

func (m *HeapMapper) Close() error {
	m.regions = nil
	return nil
}

// Buffers is the full set of regions exchanged with the external solver.
// Positions/velocities/meta are solver-written, forces/hessian core-written;
// nobody touches them outside a request/reply window.
type Buffers struct {
	Positions  []float64 // 3N
	Velocities []float64 // 3N
	Forces     []float64 // 3N
	Hessian    []float64 // 3N x 3N, row-major
	Meta       []float64 // MetaSize
}

// Attach maps all five regions for a session. numNodes is the rod node count.
func Attach(m Mapper, session string, numNodes int) (*Buffers, error) {
	if numNodes < 2 {
		return nil, fmt.Errorf("shm: need at least 2 nodes, got %d", numNodes)
	}
	nv := numNodes * 3
	b := &Buffers{}
	for _, r := range []struct {
		name string
		size int
		dst  *[]float64
	}{
		{NamePositions, nv, &b.Positions},
		{NameVelocities, nv, &b.Velocities},
		{NameForces, nv, &b.Forces},
		{NameHessian, nv * nv, &b.Hessian},
		{NameMeta, MetaSize, &b.Meta},
	} {
		buf, err := m.Map(r.name+session, r.size)
		if err != nil {
			return nil, fmt.Errorf("shm: mapping %s failed: %w", r.name, err)
		}
		*r.dst = buf
	}
	return b, nil
}

func (b *Buffers) FirstIteration() bool   { return b.Meta[MetaFirstIteration] != 0 }
func (b *Buffers) FrictionEnabled() bool  { return b.Meta[MetaFriction] != 0 }
func (b *Buffers) HessianRequested() bool { return b.Meta[MetaHessian] != 0 }
func (b *Buffers) SimTime() float64       { return b.Meta[MetaSimTime] }
func (b *Buffers) Iterations() int        { return int(b.Meta[MetaIterations]) }

func (b *Buffers) SetMinDistance(d float64) { b.Meta[MetaMinDistance] = d }
