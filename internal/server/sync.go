package server

import (
	"log"

	"rod-contact/internal/assemble"
	"rod-contact/internal/contact"
	"rod-contact/internal/geom"
	"rod-contact/internal/shm"
	"rod-contact/internal/telemetry"
)

// Synchronizer is the per-request state machine: wait for a pulse, run
// detection/model/assembly against the shared buffers, reply. The active
// contact set and the velocity snapshot are frozen on the first solver call
// of each physical timestep and reused across its sub-iterations; everything
// else is recomputed per request.
type Synchronizer struct {
	buffers   *shm.Buffers
	detector  *geom.Detector
	model     *contact.Model
	assembler *assemble.Assembler
	stiffness *contact.StiffnessController
	telemetry *telemetry.Manager
	logger    *log.Logger
	scale     float64

	// state carried across requests
	active      []geom.EdgePair
	velSnapshot []geom.PairCoords
	closest     float64
	lastClosest float64
	step        uint64
}

func NewSynchronizer(buffers *shm.Buffers, detector *geom.Detector, model *contact.Model,
	assembler *assemble.Assembler, stiffness *contact.StiffnessController,
	tm *telemetry.Manager, scale float64, logger *log.Logger) *Synchronizer {
	return &Synchronizer{
		buffers:   buffers,
		detector:  detector,
		model:     model,
		assembler: assembler,
		stiffness: stiffness,
		telemetry: tm,
		logger:    logger,
		scale:     scale,
	}
}

// Run services requests until the channel or the model fails. A non-finite
// force aborts before the reply is sent: the solver must not integrate a
// poisoned step.
func (s *Synchronizer) Run(ch Channel) error {
	for {
		if err := ch.Recv(); err != nil {
			return err
		}
		if err := s.Step(); err != nil {
			return err
		}
		if err := ch.Send(); err != nil {
			return err
		}
	}
}

// Step processes one solver request against the shared buffers.
func (s *Synchronizer) Step() error {
	b := s.buffers
	firstIter := b.FirstIteration()
	friction := b.FrictionEnabled()
	hessReq := b.HessianRequested()

	// The solver writes raw coordinates before every request; normalize them
	// in place. Velocities are only consumed at the snapshot.
	scaleSlice(b.Positions, s.scale)
	if firstIter {
		scaleSlice(b.Velocities, s.scale)
		s.active, s.closest = s.detector.Detect(b.Positions)
		s.velSnapshot = geom.GatherVelocities(b.Velocities, s.active)
	}

	s.assembler.ZeroForces()
	if hessReq {
		s.assembler.ZeroHessian()
	}

	closest := s.closest
	if len(s.active) > 0 {
		coords, params, activeMin := s.detector.GatherPairs(b.Positions, s.active)
		closest = activeMin

		if firstIter {
			s.stiffness.Update(closest, s.lastClosest)
		}

		if hessReq {
			forces, hessians, err := s.model.ForcesAndHessians(coords, params, s.velSnapshot, friction)
			if err != nil {
				return err
			}
			s.assembler.AddForces(s.active, forces)
			s.assembler.AddHessians(s.active, hessians)
		} else {
			forces, err := s.model.Forces(coords, params, s.velSnapshot, friction)
			if err != nil {
				return err
			}
			s.assembler.AddForces(s.active, forces)
		}
		s.assembler.Scale(s.stiffness.Gain, hessReq)
	}

	b.SetMinDistance(closest / s.scale)

	if firstIter {
		s.lastClosest = closest
		s.step++
		s.logger.Printf("time: %.4f | iters: %d | con: %03d | min_dist: %.6f | k: %.3e | fric: %v",
			b.SimTime(), b.Iterations(), len(s.active), closest/s.scale, s.stiffness.Gain, friction)
		s.telemetry.RecordStep(telemetry.StepRecord{
			Step:        s.step,
			SimTime:     b.SimTime(),
			Iterations:  b.Iterations(),
			Contacts:    len(s.active),
			MinDistance: closest / s.scale,
			Stiffness:   s.stiffness.Gain,
			Friction:    friction,
		})
	}
	return nil
}

func scaleSlice(buf []float64, scale float64) {
	if scale == 1 {
		return
	}
	for i := range buf {
		buf[i] *= scale
	}
}
