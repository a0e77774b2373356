package contact

// StiffnessController adapts the scalar penalty gain from the trend of the
// closest-approach distance. It is a hysteretic scheduler, not a physical
// quantity: the gain decays slowly while the rod separates comfortably and
// grows in graded steps as the closest approach sinks below the contact
// length. No floor or ceiling is applied.
type StiffnessController struct {
	ContactLen float64
	Gain       float64
}

func NewStiffnessController(contactLen, initialGain float64) *StiffnessController {
	return &StiffnessController{ContactLen: contactLen, Gain: initialGain}
}

// Update advances the gain once per physical timestep given the current and
// previous global minimum pair distance, and returns the new gain.
func (s *StiffnessController) Update(curr, last float64) float64 {
	diff := curr - last
	switch {
	case curr > s.ContactLen+0.005 && diff > 0:
		s.Gain *= 0.999
	case diff < 0:
		switch {
		case curr < s.ContactLen-0.004:
			s.Gain *= 1.01
		case curr < s.ContactLen-0.002:
			s.Gain *= 1.005
		case curr < s.ContactLen-0.001:
			s.Gain *= 1.003
		case curr < s.ContactLen:
			s.Gain *= 1.001
		}
	}
	return s.Gain
}
