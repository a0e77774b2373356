package telemetry

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestManager() *Manager {
	return NewManager(log.New(io.Discard, "", 0))
}

func TestRecordStepCounters(t *testing.T) {
	m := newTestManager()

	m.RecordStep(StepRecord{Step: 1, Contacts: 2, Friction: true})
	m.RecordStep(StepRecord{Step: 2, Contacts: 0, Friction: false})
	m.RecordStep(StepRecord{Step: 3, Contacts: 1, Friction: false})

	assert.Equal(t, 3, m.Counter("steps"))
	assert.Equal(t, 2, m.Counter("contact_steps"))
	assert.Equal(t, 1, m.Counter("friction_steps"))
	assert.Zero(t, m.Counter("hessian_fallbacks"))
}

func TestRecordFallback(t *testing.T) {
	m := newTestManager()
	m.RecordFallback()
	m.RecordFallback()
	assert.Equal(t, 2, m.Counter("hessian_fallbacks"))
}

func TestRecentWindowIsBounded(t *testing.T) {
	m := newTestManager()
	for i := 0; i < 450; i++ {
		m.RecordStep(StepRecord{Step: uint64(i)})
	}

	recent := m.Recent()
	assert.Len(t, recent, 200)
	assert.Equal(t, uint64(250), recent[0].Step)
	assert.Equal(t, uint64(449), recent[len(recent)-1].Step)
	assert.Equal(t, 450, m.Counter("steps"))
}

func TestDisabledManagerRecordsNothing(t *testing.T) {
	m := newTestManager()
	m.SetEnabled(false)
	m.RecordStep(StepRecord{Step: 1, Contacts: 3})

	assert.Empty(t, m.Recent())
	assert.Zero(t, m.Counter("steps"))
}

func TestRecentReturnsCopy(t *testing.T) {
	m := newTestManager()
	m.RecordStep(StepRecord{Step: 7, MinDistance: 0.05})

	recent := m.Recent()
	recent[0].MinDistance = 99

	assert.Equal(t, 0.05, m.Recent()[0].MinDistance)
}
