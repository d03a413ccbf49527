package control_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/lumabox/illumctl/internal/control"
	"codeberg.org/lumabox/illumctl/internal/errors"
)

type fixedSignal struct {
	mu    sync.Mutex
	value float64
}

func (s *fixedSignal) BatchOutput() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *fixedSignal) set(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
}

type recordingActuator struct {
	mu      sync.Mutex
	applied []float64
	fail    bool
}

func (a *recordingActuator) SetPower(desired float64) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return 0, errors.New().New(control.ErrActuatorFailed)
	}
	a.applied = append(a.applied, desired)
	return desired, nil
}

func (a *recordingActuator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

func (a *recordingActuator) setFail(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail = fail
}

func stopControlLoop(t *testing.T, loop *control.Loop) {
	t.Helper()
	loop.RequestStop()
	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("control loop did not stop")
	}
}

func TestLoopRejectsBadWiring(t *testing.T) {
	ctrl := control.NewManual(0)
	sig := &fixedSignal{}
	act := &recordingActuator{}

	_, err := control.NewLoop(control.LoopConfig{Signal: sig, Actuator: act, Interval: time.Second})
	assert.True(t, errors.HasCode(err, control.ErrNilController))

	_, err = control.NewLoop(control.LoopConfig{Controller: ctrl, Actuator: act, Interval: time.Second})
	assert.True(t, errors.HasCode(err, control.ErrNilSignal))

	_, err = control.NewLoop(control.LoopConfig{Controller: ctrl, Signal: sig, Interval: time.Second})
	assert.True(t, errors.HasCode(err, control.ErrNilActuator))

	_, err = control.NewLoop(control.LoopConfig{
		Controller: ctrl, Signal: sig, Actuator: act,
		Interval: 50 * time.Millisecond,
	})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidTickRate))
}

func TestLoopTicksController(t *testing.T) {
	ctrl := control.NewPI(1.0, 0, 0, 50)
	ctrl.SetSetpoint(30)
	sig := &fixedSignal{value: 10}
	act := &recordingActuator{}

	loop, err := control.NewLoop(control.LoopConfig{
		Controller: ctrl,
		Signal:     sig,
		Actuator:   act,
		Interval:   control.MinTickInterval,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())

	require.Eventually(t, func() bool { return act.count() >= 2 },
		2*time.Second, 5*time.Millisecond)

	stopControlLoop(t, loop)
	assert.Equal(t, control.Stopped, loop.State())

	// Pure proportional: output = kp * (setpoint - signal) = 20.
	assert.InDelta(t, 20.0, loop.LastOutput(), 1e-9)
	assert.InDelta(t, 20.0, loop.LastApplied(), 1e-9)
}

func TestLoopRetainsPreviousOnActuatorFailure(t *testing.T) {
	ctrl := control.NewManual(15)
	sig := &fixedSignal{}
	act := &recordingActuator{}

	loop, err := control.NewLoop(control.LoopConfig{
		Controller: ctrl,
		Signal:     sig,
		Actuator:   act,
		Interval:   control.MinTickInterval,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())

	require.Eventually(t, func() bool { return act.count() >= 1 },
		2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 15.0, loop.LastOutput(), 1e-9)

	// Subsequent ticks fail at the device; the last good output stands.
	act.setFail(true)
	ctrl.SetSetpoint(40)
	time.Sleep(3 * control.MinTickInterval)

	assert.InDelta(t, 15.0, loop.LastOutput(), 1e-9)
	assert.InDelta(t, 15.0, loop.LastApplied(), 1e-9)

	stopControlLoop(t, loop)
}

func TestLoopSetTickInterval(t *testing.T) {
	ctrl := control.NewManual(0)
	sig := &fixedSignal{}
	act := &recordingActuator{}

	loop, err := control.NewLoop(control.LoopConfig{
		Controller: ctrl,
		Signal:     sig,
		Actuator:   act,
		Interval:   time.Second,
	})
	require.NoError(t, err)

	err = loop.SetTickInterval(10 * time.Millisecond)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidTickRate))

	require.NoError(t, loop.Start())
	require.NoError(t, loop.SetTickInterval(control.MinTickInterval))

	// The shorter interval takes effect well before the original
	// one-second tick would have fired.
	require.Eventually(t, func() bool { return act.count() >= 2 },
		700*time.Millisecond, 5*time.Millisecond)

	stopControlLoop(t, loop)
}

func TestLoopRejectsReentrantStart(t *testing.T) {
	ctrl := control.NewManual(0)
	sig := &fixedSignal{}
	act := &recordingActuator{}

	loop, err := control.NewLoop(control.LoopConfig{
		Controller: ctrl,
		Signal:     sig,
		Actuator:   act,
		Interval:   control.MinTickInterval,
	})
	require.NoError(t, err)
	require.NoError(t, loop.Start())

	err = loop.Start()
	assert.True(t, errors.HasCode(err, control.ErrLoopRunning))

	stopControlLoop(t, loop)
}
