package motion

// CanonicalFPS is the cadence derivatives are normalized to.
const CanonicalFPS = 30.0

// State is the motion of the tracked blob at the current frame. It is only
// meaningful when Position is not the Sentinel.
type State struct {
	Position     Vec3 `json:"position"`
	Velocity     Vec3 `json:"velocity"`
	Acceleration Vec3 `json:"acceleration"`
}

// Valid reports whether the state carries a detection.
func (s State) Valid() bool {
	return !s.Position.IsSentinel()
}

// LostState is the state published while nothing is detected.
var LostState = State{Position: Sentinel}

// DeltaT converts a measured frame rate into the time step used for derivatives.
// The step is measured in canonical 30 fps frames, so it does not follow every
// jitter of the real inter-frame interval.
//
// Arguments:
//   - measuredFPS: The measured frame rate.
//   - fallbackFPS: Used while nothing has been measured yet.
//
// Returns:
//   - float32: measured / 30, or fallback / 30, or 1 when both are unusable.
func DeltaT(measuredFPS, fallbackFPS float32) float32 {
	switch {
	case measuredFPS > 0:
		return measuredFPS / CanonicalFPS
	case fallbackFPS > 0:
		return fallbackFPS / CanonicalFPS
	default:
		return 1
	}
}

// Estimator writes detections into a History and derives position, velocity and
// acceleration from the newest three samples.
type Estimator struct {
	history   *History
	smoothing bool
	state     State
}

// NewEstimator creates an estimator writing into h.
func NewEstimator(h *History, smoothing bool) *Estimator {
	return &Estimator{history: h, smoothing: smoothing, state: LostState}
}

// SetSmoothing toggles the 3-tap low-pass filter on stored positions.
func (e *Estimator) SetSmoothing(on bool) {
	e.smoothing = on
}

// Smoothing reports whether the low-pass filter is on.
func (e *Estimator) Smoothing() bool {
	return e.smoothing
}

// History returns the buffer the estimator writes to.
func (e *Estimator) History() *History {
	return e.history
}

// State returns the motion state of the current frame.
func (e *Estimator) State() State {
	return e.state
}

// Update records the normalized position v in the current history slot and
// recomputes the motion state. The caller advances the history first.
//
// The two previous slots are bootstrapped when they hold no detection: a missing
// previous sample takes v, a missing sample before that takes the previous one.
// With smoothing on the stored position is (3v + 2vm1 + vm2) / 6. Velocity and
// acceleration always use the unsmoothed v against the bootstrapped neighbours.
// Acceleration is the backward second difference, i.e. it describes the previous
// frame rather than this one.
//
// Arguments:
//   - v: The new position in normalized space.
//   - dt: The time step from DeltaT; values <= 0 are treated as 1.
//
// Returns:
//   - State: The new motion state.
func (e *Estimator) Update(v Vec3, dt float32) State {
	if dt <= 0 {
		dt = 1
	}

	vm1 := e.history.Offset(-1)
	vm2 := e.history.Offset(-2)
	if vm1.IsSentinel() {
		vm1 = v
	}
	if vm2.IsSentinel() {
		vm2 = vm1
	}

	position := v
	if e.smoothing {
		position = v.Scale(3).Add(vm1.Scale(2)).Add(vm2).Div(6)
	}
	e.history.Put(position)

	e.state = State{
		Position:     position,
		Velocity:     v.Sub(vm1).Div(dt),
		Acceleration: vm2.Sub(vm1.Scale(2)).Add(v).Div(dt * dt),
	}
	return e.state
}

// Lose marks the current slot as "no detection" and zeroes the motion state.
// Nothing is smoothed across a gap.
func (e *Estimator) Lose() State {
	e.history.Put(Sentinel)
	e.state = LostState
	return e.state
}
