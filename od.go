// Package od defines the collaborator interfaces an orbit-determination
// pipeline is built from: a Propagator advancing a reference trajectory and
// exposing its state-transition matrix, and a MeasurementDevice producing
// Measurements against a propagated state.
//
// Force models, numerical integrators, ephemerides and ground-station
// geometry are collaborators implementing these interfaces; this package
// never implements them itself.
package od

import (
	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
)

// Propagator advances a reference trajectory and reports the state
// transition matrix (STM) accumulated since the last retrieval.
type Propagator interface {
	// PropagateUntil advances the propagator's internal clock by dt.
	PropagateUntil(dt epoch.Duration) error
	// CurrentState returns the propagator's current epoch and reference state.
	CurrentState() (epoch.Epoch, mat.Vector)
	// STM returns the state-transition matrix accumulated since the last
	// call to STM (or since construction), then resets the accumulator.
	STM() *mat.Dense
	// EstimatedState returns the reference trajectory's current notion of
	// the estimated state, used only in EKF feedback.
	EstimatedState() mat.Vector
	// SetEstimatedState absorbs a filter deviation into the reference
	// trajectory, used only in EKF feedback.
	SetEstimatedState(x mat.Vector)
	// Reseed re-initializes the propagator's reference trajectory and clock
	// to (x0, t0), used at the start of each outer iteration.
	Reseed(x0 mat.Vector, t0 epoch.Epoch) error
}

// ReferenceSample is one element of a Propagator's streaming output: a
// reference state's epoch together with the STM valid up to that epoch.
type ReferenceSample struct {
	Epoch epoch.Epoch
	STM   *mat.Dense
}

// Measurement is a single device observation: its value, the Jacobian of
// the observation function with respect to state ("H tilde"), and whether
// the device actually saw the target.
type Measurement interface {
	Observation() mat.Vector
	Sensitivity() *mat.Dense
	Visible() bool
}

// MeasurementDevice computes a predicted Measurement for a given propagated
// state. It returns ok=false if the device has no opinion on this input
// (e.g. the input isn't the kind it measures).
type MeasurementDevice interface {
	Measure(input mat.Vector) (m Measurement, ok bool)
}
