// Package sim provides a deterministic linear stand-in for the real force
// models, numerical integrators and ground-station geometry an orbit
// determination pipeline depends on (the od.Propagator and
// od.MeasurementDevice collaborators). It exists for tests and worked
// examples; production use wires real dynamics and device models against
// the same interfaces.
package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
	"github.com/skyward-nav/go-od/matrix"
)

// LinearPropagator advances x(t) = exp(A*(t-t0))*x0, a linear time-invariant
// system, and reports the state-transition matrix accumulated since its last
// retrieval. It implements od.Propagator.
//
// The matrix exponential is computed the way the teacher's continuous-time
// model converts to discrete time (System.A scaled by the step and
// exponentiated via (*mat.Dense).Exp), applied here per call to
// PropagateUntil instead of once at construction.
type LinearPropagator struct {
	sys System

	t0 epoch.Epoch
	t  epoch.Epoch

	x    *mat.VecDense
	xEst *mat.VecDense

	stmAccum *mat.Dense
}

// NewLinearPropagator creates a LinearPropagator seeded at (t0, x0) with
// dynamics matrix A. C, if non-nil, is used by a LinearDevice built from the
// same System to compute observations.
func NewLinearPropagator(sys System, t0 epoch.Epoch, x0 mat.Vector) (*LinearPropagator, error) {
	if sys.A == nil {
		return nil, fmt.Errorf("sim: system matrix must be defined")
	}
	n, _ := sys.A.Dims()
	if x0.Len() != n {
		return nil, fmt.Errorf("sim: initial state has wrong dimension: got %d, want %d", x0.Len(), n)
	}

	x := mat.NewVecDense(n, nil)
	x.CloneFromVec(x0)
	xEst := mat.NewVecDense(n, nil)
	xEst.CloneFromVec(x0)

	return &LinearPropagator{
		sys:      sys,
		t0:       t0,
		t:        t0,
		x:        x,
		xEst:     xEst,
		stmAccum: matrix.Identity(n),
	}, nil
}

// PropagateUntil advances the reference trajectory by dt and accumulates the
// step's state-transition matrix into the running total returned by STM.
func (p *LinearPropagator) PropagateUntil(dt epoch.Duration) error {
	phi := stepSTM(p.sys.A, dt)

	next := &mat.Dense{}
	next.Mul(phi, p.x)
	p.x = mat.VecDenseCopyOf(next.ColView(0))
	p.xEst = mat.VecDenseCopyOf(p.x)
	p.t = p.t.Add(dt)

	accum := &mat.Dense{}
	accum.Mul(phi, p.stmAccum)
	p.stmAccum = accum

	return nil
}

// CurrentState returns the propagator's current epoch and reference state.
func (p *LinearPropagator) CurrentState() (epoch.Epoch, mat.Vector) {
	return p.t, p.x
}

// STM returns the state-transition matrix accumulated since the last call to
// STM (or since construction), then resets the accumulator to identity.
func (p *LinearPropagator) STM() *mat.Dense {
	out := mat.DenseCopyOf(p.stmAccum)
	n, _ := p.sys.A.Dims()
	p.stmAccum = matrix.Identity(n)
	return out
}

// EstimatedState returns the reference trajectory's current notion of the
// estimated state.
func (p *LinearPropagator) EstimatedState() mat.Vector {
	return p.xEst
}

// SetEstimatedState absorbs a filter deviation into the reference
// trajectory, used only in EKF feedback.
func (p *LinearPropagator) SetEstimatedState(x mat.Vector) {
	p.xEst = mat.NewVecDense(x.Len(), nil)
	p.xEst.CloneFromVec(x)
	p.x = mat.NewVecDense(x.Len(), nil)
	p.x.CloneFromVec(x)
}

// Reseed re-initializes the reference trajectory and clock to (x0, t0) and
// resets the STM accumulator, used at the start of each outer iteration.
func (p *LinearPropagator) Reseed(x0 mat.Vector, t0 epoch.Epoch) error {
	n, _ := p.sys.A.Dims()
	if x0.Len() != n {
		return fmt.Errorf("sim: reseed state has wrong dimension: got %d, want %d", x0.Len(), n)
	}
	p.x = mat.NewVecDense(n, nil)
	p.x.CloneFromVec(x0)
	p.xEst = mat.NewVecDense(n, nil)
	p.xEst.CloneFromVec(x0)
	p.t0 = t0
	p.t = t0
	p.stmAccum = matrix.Identity(n)
	return nil
}

// stepSTM returns exp(A*dt), the state-transition matrix for a linear
// time-invariant system advanced by dt.
func stepSTM(a *mat.Dense, dt epoch.Duration) *mat.Dense {
	n, _ := a.Dims()
	scaled := mat.NewDense(n, n, nil)
	scaled.Scale(dt.Seconds(), a)

	phi := mat.NewDense(n, n, nil)
	phi.Exp(scaled)
	return phi
}
