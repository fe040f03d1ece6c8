// Package estimate holds the filter's state records: Estimate, the initial
// condition it is seeded from, and Residual, the observation-minus-predicted
// record produced by each measurement update.
package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
)

// InitCond is the initial state and covariance a filter is seeded with.
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond clones state and cov into a new InitCond.
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := mat.NewVecDense(state.Len(), nil)
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{state: s, cov: c}
}

// State returns a copy of the initial state.
func (c *InitCond) State() mat.Vector {
	s := mat.NewVecDense(c.state.Len(), nil)
	s.CloneFromVec(c.state)
	return s
}

// Cov returns a copy of the initial covariance.
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)
	return cov
}

// Estimate is an immutable-ish record of a filter estimate at an epoch.
//
// In CKF mode State is a deviation from the propagator's reference
// trajectory; in EKF mode it is the zero vector right after a time update
// (the deviation having been absorbed into the reference) and the latest
// measurement deviation right after a measurement update.
type Estimate struct {
	Epoch     epoch.Epoch
	State     *mat.VecDense
	Covar     *mat.SymDense
	STM       *mat.Dense // valid from the previous estimate's epoch to this one
	Predicted bool       // true if produced by a time update only
}

// New builds an Estimate, cloning its matrix/vector arguments so the caller
// may keep mutating its own working copies.
func New(t epoch.Epoch, state mat.Vector, covar mat.Symmetric, stm *mat.Dense, predicted bool) *Estimate {
	s := mat.NewVecDense(state.Len(), nil)
	s.CloneFromVec(state)

	c := mat.NewSymDense(covar.SymmetricDim(), nil)
	c.CopySym(covar)

	var phi *mat.Dense
	if stm != nil {
		phi = mat.DenseCopyOf(stm)
	}

	return &Estimate{Epoch: t, State: s, Covar: c, STM: phi, Predicted: predicted}
}

// Clone returns a deep copy of e.
func (e *Estimate) Clone() *Estimate {
	return New(e.Epoch, e.State, e.Covar, e.STM, e.Predicted)
}

// String implements fmt.Stringer.
func (e *Estimate) String() string {
	return fmt.Sprintf("Estimate{epoch=%s state=%v predicted=%v}", e.Epoch, mat.Formatted(e.State.T()), e.Predicted)
}

// Residual is an observation minus its predicted observation, produced by a
// single measurement update.
type Residual struct {
	Epoch    epoch.Epoch
	Prefit   *mat.VecDense // z - h(x-)
	Postfit  *mat.VecDense // z - h(x_hat)
	Accepted bool
}

// NewResidual clones prefit/postfit into a new Residual.
func NewResidual(t epoch.Epoch, prefit, postfit mat.Vector, accepted bool) *Residual {
	pre := mat.NewVecDense(prefit.Len(), nil)
	pre.CloneFromVec(prefit)

	post := mat.NewVecDense(postfit.Len(), nil)
	post.CloneFromVec(postfit)

	return &Residual{Epoch: t, Prefit: pre, Postfit: post, Accepted: accepted}
}
