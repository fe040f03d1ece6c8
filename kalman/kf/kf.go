// Package kf implements the filter kernel: a single Kalman filter that
// operates as either a Classical/linearized Kalman Filter (CKF) or an
// Extended Kalman Filter (EKF) depending on its Extended flag, exactly the
// way the original source's KF<S, M> toggles between the two (see
// original_source/src/od/kalman.rs).
//
// The kernel never propagates anything itself: the driver feeds it a fresh
// state-transition matrix and (for measurement updates) a fresh sensitivity
// matrix before each call, and the kernel fails closed if either is stale.
package kf

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
	"github.com/skyward-nav/go-od/estimate"
	"github.com/skyward-nav/go-od/matrix"
	"github.com/skyward-nav/go-od/noise"
)

var (
	// ErrSTMNotUpdated is returned when time_update or measurement_update is
	// called without a freshly set state-transition matrix.
	ErrSTMNotUpdated = errors.New("kf: state transition matrix not updated")
	// ErrSensitivityNotUpdated is returned when measurement_update is called
	// without a freshly set sensitivity matrix.
	ErrSensitivityNotUpdated = errors.New("kf: sensitivity matrix not updated")
	// ErrGainSingular is returned when the innovation covariance H*P*H'+R
	// cannot be inverted. The kernel state is left unchanged.
	ErrGainSingular = errors.New("kf: innovation covariance is singular")
	// ErrProcessNoiseEnabled classifies a sequence produced with a
	// non-degenerate process-noise source configured; consumed by
	// smooth/rts's precondition check, since such a sequence cannot be
	// smoothed under the zero-process-noise assumption.
	ErrProcessNoiseEnabled = errors.New("kf: sequence was filtered with process noise enabled")
)

// KF is the Classical/Extended Kalman filter kernel (component C3).
type KF struct {
	prevEstimate *estimate.Estimate
	r            mat.Symmetric // measurement noise R

	q noise.Noise // optional process noise (SNC); nil or *noise.None disables it

	stm           *mat.Dense
	hTilde        *mat.Dense
	stmUpdated    bool
	hTildeUpdated bool

	extended bool
}

// New creates a KF seeded with the given initial estimate and measurement
// noise. R must be square with dimension equal to the measurement size used
// in subsequent calls to SetSensitivity/MeasurementUpdate.
func New(initial *estimate.InitCond, r mat.Symmetric) (*KF, error) {
	if initial == nil {
		return nil, fmt.Errorf("kf: nil initial condition")
	}
	if r == nil {
		return nil, fmt.Errorf("kf: nil measurement noise")
	}

	s := initial.State().Len()
	id := mat.NewDense(s, s, nil)
	for i := 0; i < s; i++ {
		id.Set(i, i, 1)
	}

	prev := estimate.New(epoch.Epoch{}, initial.State(), initial.Cov(), id, false)

	return &KF{
		prevEstimate: prev,
		r:            r,
		q:            nil,
	}, nil
}

// SetProcessNoise configures an optional process-noise (SNC) source added
// to the predicted covariance in TimeUpdate. Pass nil (or *noise.None) to
// disable it again.
func (k *KF) SetProcessNoise(q noise.Noise) { k.q = q }

// HasProcessNoise reports whether a process-noise source other than nil or
// *noise.None is configured; a *noise.Zero source counts as configured. A
// sequence produced with this true must not be smoothed (see smooth/rts).
func (k *KF) HasProcessNoise() bool {
	if k.q == nil {
		return false
	}
	_, isNone := k.q.(*noise.None)
	return !isNone
}

// SetSTM stores the state-transition matrix to be used by the next call to
// TimeUpdate or MeasurementUpdate.
func (k *KF) SetSTM(phi *mat.Dense) {
	k.stm = phi
	k.stmUpdated = true
}

// SetSensitivity stores the measurement sensitivity matrix ("H tilde") to
// be used by the next call to MeasurementUpdate.
func (k *KF) SetSensitivity(h *mat.Dense) {
	k.hTilde = h
	k.hTildeUpdated = true
}

// IsExtended reports whether the kernel currently operates as an EKF.
func (k *KF) IsExtended() bool { return k.extended }

// SetExtended switches the kernel between CKF (false) and EKF (true) mode.
// Per spec this is expected to be one-way per run except under an explicit
// disable signal from the trigger policy; the kernel itself enforces
// nothing here, it just flips the bit the driver asks it to.
func (k *KF) SetExtended(extended bool) { k.extended = extended }

// PrevEstimate returns the most recently produced estimate.
func (k *KF) PrevEstimate() *estimate.Estimate { return k.prevEstimate }

// SeedFrom resets the kernel's previous estimate and clears both freshness
// bits, used by an outer iterated-filter loop to restart a forward pass from
// a smoothed initial estimate without losing the kernel's R/Q/extended
// configuration.
func (k *KF) SeedFrom(est *estimate.Estimate) {
	k.prevEstimate = est.Clone()
	k.stmUpdated = false
	k.hTildeUpdated = false
}

// Cov returns a copy of the current covariance.
func (k *KF) Cov() mat.Symmetric {
	n := k.prevEstimate.Covar.SymmetricDim()
	cov := mat.NewSymDense(n, nil)
	cov.CopySym(k.prevEstimate.Covar)
	return cov
}

// predictedCovar computes Φ·P·Φᵀ (+Q if configured) against prevEstimate.
func (k *KF) predictedCovar() *mat.Dense {
	covBar := &mat.Dense{}
	covBar.Mul(k.stm, k.prevEstimate.Covar)
	covBar.Mul(covBar, k.stm.T())

	if k.HasProcessNoise() {
		covBar.Add(covBar, k.q.Cov())
	}
	return covBar
}

// TimeUpdate advances the filter with a predict-only step: it requires a
// freshly set STM, propagates the covariance Φ·P·Φᵀ (+Q), and either zeroes
// the state (EKF, since the reference trajectory already absorbed it) or
// propagates the deviation Φ·x (CKF).
func (k *KF) TimeUpdate(t epoch.Epoch) (*estimate.Estimate, error) {
	if !k.stmUpdated {
		return nil, ErrSTMNotUpdated
	}

	covBar := k.predictedCovar()
	sym := matrix.Symmetrize(covBar)

	var stateBar *mat.VecDense
	if k.extended {
		stateBar = mat.NewVecDense(k.prevEstimate.State.Len(), nil)
	} else {
		sb := &mat.Dense{}
		sb.Mul(k.stm, k.prevEstimate.State)
		stateBar = mat.VecDenseCopyOf(sb.ColView(0))
	}

	est := estimate.New(t, stateBar, sym, k.stm, true)

	k.stmUpdated = false
	k.prevEstimate = est
	return est, nil
}

// MeasurementUpdate ingests a real and computed observation and corrects
// the state and covariance. It requires both a fresh STM and a fresh
// sensitivity matrix.
//
// On ErrGainSingular the kernel state is left entirely unchanged, so the
// driver may treat it as recoverable and skip the measurement.
func (k *KF) MeasurementUpdate(t epoch.Epoch, zReal, zComputed mat.Vector) (*estimate.Estimate, *estimate.Residual, error) {
	if !k.stmUpdated {
		return nil, nil, ErrSTMNotUpdated
	}
	if !k.hTildeUpdated {
		return nil, nil, ErrSensitivityNotUpdated
	}

	covBar := k.predictedCovar()

	hT := k.hTilde.T()
	phT := &mat.Dense{}
	phT.Mul(covBar, hT)

	innovCov := &mat.Dense{}
	innovCov.Mul(k.hTilde, phT)
	innovCov.Add(innovCov, k.r)

	innovCovInv, err := matrix.SafeInverse(innovCov)
	if err != nil {
		return nil, nil, ErrGainSingular
	}

	gain := &mat.Dense{}
	gain.Mul(phT, innovCovInv)

	y := &mat.VecDense{}
	y.SubVec(zReal, zComputed)

	var stateHat *mat.VecDense
	var postfit *mat.VecDense
	if k.extended {
		sh := &mat.Dense{}
		sh.Mul(gain, y)
		stateHat = mat.VecDenseCopyOf(sh.ColView(0))

		hky := &mat.Dense{}
		hky.Mul(k.hTilde, stateHat)
		pf := &mat.VecDense{}
		pf.SubVec(y, hky.ColView(0))
		postfit = pf
	} else {
		stateBar := &mat.Dense{}
		stateBar.Mul(k.stm, k.prevEstimate.State)

		hxBar := &mat.Dense{}
		hxBar.Mul(k.hTilde, stateBar)

		innovation := &mat.VecDense{}
		innovation.SubVec(y, hxBar.ColView(0))

		corr := &mat.Dense{}
		corr.Mul(gain, innovation)

		sh := &mat.Dense{}
		sh.Add(stateBar, corr)
		stateHat = mat.VecDenseCopyOf(sh.ColView(0))

		hx := &mat.Dense{}
		hx.Mul(k.hTilde, stateHat)
		pf := &mat.VecDense{}
		pf.SubVec(y, hx.ColView(0))
		postfit = pf
	}

	// Joseph-form covariance update: (I-KH)P(I-KH)' + KRK'
	n, _ := k.stm.Dims()
	id := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		id.SetDiag(i, 1)
	}
	kh := &mat.Dense{}
	kh.Mul(gain, k.hTilde)
	imkh := &mat.Dense{}
	imkh.Sub(id, kh)

	left := &mat.Dense{}
	left.Mul(imkh, covBar)
	left.Mul(left, imkh.T())

	kr := &mat.Dense{}
	kr.Mul(gain, k.r)
	krkt := &mat.Dense{}
	krkt.Mul(kr, gain.T())

	pCorr := &mat.Dense{}
	pCorr.Add(left, krkt)
	sym := matrix.Symmetrize(pCorr)

	est := estimate.New(t, stateHat, sym, k.stm, false)
	res := estimate.NewResidual(t, y, postfit, true)

	k.stmUpdated = false
	k.hTildeUpdated = false
	k.prevEstimate = est
	return est, res, nil
}
