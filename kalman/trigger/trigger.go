// Package trigger implements pluggable decision objects that tell an
// ODProcess driver when to switch its filter kernel from CKF to EKF.
package trigger

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
	"github.com/skyward-nav/go-od/estimate"
)

// Trigger decides, given the latest estimate and residual produced by a
// measurement update, whether the filter should now run as an EKF.
type Trigger interface {
	// Enable reports whether the filter should switch to EKF mode.
	Enable(est *estimate.Estimate, res *estimate.Residual) bool
}

// Never never enables EKF mode; used for pure CKF runs.
type Never struct{}

// Enable always returns false.
func (Never) Enable(*estimate.Estimate, *estimate.Residual) bool { return false }

// AfterN enables EKF mode once N measurement updates have been observed.
type AfterN struct {
	N   int
	cur int
}

// NewAfterN creates an AfterN trigger firing after n measurements.
func NewAfterN(n int) *AfterN { return &AfterN{N: n} }

// Enable increments the internal counter and reports whether it has
// reached N.
func (a *AfterN) Enable(*estimate.Estimate, *estimate.Residual) bool {
	a.cur++
	return a.cur >= a.N
}

// SigmaBounded enables EKF mode once the last N consecutive measurement
// updates all had residuals within K standard deviations of zero (per
// spec.md §4.2, "within k·σ of zero" where σ is the measurement standard
// deviation), provided they were separated by no more than DisableInterval.
// A gap longer than DisableInterval resets the streak (and, once EKF has
// been enabled, signals the driver to fall back to CKF).
type SigmaBounded struct {
	N               int
	K               float64
	DisableInterval epoch.Duration

	sigma []float64 // per-component measurement standard deviation

	streak   int
	lastSeen epoch.Epoch
	haveLast bool
	disable  bool
}

// NewSigmaBounded creates a SigmaBounded trigger that compares each
// measurement's postfit residual against k*sigma_i, sigma_i the standard
// deviation of measurement component i taken from the diagonal of
// measurementNoise (the same R passed to kf.New). measurementNoise must be
// square with non-negative diagonal entries.
func NewSigmaBounded(n int, k float64, disableInterval epoch.Duration, measurementNoise mat.Symmetric) (*SigmaBounded, error) {
	if measurementNoise == nil {
		return nil, fmt.Errorf("trigger: nil measurement noise")
	}

	m := measurementNoise.SymmetricDim()
	sigma := make([]float64, m)
	for i := 0; i < m; i++ {
		v := measurementNoise.At(i, i)
		if v < 0 {
			return nil, fmt.Errorf("trigger: negative measurement noise variance at index %d", i)
		}
		sigma[i] = math.Sqrt(v)
	}

	return &SigmaBounded{N: n, K: k, DisableInterval: disableInterval, sigma: sigma}, nil
}

// Enable evaluates the residual against the k*sigma bound and tracks the
// gap since the last call.
func (s *SigmaBounded) Enable(est *estimate.Estimate, res *estimate.Residual) bool {
	s.disable = false

	if s.haveLast {
		gap := est.Epoch.Sub(s.lastSeen)
		if gap > s.DisableInterval {
			s.streak = 0
			if s.N > 0 {
				s.disable = true
			}
		}
	}
	s.lastSeen = est.Epoch
	s.haveLast = true

	if res.Accepted && s.withinSigma(res.Postfit) {
		s.streak++
	} else {
		s.streak = 0
	}

	return s.streak >= s.N
}

// Disabled reports whether the most recent call to Enable detected a gap
// longer than DisableInterval, signaling the driver to command the filter
// back to CKF.
func (s *SigmaBounded) Disabled() bool { return s.disable }

// Reset clears the accumulated streak, used after the driver disables EKF.
func (s *SigmaBounded) Reset() {
	s.streak = 0
	s.haveLast = false
	s.disable = false
}

func (s *SigmaBounded) withinSigma(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		bound := s.K * s.sigma[i]
		x := v.AtVec(i)
		if x > bound || x < -bound {
			return false
		}
	}
	return true
}
