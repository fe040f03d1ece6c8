// Package noise provides process- and measurement-noise sources shared by
// the filter kernel and the smoother's precondition checks.
package noise

import "gonum.org/v1/gonum/mat"

// Noise is a (possibly degenerate) noise source with a mean and covariance.
type Noise interface {
	// Sample draws a single sample from the noise distribution.
	Sample() mat.Vector
	// Cov returns the noise covariance matrix.
	Cov() mat.Symmetric
	// Mean returns the noise mean.
	Mean() []float64
	// Reset re-initializes the noise source (e.g. a fresh random seed).
	// It returns an error if the source cannot be reconstructed.
	Reset() error
}
