package process

import (
	"gonum.org/v1/gonum/mat"

	"github.com/skyward-nav/go-od/epoch"
	"github.com/skyward-nav/go-od/estimate"
	"github.com/skyward-nav/go-od/kalman/trigger"
)

// IterationConfig bounds the outer iterated-filter loop driven by Iterate.
type IterationConfig struct {
	AbsTol        float64
	RelTol        float64
	MaxIterations int
}

// DefaultIterationConfig returns the tolerances and iteration cap used when
// a Config is built with a zero-value IterationConfig.
func DefaultIterationConfig() IterationConfig {
	return IterationConfig{AbsTol: 1e-1, RelTol: 1e-2, MaxIterations: 10}
}

// Config configures an ODProcess driver.
type Config struct {
	// SimultaneousMsr, when true, processes every visible device at a given
	// epoch instead of stopping at the first one.
	SimultaneousMsr bool
	// InitialEstimate seeds the filter kernel.
	InitialEstimate *estimate.InitCond
	// MeasurementNoise is the filter's R matrix.
	MeasurementNoise mat.Symmetric
	// Trigger decides when the driver switches the kernel from CKF to EKF.
	// Defaults to trigger.Never{} if nil.
	Trigger trigger.Trigger
	// Iteration bounds Iterate. Defaults to DefaultIterationConfig() if the
	// zero value.
	Iteration IterationConfig
}

// Measurement is a single real observation fed to the driver: the epoch it
// was taken at and the observed value. The predicted observation and its
// sensitivity come from the device(s) registered with the driver.
type Measurement struct {
	Epoch epoch.Epoch
	Real  mat.Vector
}
