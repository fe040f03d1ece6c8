package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	od "github.com/skyward-nav/go-od"
)

// LinearObservation is a LinearDevice's Measurement: a fixed sensitivity
// matrix H (the device's output matrix C, constant for a linear device) and
// the observation y = C*x.
type LinearObservation struct {
	y       *mat.VecDense
	h       *mat.Dense
	visible bool
}

// Observation returns the predicted observation.
func (o *LinearObservation) Observation() mat.Vector { return o.y }

// Sensitivity returns the observation's Jacobian with respect to state,
// constant for a linear device.
func (o *LinearObservation) Sensitivity() *mat.Dense { return o.h }

// Visible reports whether the device considers this input observable.
func (o *LinearObservation) Visible() bool { return o.visible }

// LinearDevice computes y = C*x against a propagated reference state, always
// reporting itself visible unless explicitly disabled. It implements
// od.MeasurementDevice and is grounded on the teacher's System.Observe.
type LinearDevice struct {
	c       *mat.Dense
	enabled bool
}

// NewLinearDevice creates a LinearDevice with observation matrix c.
func NewLinearDevice(c *mat.Dense) (*LinearDevice, error) {
	if c == nil {
		return nil, fmt.Errorf("sim: observation matrix must be defined")
	}
	return &LinearDevice{c: c, enabled: true}, nil
}

// SetEnabled toggles whether the device reports visibility, used by tests to
// exercise a station dropping out of view.
func (d *LinearDevice) SetEnabled(enabled bool) { d.enabled = enabled }

// Measure computes the predicted observation for the given state.
func (d *LinearDevice) Measure(input mat.Vector) (od.Measurement, bool) {
	if !d.enabled {
		return nil, false
	}

	rows, cols := d.c.Dims()
	if input.Len() != cols {
		return nil, false
	}

	out := &mat.Dense{}
	out.Mul(d.c, input)
	y := mat.NewVecDense(rows, nil)
	y.CopyVec(out.ColView(0))

	return &LinearObservation{y: y, h: d.c, visible: true}, true
}
