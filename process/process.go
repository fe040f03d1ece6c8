// Package process implements the orbit-determination driver (component C6):
// the batch and streaming measurement-processing loops, covariance mapping,
// and the outer iterated-filter loop, built around a kalman/kf.KF kernel and
// a collaborator Propagator/MeasurementDevice pair.
package process

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	od "github.com/skyward-nav/go-od"
	"github.com/skyward-nav/go-od/estimate"
	"github.com/skyward-nav/go-od/kalman/kf"
	"github.com/skyward-nav/go-od/kalman/trigger"
	"github.com/skyward-nav/go-od/matrix"
	"github.com/skyward-nav/go-od/smooth/rts"
)

// ErrNoMeasurements is returned by any processing entry point invoked with
// an empty measurement batch.
var ErrNoMeasurements = errors.New("process: no measurements supplied")

// ODProcess drives a filter kernel against a propagator and a set of
// measurement devices, accumulating estimates and residuals.
type ODProcess struct {
	cfg      Config
	kf       *kf.KF
	prop     od.Propagator
	devices  []od.MeasurementDevice
	smoother *rts.Smoother

	estimates []*estimate.Estimate
	residuals []*estimate.Residual
}

// New creates an ODProcess driving prop and devices according to cfg.
func New(prop od.Propagator, devices []od.MeasurementDevice, cfg Config) (*ODProcess, error) {
	if prop == nil {
		return nil, fmt.Errorf("process: nil propagator")
	}
	if cfg.InitialEstimate == nil {
		return nil, fmt.Errorf("process: nil initial estimate")
	}
	if cfg.MeasurementNoise == nil {
		return nil, fmt.Errorf("process: nil measurement noise")
	}
	if cfg.Trigger == nil {
		cfg.Trigger = trigger.Never{}
	}
	if cfg.Iteration == (IterationConfig{}) {
		cfg.Iteration = DefaultIterationConfig()
	}

	f, err := kf.New(cfg.InitialEstimate, cfg.MeasurementNoise)
	if err != nil {
		return nil, err
	}

	return &ODProcess{
		cfg:      cfg,
		kf:       f,
		prop:     prop,
		devices:  devices,
		smoother: rts.New(),
	}, nil
}

// Estimates returns the accumulated estimate sequence in epoch-monotone
// order.
func (p *ODProcess) Estimates() []*estimate.Estimate {
	out := make([]*estimate.Estimate, len(p.estimates))
	copy(out, p.estimates)
	return out
}

// Residuals returns the accumulated residual sequence in epoch-monotone
// order.
func (p *ODProcess) Residuals() []*estimate.Residual {
	out := make([]*estimate.Residual, len(p.residuals))
	copy(out, p.residuals)
	return out
}

// KF exposes the underlying filter kernel, mainly so tests and diagnostics
// can inspect its mode (CKF/EKF) and process-noise configuration.
func (p *ODProcess) KF() *kf.KF { return p.kf }

// ProcessMeasurements runs the batch mode of spec.md section 4.4: measurements
// drive propagation step by step, in chronological order.
func (p *ODProcess) ProcessMeasurements(measurements []Measurement) error {
	if len(measurements) == 0 {
		return ErrNoMeasurements
	}

	prevT, _ := p.prop.CurrentState()
	for _, m := range measurements {
		dt := m.Epoch.Sub(prevT)
		if err := p.prop.PropagateUntil(dt); err != nil {
			return err
		}
		prevT = m.Epoch

		stm := p.prop.STM()

		updated, err := p.applyMeasurement(m, stm)
		if err != nil {
			return err
		}
		if !updated {
			p.kf.SetSTM(stm)
			est, err := p.kf.TimeUpdate(m.Epoch)
			if err != nil {
				return err
			}
			p.estimates = append(p.estimates, est)
		}
	}

	return nil
}

// ProcessMeasurementsCovar runs the streaming mode of spec.md section 4.4: a
// propagator emits reference states continuously on propStream, already
// fully drained by the time this is called, and measurements are consumed
// as their epoch matches a propagated sample.
func (p *ODProcess) ProcessMeasurementsCovar(propStream <-chan od.ReferenceSample, measurements []Measurement) error {
	if len(measurements) == 0 {
		return ErrNoMeasurements
	}

	mi := 0
	for {
		var sample od.ReferenceSample
		select {
		case s, ok := <-propStream:
			if !ok {
				return nil
			}
			sample = s
		default:
			return nil
		}

		handledAny := false
	consumeMeasurements:
		for mi < len(measurements) {
			m := measurements[mi]
			switch {
			case m.Epoch.Before(sample.Epoch):
				log.Warn().
					Str("measurement_epoch", m.Epoch.String()).
					Str("stream_epoch", sample.Epoch.String()).
					Msg("missed measurement: reference stream already past this epoch")
				mi++
			case m.Epoch.After(sample.Epoch):
				break consumeMeasurements
			default:
				updated, err := p.applyMeasurement(m, sample.STM)
				if err != nil {
					return err
				}
				handledAny = handledAny || updated
				mi++
			}
		}

		if !handledAny {
			p.kf.SetSTM(sample.STM)
			est, err := p.kf.TimeUpdate(sample.Epoch)
			if err != nil {
				return err
			}
			p.estimates = append(p.estimates, est)
		}
	}
}

// MapCovar maps the covariance forward over propStream with no measurement
// updates: a pure time-update pass.
func (p *ODProcess) MapCovar(propStream <-chan od.ReferenceSample) error {
	for {
		select {
		case sample, ok := <-propStream:
			if !ok {
				return nil
			}
			p.kf.SetSTM(sample.STM)
			est, err := p.kf.TimeUpdate(sample.Epoch)
			if err != nil {
				return err
			}
			p.estimates = append(p.estimates, est)
		default:
			return nil
		}
	}
}

// Iterate runs the classical iterated-filter outer loop: a forward pass, a
// smoother pass, then a re-seed of both the propagator and the filter
// kernel from the smoothed initial estimate, repeating until the change in
// the initial state falls below cfg's tolerances or cfg.MaxIterations is
// reached. cfg is taken per call, not the Config.Iteration captured at New,
// so the same ODProcess can be iterated with different tolerances across
// calls (e.g. a loose pass followed by a tight one). A zero-value cfg
// falls back to Config.Iteration, and if that is also zero-value, to
// DefaultIterationConfig.
func (p *ODProcess) Iterate(measurements []Measurement, cfg IterationConfig) error {
	if len(measurements) == 0 {
		return ErrNoMeasurements
	}
	if cfg == (IterationConfig{}) {
		cfg = p.cfg.Iteration
	}
	if cfg == (IterationConfig{}) {
		cfg = DefaultIterationConfig()
	}

	x0 := p.cfg.InitialEstimate.State()

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		p.estimates = nil
		p.residuals = nil

		if err := p.ProcessMeasurements(measurements); err != nil {
			return err
		}

		smoothed, err := p.smoother.Smooth(p.estimates, p.kf.HasProcessNoise())
		if err != nil {
			return err
		}
		if len(smoothed) == 0 {
			return fmt.Errorf("process: smoother produced no estimates")
		}

		x0New := mat.Vector(smoothed[0].State)

		absDelta := vecDistance(x0New, x0)
		relDelta := absDelta
		if n := mat.Norm(x0, 2); n != 0 {
			relDelta = absDelta / n
		}

		if err := p.prop.Reseed(x0New, smoothed[0].Epoch); err != nil {
			return err
		}
		p.kf.SeedFrom(smoothed[0])

		x0 = x0New

		if absDelta < cfg.AbsTol || relDelta < cfg.RelTol {
			return nil
		}
	}

	return nil
}

// applyMeasurement evaluates every device against the propagator's current
// reference state for measurement m, running measurement_update for each
// one that reports visible (stopping at the first unless SimultaneousMsr is
// set), handling EKF trigger evaluation and feedback. It reports whether any
// device produced an update.
func (p *ODProcess) applyMeasurement(m Measurement, stm *mat.Dense) (bool, error) {
	updated := false
	for _, dev := range p.devices {
		_, refState := p.prop.CurrentState()
		meas, ok := dev.Measure(refState)
		if !ok || !meas.Visible() {
			continue
		}

		phi := stm
		if prev := p.kf.PrevEstimate(); !prev.Predicted && prev.Epoch.Equal(m.Epoch) {
			// The kernel was already updated at this epoch, so no time has
			// elapsed since and this update's STM is the identity.
			n, _ := stm.Dims()
			phi = matrix.Identity(n)
		}
		p.kf.SetSTM(phi)
		p.kf.SetSensitivity(meas.Sensitivity())
		est, res, err := p.kf.MeasurementUpdate(m.Epoch, m.Real, meas.Observation())
		if err != nil {
			return updated, err
		}
		p.estimates = append(p.estimates, est)
		p.residuals = append(p.residuals, res)
		updated = true

		if !p.kf.IsExtended() {
			if p.cfg.Trigger.Enable(est, res) {
				p.kf.SetExtended(true)
				log.Info().Str("epoch", est.Epoch.String()).Msg("switching filter to EKF mode")
			}
		} else if sb, ok := p.cfg.Trigger.(*trigger.SigmaBounded); ok {
			// A sigma-bounded trigger keeps watching in EKF mode: a gap longer
			// than its DisableInterval commands the kernel back to CKF.
			sb.Enable(est, res)
			if sb.Disabled() {
				p.kf.SetExtended(false)
				sb.Reset()
				log.Info().Str("epoch", est.Epoch.String()).Msg("measurement gap: switching filter back to CKF mode")
			}
		}

		if p.kf.IsExtended() {
			absorbed := mat.NewVecDense(est.State.Len(), nil)
			absorbed.AddVec(p.prop.EstimatedState(), est.State)
			p.prop.SetEstimatedState(absorbed)
		}

		if !p.cfg.SimultaneousMsr {
			break
		}
	}
	return updated, nil
}

func vecDistance(a, b mat.Vector) float64 {
	d := mat.NewVecDense(a.Len(), nil)
	d.SubVec(a, b)
	return mat.Norm(d, 2)
}
