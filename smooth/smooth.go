// Package smooth defines the Smoother collaborator interface implemented by
// smooth/rts.Smoother.
package smooth

import "github.com/skyward-nav/go-od/estimate"

// Smoother refines a forward-filtered estimate sequence using a backward
// pass over future information.
type Smoother interface {
	Smooth(est []*estimate.Estimate, processNoiseEnabled bool) ([]*estimate.Estimate, error)
}
