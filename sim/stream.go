package sim

import (
	od "github.com/skyward-nav/go-od"
	"github.com/skyward-nav/go-od/epoch"
)

// Stream fully pre-propagates prop over span in fixed steps, exactly as
// spec.md's streaming mode requires ("the propagator is fully drained before
// consumption begins"), then returns a closed, fully buffered channel of the
// resulting od.ReferenceSamples for process.ODProcess to drain
// non-blockingly.
func Stream(prop *LinearPropagator, step, span epoch.Duration) (<-chan od.ReferenceSample, error) {
	n := int(span.Seconds()/step.Seconds()) + 1
	out := make(chan od.ReferenceSample, n)

	var elapsed epoch.Duration
	for elapsed < span {
		next := step
		if elapsed+step > span {
			next = span - elapsed
		}
		if err := prop.PropagateUntil(next); err != nil {
			close(out)
			return out, err
		}
		elapsed += next

		t, _ := prop.CurrentState()
		out <- od.ReferenceSample{Epoch: t, STM: prop.STM()}
	}
	close(out)

	return out, nil
}
