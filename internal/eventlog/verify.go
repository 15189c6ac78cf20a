package eventlog

import (
	"errors"
	"fmt"
)

// ErrInvalidTransitions describes a run history that breaks the transition rules.
var ErrInvalidTransitions = errors.New("invalid transition log")

// VerifyTransitions checks that events (oldest first, one run) form a valid
// history for the given stage order: one pipeline_started, then stage events
// in order with no gaps, then at most one terminal event. A pipeline_failed
// must follow the failing stage's error event or the last ok stage; a
// pipeline_succeeded requires every stage to be ok. Histories of runs still
// in flight have no terminal event and are accepted.
func VerifyTransitions(events []Event, stages []string) error {
	if len(events) == 0 {
		return nil
	}
	if events[0].Kind != KindPipelineStarted {
		return fmt.Errorf("%w: first event is %q", ErrInvalidTransitions, events[0].Kind)
	}

	next := 0
	stageFailed := false
	for i := 1; i < len(events); i++ {
		evt := events[i]
		switch evt.Kind {
		case KindPipelineStarted:
			return fmt.Errorf("%w: duplicate pipeline_started at event %d", ErrInvalidTransitions, evt.ID)
		case KindPipelineSucceeded:
			if i != len(events)-1 {
				return fmt.Errorf("%w: events after pipeline_succeeded", ErrInvalidTransitions)
			}
			if stageFailed || next != len(stages) {
				return fmt.Errorf("%w: pipeline_succeeded after %d of %d stages", ErrInvalidTransitions, next, len(stages))
			}
		case KindPipelineFailed:
			if i != len(events)-1 {
				return fmt.Errorf("%w: events after pipeline_failed", ErrInvalidTransitions)
			}
		default:
			stage, ok := StageFromKind(evt.Kind)
			if !ok {
				return fmt.Errorf("%w: unexpected kind %q", ErrInvalidTransitions, evt.Kind)
			}
			if stageFailed {
				return fmt.Errorf("%w: stage %q after a failed stage", ErrInvalidTransitions, stage)
			}
			if next >= len(stages) || stages[next] != stage {
				want := "none"
				if next < len(stages) {
					want = stages[next]
				}
				return fmt.Errorf("%w: stage %q out of order (want %s)", ErrInvalidTransitions, stage, want)
			}
			if evt.Status == StatusError {
				stageFailed = true
			}
			next++
		}
	}
	return nil
}
