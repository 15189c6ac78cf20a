package eventlog_test

import (
	"errors"
	"testing"

	"lofi/internal/eventlog"
)

var order = []string{"image", "loop", "audio", "render", "thumbnail", "publish"}

func history(entries ...[2]string) []eventlog.Event {
	events := make([]eventlog.Event, 0, len(entries))
	for i, entry := range entries {
		events = append(events, eventlog.Event{ID: int64(i + 1), Kind: entry[0], Status: entry[1]})
	}
	return events
}

func ok(kind string) [2]string  { return [2]string{kind, eventlog.StatusOK} }
func bad(kind string) [2]string { return [2]string{kind, eventlog.StatusError} }

func TestVerifyTransitionsAcceptsValidHistories(t *testing.T) {
	full := []([2]string){ok("pipeline_started")}
	for _, stage := range order {
		full = append(full, ok("stage:"+stage))
	}
	full = append(full, ok("pipeline_succeeded"))

	cases := map[string][]eventlog.Event{
		"empty":     nil,
		"succeeded": history(full...),
		"failed at render": history(ok("pipeline_started"), ok("stage:image"), ok("stage:loop"),
			ok("stage:audio"), bad("stage:render"), bad("pipeline_failed")),
		"in flight": history(ok("pipeline_started"), ok("stage:image")),
		"failed before first stage": history(ok("pipeline_started"), bad("pipeline_failed")),
	}
	for name, events := range cases {
		if err := eventlog.VerifyTransitions(events, order); err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
}

func TestVerifyTransitionsRejectsInvalidHistories(t *testing.T) {
	cases := map[string][]eventlog.Event{
		"missing start":  history(ok("stage:image")),
		"double start":   history(ok("pipeline_started"), ok("pipeline_started")),
		"skipped stage":  history(ok("pipeline_started"), ok("stage:image"), ok("stage:audio")),
		"reordered":      history(ok("pipeline_started"), ok("stage:loop"), ok("stage:image")),
		"early success":  history(ok("pipeline_started"), ok("stage:image"), ok("pipeline_succeeded")),
		"after failure":  history(ok("pipeline_started"), bad("stage:image"), ok("stage:loop")),
		"after terminal": history(ok("pipeline_started"), bad("pipeline_failed"), ok("stage:image")),
		"unknown kind":   history(ok("pipeline_started"), ok("something")),
	}
	for name, events := range cases {
		if err := eventlog.VerifyTransitions(events, order); !errors.Is(err, eventlog.ErrInvalidTransitions) {
			t.Fatalf("%s: expected ErrInvalidTransitions, got %v", name, err)
		}
	}
}
