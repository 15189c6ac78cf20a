package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Command is one recorded tool invocation.
type Command struct {
	Name string
	Args []string
}

// FakeFFmpeg stands in for the ffmpeg and ffprobe binaries. ffmpeg calls
// create their output file (the last argument); ffprobe calls report
// Duration seconds.
type FakeFFmpeg struct {
	mu       sync.Mutex
	commands []Command

	Duration float64
	// FailOn makes any ffmpeg call whose args contain the substring fail.
	FailOn string
}

// Runner satisfies ffmpeg.CommandRunner.
func (f *FakeFFmpeg) Runner(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.commands = append(f.commands, Command{Name: name, Args: append([]string(nil), args...)})
	failOn := f.FailOn
	duration := f.Duration
	f.mu.Unlock()

	joined := strings.Join(args, " ")
	if failOn != "" && strings.Contains(joined, failOn) {
		return nil, fmt.Errorf("%s: exit status 1: simulated failure", name)
	}
	if strings.Contains(filepath.Base(name), "ffprobe") {
		if duration == 0 {
			duration = 3600
		}
		return []byte(fmt.Sprintf(`{"streams":[{"index":0,"codec_type":"audio"}],"format":{"duration":"%.3f"}}`, duration)), nil
	}
	if len(args) == 0 {
		return nil, nil
	}
	out := args[len(args)-1]
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(out, []byte("media"), 0o644)
}

// Commands returns the recorded invocations.
func (f *FakeFFmpeg) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}
