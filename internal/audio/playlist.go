// Package audio builds the soundtrack of a run: a random selection of
// tracks from the audio library concatenated into one file.
package audio

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"lofi/internal/config"
	"lofi/internal/ffmpeg"
	"lofi/internal/logging"
	"lofi/internal/services"
	"lofi/internal/stage"
)

const (
	playlistFileName = "playlist.txt"
	audioFileName    = "audio.mp3"
)

// PlaylistExecutor is the audio stage.
type PlaylistExecutor struct {
	dir  string
	min  int
	max  int
	tool *ffmpeg.Tool
	seed func() uint64
}

// NewPlaylistExecutor constructs the audio stage.
func NewPlaylistExecutor(cfg *config.Config, tool *ffmpeg.Tool) *PlaylistExecutor {
	return &PlaylistExecutor{
		dir:  cfg.Media.AudioDir,
		min:  cfg.Media.PlaylistMin,
		max:  cfg.Media.PlaylistMax,
		tool: tool,
		seed: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// HealthCheck verifies ffmpeg and the track library.
func (e *PlaylistExecutor) HealthCheck(context.Context) stage.Health {
	if err := e.tool.Check(); err != nil {
		return stage.Unhealthy(stage.Audio, err.Error())
	}
	tracks, err := ListTracks(e.dir)
	if err != nil {
		return stage.Unhealthy(stage.Audio, err.Error())
	}
	if len(tracks) == 0 {
		return stage.Unhealthy(stage.Audio, fmt.Sprintf("no mp3 tracks in %s", e.dir))
	}
	return stage.Healthy(stage.Audio)
}

// Execute selects tracks and concatenates them into <workdir>/audio.mp3.
func (e *PlaylistExecutor) Execute(ctx context.Context, in stage.Input) (stage.Artifact, error) {
	tracks, err := ListTracks(e.dir)
	if err != nil {
		return stage.Artifact{}, services.Wrap(services.ErrConfiguration, string(stage.Audio), "list tracks", "", err)
	}
	if len(tracks) == 0 {
		return stage.Artifact{}, services.Wrap(services.ErrValidation, string(stage.Audio), "select tracks",
			fmt.Sprintf("no mp3 tracks in %s", e.dir), nil)
	}

	seed := uint64(in.Params.Seed)
	if seed == 0 {
		seed = e.seed()
	}
	selected := Select(tracks, e.min, e.max, rand.New(rand.NewPCG(seed, seed>>1)))

	listFile := filepath.Join(in.WorkDir, playlistFileName)
	if err := WritePlaylist(listFile, selected); err != nil {
		return stage.Artifact{}, services.Wrap(services.ErrTransient, string(stage.Audio), "write playlist", "", err)
	}
	out := filepath.Join(in.WorkDir, audioFileName)
	if err := e.tool.WithLogger(in.Logger).ConcatAudio(ctx, listFile, out); err != nil {
		return stage.Artifact{}, err
	}
	if _, err := os.Stat(out); err != nil {
		return stage.Artifact{}, services.Wrap(services.ErrExternalTool, string(stage.Audio), "concat audio", "no output produced", err)
	}

	names := make([]string, len(selected))
	for i, track := range selected {
		names[i] = filepath.Base(track)
	}
	in.Log("audio").Info("playlist assembled",
		logging.Int("tracks", len(selected)),
		logging.Int("library", len(tracks)),
	)
	return stage.Artifact{
		Ref: out,
		Detail: map[string]any{
			"track_count": len(selected),
			"tracks":      names,
			"seed":        seed,
		},
	}, nil
}

// ListTracks returns the .mp3 files directly inside dir, sorted.
func ListTracks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var tracks []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".mp3") {
			continue
		}
		tracks = append(tracks, filepath.Join(dir, entry.Name()))
	}
	slices.Sort(tracks)
	return tracks, nil
}

// Select draws between lo and hi tracks (inclusive) without repetition,
// capped by the library size.
func Select(tracks []string, lo, hi int, rng *rand.Rand) []string {
	if hi < lo {
		hi = lo
	}
	n := lo
	if hi > lo {
		n = lo + rng.IntN(hi-lo+1)
	}
	n = min(n, len(tracks))
	perm := rng.Perm(len(tracks))
	selected := make([]string, n)
	for i := range n {
		selected[i] = tracks[perm[i]]
	}
	return selected
}

// WritePlaylist writes an ffmpeg concat list.
func WritePlaylist(path string, tracks []string) error {
	var b strings.Builder
	for _, track := range tracks {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(track, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
