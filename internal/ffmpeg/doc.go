// Package ffmpeg wraps the ffmpeg and ffprobe binaries used by the media
// stages.
//
// Every operation shells out through a CommandRunner so tests can replace
// the binaries with recorders. Failures carry the tail of the tool's stderr
// and are tagged with services.ErrExternalTool.
package ffmpeg
