package video

// probe.go contains the consistency check that decides whether videos can be
// concatenated.

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Geometry is the frame size of a video stream.
type Geometry struct {
	Width  int64
	Height int64
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// BuildProbeArgs builds the ffprobe arguments that print all streams of
// path as JSON.
func BuildProbeArgs(path string) []string {
	return []string{"-v", "error", "-print_format", "json", "-show_streams", path}
}

// ParseGeometry extracts the geometry of the first video stream from ffprobe
// JSON output.
func ParseGeometry(output []byte) (Geometry, error) {
	if !gjson.ValidBytes(output) {
		return Geometry{}, errors.New("invalid ffprobe output")
	}

	stream := gjson.GetBytes(output, `streams.#(codec_type=="video")`)
	if !stream.Exists() {
		return Geometry{}, errors.New("no video stream found")
	}

	g := Geometry{
		Width:  stream.Get("width").Int(),
		Height: stream.Get("height").Int(),
	}
	if g.Width <= 0 || g.Height <= 0 {
		return Geometry{}, fmt.Errorf("video stream has invalid size %s", g)
	}
	return g, nil
}

// Checker probes videos with ffprobe.
type Checker struct {
	logger  zerolog.Logger
	runner  Runner
	ffprobe string
}

// NewChecker returns a Checker using the ffprobe binary found in PATH.
func NewChecker(logger zerolog.Logger, runner Runner) *Checker {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Checker{
		logger:  logger,
		runner:  runner,
		ffprobe: "ffprobe",
	}
}

// Probe returns the geometry of the video stream in path.
func (c *Checker) Probe(ctx context.Context, path string) (Geometry, error) {
	args := BuildProbeArgs(path)
	c.logger.Debug().Str("command", CommandString(c.ffprobe, args)).Msg("Probing video")

	output, err := c.runner.Run(ctx, c.ffprobe, args...)
	if err != nil {
		return Geometry{}, fmt.Errorf("failed to inspect video %s, it may be corrupt: %w", path, err)
	}

	g, err := ParseGeometry(output)
	if err != nil {
		return Geometry{}, fmt.Errorf("failed to inspect video %s, it may be corrupt: %w", path, err)
	}
	return g, nil
}

// SameGeometry reports whether all videos share the width and height of the
// first one. A video that cannot be probed is an error, never treated as
// inconsistent.
func (c *Checker) SameGeometry(ctx context.Context, paths []string) (bool, error) {
	if len(paths) == 0 {
		return false, errors.New("no videos to inspect")
	}

	var first Geometry
	for i, path := range paths {
		g, err := c.Probe(ctx, path)
		if err != nil {
			c.logger.Error().Err(err).Str("video", path).Msg("Failed to inspect video")
			return false, err
		}

		if i == 0 {
			first = g
			continue
		}
		if g != first {
			c.logger.Info().
				Str("video", path).
				Stringer("size", g).
				Stringer("expected", first).
				Msg("Detected inconsistent video sizes")
			return false, nil
		}
	}

	return true, nil
}
