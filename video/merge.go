package video

// merge.go contains the merge engine that combines per-spec videos into one.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/otiai10/copy"
	"github.com/rs/zerolog"
)

// BuildConcatArgs builds the ffmpeg arguments that concatenate inputs, in
// order, into target. Inputs are re-encoded through the concat filter, so
// they only need to share their frame geometry.
func BuildConcatArgs(inputs []string, target string) []string {
	args := []string{"-y"}
	for _, input := range inputs {
		args = append(args, "-i", input)
	}

	var filter strings.Builder
	for i := range inputs {
		fmt.Fprintf(&filter, "[%d:v:0]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=0[outv]", len(inputs))

	args = append(args, "-filter_complex", filter.String(), "-map", "[outv]", target)
	return args
}

// Engine merges videos.
type Engine struct {
	logger  zerolog.Logger
	runner  Runner
	checker *Checker
	ffmpeg  string
}

// NewEngine returns an Engine using ffmpeg and ffprobe from PATH.
func NewEngine(logger zerolog.Logger, runner Runner) *Engine {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Engine{
		logger:  logger,
		runner:  runner,
		checker: NewChecker(logger, runner),
		ffmpeg:  "ffmpeg",
	}
}

// Merge writes one combined video of paths to target.
//
// A single input, or inputs of differing geometry, are not concatenated: the
// first input is copied to target instead. Source videos are left in place.
func (e *Engine) Merge(ctx context.Context, paths []string, target string) error {
	if len(paths) == 0 {
		return errors.New("no videos to merge")
	}

	if len(paths) == 1 {
		return e.useMainVideo(paths[0], target)
	}

	same, err := e.checker.SameGeometry(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to merge videos: %w", err)
	}
	if !same {
		return e.useMainVideo(paths[0], target)
	}

	args := BuildConcatArgs(paths, target)
	e.logger.Info().Strs("videos", paths).Str("target", target).Msg("Merging videos")
	e.logger.Debug().Str("command", CommandString(e.ffmpeg, args)).Msg("Executing ffmpeg")

	if _, err := e.runner.Run(ctx, e.ffmpeg, args...); err != nil {
		if rmErr := os.Remove(target); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.Debug().Err(rmErr).Str("target", target).Msg("Failed to clean up partial video")
		}
		return fmt.Errorf("failed to merge videos: %w", err)
	}

	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("merged video not found after ffmpeg: %w", err)
	}
	return nil
}

func (e *Engine) useMainVideo(src, target string) error {
	e.logger.Info().Str("video", src).Msgf("Using %s as the main video", src)
	if err := copy.Copy(src, target); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, target, err)
	}
	return nil
}
