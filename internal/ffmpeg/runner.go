package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// stderrTailLines is how many trailing stderr lines are kept for errors.
const stderrTailLines = 30

// Runner executes ffmpeg commands and reports transcode progress.
type Runner struct {
	ffmpegPath string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewRunner creates a Runner for the given ffmpeg binary.
func NewRunner(ffmpegPath string) *Runner {
	return &Runner{
		ffmpegPath: ffmpegPath,
		timeout:    time.Hour,
		logger:     slog.Default(),
	}
}

// WithTimeout sets the maximum run time for one command.
func (r *Runner) WithTimeout(timeout time.Duration) *Runner {
	r.timeout = timeout
	return r
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Run executes ffmpeg with the given arguments. The -hide_banner and -y
// flags are always prepended. Stderr is scanned line by line; every stats
// line with a time= field is reported through onProgress as a position in
// seconds. On a nonzero exit the tail of stderr becomes the error.
func (r *Runner) Run(ctx context.Context, args []string, onProgress func(seconds float64)) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	full := append([]string{"-hide_banner", "-y"}, args...)
	cmd := exec.CommandContext(ctx, r.ffmpegPath, full...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening ffmpeg stderr: %w", err)
	}

	r.logger.Debug("starting ffmpeg",
		slog.String("binary", r.ffmpegPath),
		slog.String("args", strings.Join(full, " ")),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	var tail []string
	scanner := bufio.NewScanner(stderr)
	// ffmpeg stats lines use carriage returns, split on both.
	scanner.Split(scanCRLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if pos, ok := ParseProgressTime(line); ok {
			if onProgress != nil {
				onProgress(pos)
			}
			continue
		}

		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg timeout after %v", r.timeout)
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.Join(tail, "\n"))
	}
	return nil
}

// scanCRLines is a bufio.SplitFunc that treats both \n and \r as line
// terminators. ffmpeg rewrites its stats line with carriage returns.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
