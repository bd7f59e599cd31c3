// Package ffmpeg provides FFmpeg/FFprobe binary detection, media probing
// and transcode process execution.
package ffmpeg

import (
	"fmt"
	"os/exec"
)

// ResolveBinary returns the configured binary path, falling back to a PATH
// lookup of name when the path is empty.
func ResolveBinary(configured, name string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("locating %s: %w", name, err)
	}
	return path, nil
}
