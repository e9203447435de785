//go:build integration

package itest

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// probeVideoStats decodes the whole stream so the frame count is counted,
// not read from metadata.
func probeVideoStats(path string) (durationSec float64, frames int, err error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-count_frames",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}

	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch k {
		case "duration":
			durationSec, err = strconv.ParseFloat(v, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("parse duration %q: %w", v, err)
			}
		case "nb_read_frames":
			frames, err = strconv.Atoi(v)
			if err != nil {
				return 0, 0, fmt.Errorf("parse frame count %q: %w", v, err)
			}
		}
	}
	if durationSec == 0 {
		return 0, 0, fmt.Errorf("no duration for %s in:\n%s", path, string(b))
	}
	return durationSec, frames, nil
}
