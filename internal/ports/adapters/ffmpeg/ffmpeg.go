// Package ffmpeg adapts the ffmpeg/ffprobe command line to the pipeline's
// media capabilities: probing, stretch interpolation, frame encoding,
// chroma-key compositing and alpha extraction.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// Available reports whether both binaries resolve on PATH.
func (a *Adapter) Available() bool {
	if _, err := exec.LookPath(a.ffmpeg); err != nil {
		return false
	}
	_, err := exec.LookPath(a.ffprobe)
	return err == nil
}

func (a *Adapter) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", args[0], err, string(b))
	}
	return nil
}

// muxerFor maps an output path to an explicit -f muxer name, needed because
// temporary outputs carry a .partial suffix ffmpeg cannot infer from.
func muxerFor(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSuffix(path, partialSuffix)), ".")) {
	case "webm":
		return "webm"
	case "mov":
		return "mov"
	case "mkv":
		return "matroska"
	default:
		return "mp4"
	}
}

const partialSuffix = ".partial"

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
