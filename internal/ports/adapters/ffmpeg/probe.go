package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vidforge/lipsync/internal/types"
)

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe describes a media file. Read-only; durations are carried as
// float64 seconds end to end so chained stretch math does not accumulate
// truncation error.
func (a *Adapter) Probe(ctx context.Context, path string) (types.MediaAsset, error) {
	if _, err := os.Stat(path); err != nil {
		return types.MediaAsset{}, &ProbeError{Path: path, Reason: "stat", Err: err}
	}

	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	b, err := cmd.Output()
	if err != nil {
		detail := ""
		if ee, ok := err.(*exec.ExitError); ok {
			detail = string(ee.Stderr)
		}
		return types.MediaAsset{}, &ProbeError{Path: path, Reason: "ffprobe: " + strings.TrimSpace(detail), Err: err}
	}

	asset, err := parseProbeOutput(path, b)
	if err != nil {
		return types.MediaAsset{}, err
	}
	return asset, nil
}

func parseProbeOutput(path string, raw []byte) (types.MediaAsset, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.MediaAsset{}, &ProbeError{Path: path, Reason: "parse ffprobe output", Err: err}
	}

	asset := types.MediaAsset{Path: path}

	var hasVideo, hasAudio bool
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if hasVideo {
				continue
			}
			hasVideo = true
			asset.Width = s.Width
			asset.Height = s.Height
			if fps, err := parseRate(s.AvgFrameRate); err == nil && fps > 0 {
				asset.FrameRate = fps
			} else if fps, err := parseRate(s.RFrameRate); err == nil && fps > 0 {
				asset.FrameRate = fps
			}
			if n, err := strconv.Atoi(s.NbFrames); err == nil {
				asset.FrameCount = n
			}
		case "audio":
			hasAudio = true
		}
	}

	switch {
	case hasVideo && isImageFormat(out.Format.FormatName, asset.FrameCount):
		asset.Kind = types.KindImage
		asset.FrameRate = 0
		asset.FrameCount = 0
		return asset, nil
	case hasVideo:
		asset.Kind = types.KindVideo
	case hasAudio:
		asset.Kind = types.KindAudio
	default:
		return types.MediaAsset{}, &ProbeError{Path: path, Reason: "no audio or video streams"}
	}

	dur := out.Format.Duration
	if dur == "" {
		for _, s := range out.Streams {
			if s.Duration != "" {
				dur = s.Duration
				break
			}
		}
	}
	sec, err := strconv.ParseFloat(dur, 64)
	if err != nil || sec <= 0 {
		return types.MediaAsset{}, &ProbeError{Path: path, Reason: fmt.Sprintf("no usable duration (got %q)", dur)}
	}
	asset.Duration = sec

	if asset.Kind == types.KindVideo && asset.FrameCount == 0 && asset.FrameRate > 0 {
		asset.FrameCount = int(math.Round(asset.Duration * asset.FrameRate))
	}
	return asset, nil
}

func isImageFormat(formatName string, frameCount int) bool {
	for _, f := range strings.Split(formatName, ",") {
		switch strings.TrimSpace(f) {
		case "image2", "png_pipe", "jpeg_pipe", "webp_pipe", "bmp_pipe", "tiff_pipe":
			return true
		}
	}
	return frameCount == 1
}

// parseRate parses an ffprobe rational like "30000/1001" or "25/1".
func parseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0/0" {
		return 0, fmt.Errorf("empty rate")
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return strconv.ParseFloat(s, 64)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("parse rate %q: zero denominator", s)
	}
	return n / d, nil
}
