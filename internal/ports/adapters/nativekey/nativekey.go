// Package nativekey implements background extraction with the in-process
// chroma keyer. ffmpeg still decodes and encodes the containers; the alpha
// of every pixel is computed in Go, so the keying math can be replaced
// without touching a filter graph.
package nativekey

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vidforge/lipsync/internal/ports"
	"github.com/vidforge/lipsync/internal/types"
)

// ExtractError reports a failed alpha extraction.
type ExtractError struct {
	Output string
	Reason string
	Err    error
}

func (e *ExtractError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", e.Output, e.Reason)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.Output, e.Reason, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

type Adapter struct {
	ffmpeg string
	prober ports.MediaProber
}

func New(ffmpegPath string, prober ports.MediaProber) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Adapter{ffmpeg: ffmpegPath, prober: prober}
}

func (a *Adapter) ExtractAlpha(ctx context.Context, inPath string, key types.KeySpec, outPath string) error {
	return a.extract(ctx, inPath, key, outPath, false)
}

// Thumbnail is the half-resolution variant of ExtractAlpha.
func (a *Adapter) Thumbnail(ctx context.Context, inPath string, key types.KeySpec, outPath string) error {
	return a.extract(ctx, inPath, key, outPath, true)
}

const partialSuffix = ".partial"

// extract runs two ffmpeg processes around the keyer: one decoding the
// clip to a PNG stream, one encoding keyed PNGs to alpha-capable VP9.
func (a *Adapter) extract(ctx context.Context, inPath string, key types.KeySpec, outPath string, half bool) error {
	if !strings.EqualFold(filepath.Ext(outPath), ".webm") {
		return &ExtractError{Output: outPath, Reason: "alpha rendition requires a .webm output"}
	}
	asset, err := a.prober.Probe(ctx, inPath)
	if err != nil {
		return err
	}
	if asset.Kind != types.KindVideo {
		return &ExtractError{Output: outPath, Reason: fmt.Sprintf("input %s is not a video", inPath)}
	}
	fps := int(math.Round(asset.FrameRate))
	if fps <= 0 {
		fps = 30
	}

	decode := exec.CommandContext(ctx, a.ffmpeg,
		"-v", "error",
		"-i", inPath,
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	var decStderr bytes.Buffer
	decode.Stderr = &decStderr
	decOut, err := decode.StdoutPipe()
	if err != nil {
		return &ExtractError{Output: outPath, Reason: "decode pipe", Err: err}
	}

	tmp := outPath + partialSuffix
	encode := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(fps),
		"-i", "-",
		"-i", inPath,
		"-map", "0:v",
		"-map", "1:a?",
		// yuva420p needs even dimensions.
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p",
		"-auto-alt-ref", "0",
		"-crf", "30",
		"-b:v", "0",
		"-c:a", "libopus",
		"-f", "webm",
		tmp,
	)
	var encStderr bytes.Buffer
	encode.Stderr = &encStderr
	encIn, err := encode.StdinPipe()
	if err != nil {
		return &ExtractError{Output: outPath, Reason: "encode pipe", Err: err}
	}

	if err := decode.Start(); err != nil {
		return &ExtractError{Output: outPath, Reason: "start decode", Err: err}
	}
	if err := encode.Start(); err != nil {
		_ = decode.Process.Kill()
		_ = decode.Wait()
		return &ExtractError{Output: outPath, Reason: "start encode", Err: err}
	}

	n, keyErr := keyFrames(decOut, encIn, key, half)
	encIn.Close()
	if keyErr != nil {
		// The decoder may be blocked writing frames nobody reads.
		_ = decode.Process.Kill()
	}
	decErr := decode.Wait()
	encErr := encode.Wait()

	switch {
	case keyErr != nil:
		os.Remove(tmp)
		return &ExtractError{Output: outPath, Reason: "keying", Err: keyErr}
	case decErr != nil:
		os.Remove(tmp)
		return &ExtractError{Output: outPath, Reason: "decode: " + strings.TrimSpace(decStderr.String()), Err: decErr}
	case encErr != nil:
		os.Remove(tmp)
		return &ExtractError{Output: outPath, Reason: "encode: " + strings.TrimSpace(encStderr.String()), Err: encErr}
	case n == 0:
		os.Remove(tmp)
		return &ExtractError{Output: outPath, Reason: "no frames decoded"}
	}

	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return &ExtractError{Output: outPath, Reason: "finalize", Err: err}
	}
	return nil
}
