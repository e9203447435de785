package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/vidforge/lipsync/internal/types"
)

// Encode muxes an ordered frame stream with the audio track. Frames are
// piped as PNG over stdin so encoding overlaps frame receipt; the channel
// closing marks the sequence complete. The file is written next to the
// final path with a .partial suffix and renamed only after ffmpeg exits
// cleanly, so no partial output survives a failure.
func (a *Adapter) Encode(ctx context.Context, spec types.EncodeSpec, frames <-chan types.Frame) error {
	if spec.FPS <= 0 {
		return &EncodeError{Output: spec.OutputPath, Err: fmt.Errorf("fps %d must be > 0", spec.FPS)}
	}
	tmp := spec.OutputPath + partialSuffix
	args := buildEncodeArgs(spec, tmp)

	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &EncodeError{Output: spec.OutputPath, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &EncodeError{Output: spec.OutputPath, Err: err}
	}

	abort := func(cause error) error {
		stdin.Close()
		_ = cmd.Wait()
		os.Remove(tmp)
		return cause
	}

feed:
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				break feed
			}
			if _, err := stdin.Write(f.Data); err != nil {
				// stdin must close before Wait: a live ffmpeg would
				// otherwise keep Wait blocked on the open pipe.
				_ = abort(err)
				return &EncodeError{Output: spec.OutputPath, Detail: stderr.String(), Err: fmt.Errorf("write frame %d: %w", f.Index, err)}
			}
		case <-ctx.Done():
			return abort(ctx.Err())
		}
	}

	stdin.Close()
	if err := cmd.Wait(); err != nil {
		os.Remove(tmp)
		return &EncodeError{Output: spec.OutputPath, Detail: stderr.String(), Err: err}
	}
	if err := os.Rename(tmp, spec.OutputPath); err != nil {
		os.Remove(tmp)
		return &EncodeError{Output: spec.OutputPath, Err: err}
	}
	return nil
}

func buildEncodeArgs(spec types.EncodeSpec, tmp string) []string {
	args := []string{
		"-y",
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(spec.FPS),
		"-i", "-",
	}
	if spec.AudioPath != "" {
		args = append(args, "-i", spec.AudioPath, "-map", "0:v", "-map", "1:a")
	}
	if spec.Width > 0 {
		h := spec.Height
		if h <= 0 {
			h = -2
		}
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", spec.Width, h))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(spec.FPS),
	)
	if spec.AudioPath != "" {
		// Shortest stream wins: no trailing silence, no frozen last frame.
		args = append(args, "-c:a", "aac", "-b:a", "128k", "-shortest")
	}
	args = append(args,
		"-movflags", "+faststart",
		"-f", muxerFor(spec.OutputPath),
		tmp,
	)
	return args
}

// EncodeStill loops a single image over the audio track. Fallback path for
// a reachable-but-absent generation service.
func (a *Adapter) EncodeStill(ctx context.Context, imagePath, audioPath string, fps int, outPath string) error {
	tmp := outPath + partialSuffix
	err := a.run(ctx,
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-c:a", "aac",
		"-b:a", "128k",
		"-shortest",
		"-movflags", "+faststart",
		"-f", muxerFor(outPath),
		tmp,
	)
	if err != nil {
		os.Remove(tmp)
		return &EncodeError{Output: outPath, Err: err}
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return &EncodeError{Output: outPath, Err: err}
	}
	return nil
}
