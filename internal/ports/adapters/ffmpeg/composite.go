package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vidforge/lipsync/internal/domain/chroma"
	"github.com/vidforge/lipsync/internal/types"
)

// Composite overlays the keyed foreground onto the background. The
// foreground input must still carry its key color: keying a clip whose
// alpha was already extracted once re-samples the mask edge and leaves a
// dark ring. Audio comes from the third input, since the raw keyed clip
// may have none.
func (a *Adapter) Composite(ctx context.Context, spec types.CompositeSpec) error {
	filter, err := buildCompositeFilter(spec)
	if err != nil {
		return err
	}
	if spec.AudioSource == "" {
		return &CompositeError{Output: spec.Output, Reason: "no audio source input"}
	}

	tmp := spec.Output + partialSuffix
	err = a.run(ctx,
		"-y",
		"-i", spec.Background,
		"-i", spec.Foreground,
		"-i", spec.AudioSource,
		"-filter_complex", filter,
		"-map", "[outv]",
		"-map", "2:a",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-shortest",
		"-movflags", "+faststart",
		"-f", muxerFor(spec.Output),
		tmp,
	)
	if err != nil {
		os.Remove(tmp)
		return &CompositeError{Output: spec.Output, Reason: "overlay", Err: err}
	}
	if err := os.Rename(tmp, spec.Output); err != nil {
		os.Remove(tmp)
		return &CompositeError{Output: spec.Output, Reason: "finalize", Err: err}
	}
	return nil
}

func buildCompositeFilter(spec types.CompositeSpec) (string, error) {
	key, err := keyFilter(spec.Key)
	if err != nil {
		return "", &CompositeError{Output: spec.Output, Reason: "key color", Err: err}
	}

	fg := []string{}
	if spec.ScaleWidth > 0 {
		h := spec.ScaleHeight
		scale := fmt.Sprintf("scale=%d:%d", spec.ScaleWidth, h)
		if h <= 0 {
			scale = fmt.Sprintf("scale=%d:-2", spec.ScaleWidth)
		}
		fg = append(fg, scale)
	}
	fg = append(fg, key)

	return fmt.Sprintf(
		"[1:v]%s[fg];[0:v][fg]overlay=%d:%d:shortest=1[outv]",
		strings.Join(fg, ","), spec.X, spec.Y,
	), nil
}

func keyFilter(spec types.KeySpec) (string, error) {
	c, err := chroma.ParseColor(spec.Color)
	if err != nil {
		return "", err
	}
	if spec.Similarity <= 0 || spec.Similarity > 1 {
		return "", fmt.Errorf("similarity %v out of (0,1]", spec.Similarity)
	}
	if spec.Blend < 0 || spec.Blend > 1 {
		return "", fmt.Errorf("blend %v out of [0,1]", spec.Blend)
	}
	return fmt.Sprintf("colorkey=%s:%s:%s",
		chroma.FFmpegColor(c), fmtSeconds(spec.Similarity), fmtSeconds(spec.Blend)), nil
}

// ExtractAlpha produces an alpha-capable rendition of the keyed clip
// (VP9 in WebM with yuva420p). Useful for direct playback with
// transparency; never fed back into Composite.
func (a *Adapter) ExtractAlpha(ctx context.Context, inPath string, key types.KeySpec, outPath string) error {
	return a.extractAlpha(ctx, inPath, key, outPath, false)
}

// Thumbnail is the half-resolution variant of ExtractAlpha.
func (a *Adapter) Thumbnail(ctx context.Context, inPath string, key types.KeySpec, outPath string) error {
	return a.extractAlpha(ctx, inPath, key, outPath, true)
}

func (a *Adapter) extractAlpha(ctx context.Context, inPath string, key types.KeySpec, outPath string, half bool) error {
	kf, err := keyFilter(key)
	if err != nil {
		return &CompositeError{Output: outPath, Reason: "key color", Err: err}
	}
	vf := kf
	if half {
		vf = "scale=iw/2:-2," + kf
	}

	tmp := outPath + partialSuffix
	err = a.run(ctx,
		"-y",
		"-i", inPath,
		"-vf", vf,
		"-map", "0:v",
		"-map", "0:a?",
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p",
		"-auto-alt-ref", "0",
		"-crf", "30",
		"-b:v", "0",
		"-c:a", "libopus",
		"-f", muxerFor(outPath),
		tmp,
	)
	if err != nil {
		os.Remove(tmp)
		return &CompositeError{Output: outPath, Reason: "alpha extraction", Err: err}
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return &CompositeError{Output: outPath, Reason: "finalize", Err: err}
	}
	return nil
}
