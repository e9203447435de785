// Package chroma implements color-key alpha extraction over in-memory
// images. It is the native implementation of the background-extraction
// capability; the ffmpeg adapter provides the equivalent for whole clips.
package chroma

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/vidforge/lipsync/internal/types"
)

// ParseColor accepts "#RRGGBB", "0xRRGGBB" or bare "RRGGBB".
func ParseColor(s string) (color.NRGBA, error) {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(t, "#")
	t = strings.TrimPrefix(t, "0x")
	t = strings.TrimPrefix(t, "0X")
	if len(t) != 6 {
		return color.NRGBA{}, fmt.Errorf("chroma: color %q must be 6 hex digits", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(t, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("chroma: color %q: %w", s, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// FFmpegColor renders a parsed color the way ffmpeg filter arguments
// expect it.
func FFmpegColor(c color.NRGBA) string {
	return fmt.Sprintf("0x%02X%02X%02X", c.R, c.G, c.B)
}

// uv converts to BT.601 chroma components. Keying on chroma alone keeps
// luma variation (shadows on the backdrop) from punching holes in the mask.
func uv(c color.Color) (float64, float64) {
	r16, g16, b16, _ := c.RGBA()
	r := float64(r16 >> 8)
	g := float64(g16 >> 8)
	b := float64(b16 >> 8)
	u := -0.168736*r - 0.331264*g + 0.5*b + 128
	v := 0.5*r - 0.418688*g - 0.081312*b + 128
	return u, v
}

// Distance is the normalized chroma-plane distance between a pixel and the
// key color, in [0, 1].
func Distance(px, key color.Color) float64 {
	pu, pv := uv(px)
	ku, kv := uv(key)
	du := pu - ku
	dv := pv - kv
	return math.Sqrt((du*du + dv*dv) / (255.0 * 255.0 * 2.0))
}

// AlphaFor maps a chroma distance to an alpha value: fully transparent
// within similarity, a linear ramp of width blend past it, opaque beyond.
func AlphaFor(diff, similarity, blend float64) uint8 {
	if diff <= similarity {
		return 0
	}
	if blend <= 0 {
		return 0xff
	}
	a := (diff - similarity) / blend
	if a >= 1 {
		return 0xff
	}
	return uint8(math.Round(a * 255))
}

// Key returns a copy of img with alpha extracted against spec. Pixel colors
// are untouched; only the alpha channel changes.
func Key(img image.Image, spec types.KeySpec) (*image.NRGBA, error) {
	key, err := ParseColor(spec.Color)
	if err != nil {
		return nil, err
	}
	if spec.Similarity < 0 || spec.Similarity > 1 {
		return nil, fmt.Errorf("chroma: similarity %v out of [0,1]", spec.Similarity)
	}
	if spec.Blend < 0 || spec.Blend > 1 {
		return nil, fmt.Errorf("chroma: blend %v out of [0,1]", spec.Blend)
	}

	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := img.At(x, y)
			r16, g16, b16, _ := px.RGBA()
			a := AlphaFor(Distance(px, key), spec.Similarity, spec.Blend)
			out.SetNRGBA(x, y, color.NRGBA{
				R: uint8(r16 >> 8),
				G: uint8(g16 >> 8),
				B: uint8(b16 >> 8),
				A: a,
			})
		}
	}
	return out, nil
}
