package chroma

import (
	"image"
	"image/color"
	"testing"

	"github.com/vidforge/lipsync/internal/types"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#00FF00", color.NRGBA{0, 255, 0, 255}, false},
		{"0x00ff00", color.NRGBA{0, 255, 0, 255}, false},
		{"112233", color.NRGBA{0x11, 0x22, 0x33, 255}, false},
		{"  #FFFFFF ", color.NRGBA{255, 255, 255, 255}, false},
		{"", color.NRGBA{}, true},
		{"#12345", color.NRGBA{}, true},
		{"#gggggg", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFFmpegColor(t *testing.T) {
	c, err := ParseColor("#00ff7f")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := FFmpegColor(c); got != "0x00FF7F" {
		t.Fatalf("FFmpegColor = %q", got)
	}
}

func TestDistance_ExactKeyIsZero(t *testing.T) {
	key := color.NRGBA{0, 255, 0, 255}
	if d := Distance(key, key); d != 0 {
		t.Fatalf("distance of key to itself = %v", d)
	}
}

func TestAlphaFor(t *testing.T) {
	// Within similarity: transparent. Past similarity + blend: opaque.
	// Between: a ramp.
	if a := AlphaFor(0.05, 0.08, 0.05); a != 0 {
		t.Fatalf("inside similarity: alpha = %d, want 0", a)
	}
	if a := AlphaFor(0.08, 0.08, 0.05); a != 0 {
		t.Fatalf("at similarity: alpha = %d, want 0", a)
	}
	if a := AlphaFor(0.5, 0.08, 0.05); a != 255 {
		t.Fatalf("far outside: alpha = %d, want 255", a)
	}
	mid := AlphaFor(0.10, 0.08, 0.05)
	if mid == 0 || mid == 255 {
		t.Fatalf("in blend ramp: alpha = %d, want partial", mid)
	}
	// Hard edge with zero blend.
	if a := AlphaFor(0.0801, 0.08, 0); a != 255 {
		t.Fatalf("zero blend past similarity: alpha = %d, want 255", a)
	}
}

func TestAlphaFor_Monotonic(t *testing.T) {
	prev := uint8(0)
	for d := 0.0; d <= 0.5; d += 0.002 {
		a := AlphaFor(d, 0.08, 0.1)
		if a < prev {
			t.Fatalf("alpha not monotonic at distance %v: %d < %d", d, a, prev)
		}
		prev = a
	}
}

func TestKey_UniformKeyColorFullyTransparent(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{0, 255, 0, 255})
		}
	}

	out, err := Key(img, types.KeySpec{Color: "#00FF00", Similarity: 0.08, Blend: 0.01})
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if a := out.NRGBAAt(x, y).A; a != 0 {
				t.Fatalf("pixel (%d,%d) alpha = %d, want 0", x, y, a)
			}
		}
	}
}

func TestKey_ForegroundRetainsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	img.SetNRGBA(0, 0, color.NRGBA{0, 255, 0, 255})   // key
	img.SetNRGBA(1, 0, color.NRGBA{2, 250, 3, 255})   // near key
	img.SetNRGBA(2, 0, color.NRGBA{255, 0, 0, 255})   // far
	img.SetNRGBA(3, 0, color.NRGBA{40, 40, 200, 255}) // far

	out, err := Key(img, types.KeySpec{Color: "#00FF00", Similarity: 0.08, Blend: 0.05})
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if a := out.NRGBAAt(0, 0).A; a != 0 {
		t.Fatalf("exact key pixel alpha = %d, want 0", a)
	}
	if a := out.NRGBAAt(1, 0).A; a != 0 {
		t.Fatalf("near-key pixel alpha = %d, want 0", a)
	}
	if a := out.NRGBAAt(2, 0).A; a != 255 {
		t.Fatalf("red pixel alpha = %d, want 255", a)
	}
	if a := out.NRGBAAt(3, 0).A; a != 255 {
		t.Fatalf("blue pixel alpha = %d, want 255", a)
	}
}

func TestKey_RejectsBadSpec(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	if _, err := Key(img, types.KeySpec{Color: "nope", Similarity: 0.1, Blend: 0}); err == nil {
		t.Fatalf("expected color parse error")
	}
	if _, err := Key(img, types.KeySpec{Color: "#00FF00", Similarity: 1.5, Blend: 0}); err == nil {
		t.Fatalf("expected similarity range error")
	}
	if _, err := Key(img, types.KeySpec{Color: "#00FF00", Similarity: 0.1, Blend: -1}); err == nil {
		t.Fatalf("expected blend range error")
	}
}
