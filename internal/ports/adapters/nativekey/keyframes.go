package nativekey

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/vidforge/lipsync/internal/domain/chroma"
	"github.com/vidforge/lipsync/internal/types"
)

// keyFrames reads a concatenated PNG stream, keys every frame and writes
// the keyed PNGs out. The png decoder consumes exactly one image per call,
// so sequential decodes walk the stream.
func keyFrames(r io.Reader, w io.Writer, spec types.KeySpec, half bool) (int, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	n := 0
	for {
		if _, err := br.Peek(1); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
		img, err := png.Decode(br)
		if err != nil {
			return n, fmt.Errorf("decode frame %d: %w", n, err)
		}
		keyed, err := chroma.Key(img, spec)
		if err != nil {
			return n, err
		}
		if half {
			keyed = halve(keyed)
		}
		if err := png.Encode(w, keyed); err != nil {
			return n, fmt.Errorf("write frame %d: %w", n, err)
		}
		n++
	}
}

// halve downsamples by two with nearest-neighbor sampling. Quality is
// secondary for a preview rendition.
func halve(src *image.NRGBA) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetNRGBA(x, y, src.NRGBAAt(b.Min.X+2*x, b.Min.Y+2*y))
		}
	}
	return dst
}
