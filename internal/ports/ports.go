package ports

import (
	"context"

	"github.com/vidforge/lipsync/internal/domain/stretch"
	"github.com/vidforge/lipsync/internal/types"
)

// MediaProber reads duration, frame rate and frame count from an asset.
type MediaProber interface {
	Probe(ctx context.Context, path string) (types.MediaAsset, error)
}

// FrameInterpolator realizes a stretch plan by synthesizing frames, never
// by timestamp rescaling alone.
type FrameInterpolator interface {
	Interpolate(ctx context.Context, inPath string, plan stretch.Plan, outPath string) error
}

// FrameSink receives generated frames as they are decoded. Expect is called
// once, as soon as the service declares its authoritative total. Deliver
// blocks when downstream is saturated; that suspension is the client's
// backpressure.
type FrameSink interface {
	Expect(total, fps int) error
	Deliver(ctx context.Context, f types.Frame) error
}

// LipSyncService is the remote frame-generation service.
type LipSyncService interface {
	Health(ctx context.Context) (types.ServerHealth, error)
	Generate(ctx context.Context, req types.InferenceRequest, sink FrameSink) error
}

// FrameEncoder muxes an ordered frame stream with an audio track into a
// container. Implementations write to a temporary path and move the result
// into place only on success.
type FrameEncoder interface {
	Encode(ctx context.Context, spec types.EncodeSpec, frames <-chan types.Frame) error
	EncodeStill(ctx context.Context, imagePath, audioPath string, fps int, outPath string) error
}

// Compositor overlays a keyed foreground onto a background clip.
type Compositor interface {
	Composite(ctx context.Context, spec types.CompositeSpec) error
}

// BackgroundExtractor turns a key-colored clip into an alpha-carrying one.
// Swappable so a learned-segmentation implementation can replace color
// keying without touching the pipeline.
type BackgroundExtractor interface {
	ExtractAlpha(ctx context.Context, inPath string, key types.KeySpec, outPath string) error
	Thumbnail(ctx context.Context, inPath string, key types.KeySpec, outPath string) error
}
