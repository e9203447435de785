package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/vidforge/lipsync/internal/domain/chroma"
	"github.com/vidforge/lipsync/internal/ports"
	"github.com/vidforge/lipsync/internal/ports/adapters/ffmpeg"
	"github.com/vidforge/lipsync/internal/ports/adapters/musetalk"
	"github.com/vidforge/lipsync/internal/ports/adapters/nativekey"
	"github.com/vidforge/lipsync/internal/types"
	"github.com/vidforge/lipsync/internal/ui"
	"github.com/vidforge/lipsync/internal/usecase"
)

type Config struct {
	ReferencePath string
	AudioPath     string
	OutputPath    string

	ServerURL string
	FPS       int
	Epsilon   float64

	// Resolution is "WxH"; empty keeps the generated frame size.
	Resolution string

	FaceCenter []int
	BBoxShift  int

	Stream         bool
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	Retries        int
	Grace          time.Duration
	QueueDepth     int

	DryRun              bool
	AllowStaticFallback bool

	// Compositing. BackgroundPath enables the overlay step; the key
	// options also drive the alpha and thumbnail renditions.
	BackgroundPath string
	KeyColor       string
	Similarity     float64
	Blend          float64
	OverlayX       int
	OverlayY       int
	FgScaleWidth   int
	FgScaleHeight  int
	CompositeOut   string
	AlphaOut       string
	ThumbnailOut   string
	// NativeKey selects the in-process keyer for the alpha renditions
	// instead of ffmpeg's colorkey filter.
	NativeKey bool

	// WorkDir is the base directory for run-scoped artifacts (the
	// stretched reference). If empty, defaults to ".cache".
	WorkDir  string
	KeepWork bool

	FFmpegPath  string
	FFprobePath string

	Logf   func(format string, args ...any)
	ShowUI bool
}

func (c Config) Validate() error {
	if c.ReferencePath == "" {
		return errors.New("reference is empty")
	}
	if _, err := os.Stat(c.ReferencePath); err != nil {
		return fmt.Errorf("stat reference: %w", err)
	}
	if c.AudioPath == "" {
		return errors.New("audio is empty")
	}
	if _, err := os.Stat(c.AudioPath); err != nil {
		return fmt.Errorf("stat audio: %w", err)
	}
	if c.OutputPath == "" {
		return errors.New("output is empty")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be > 0")
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("epsilon must be >= 0")
	}
	if n := len(c.FaceCenter); n != 0 && n != 2 {
		return fmt.Errorf("face center needs exactly two coordinates, got %d", n)
	}
	if c.Resolution != "" {
		if _, _, err := parseResolution(c.Resolution); err != nil {
			return err
		}
	}
	if c.needsKey() {
		if _, err := chroma.ParseColor(c.KeyColor); err != nil {
			return fmt.Errorf("key color: %w", err)
		}
		if c.Similarity <= 0 || c.Similarity > 1 {
			return fmt.Errorf("similarity must be in (0,1]")
		}
		if c.Blend < 0 || c.Blend > 1 {
			return fmt.Errorf("blend must be in [0,1]")
		}
	}
	if c.BackgroundPath != "" {
		if _, err := os.Stat(c.BackgroundPath); err != nil {
			return fmt.Errorf("stat background: %w", err)
		}
	}
	return musetalk.ValidateBaseURL(c.ServerURL)
}

func (c Config) needsKey() bool {
	return c.BackgroundPath != "" || c.AlphaOut != "" || c.ThumbnailOut != ""
}

func Run(ctx context.Context, cfg Config) error {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	// adapters
	v := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	if !v.Available() {
		return errors.New("ffmpeg/ffprobe not found in PATH")
	}
	svc, err := musetalk.New(cfg.ServerURL, musetalk.Options{
		RequestTimeout: cfg.RequestTimeout,
		HealthTimeout:  cfg.HealthTimeout,
		Retries:        cfg.Retries,
		Grace:          cfg.Grace,
		Stream:         cfg.Stream,
		Logf:           logf,
	})
	if err != nil {
		return err
	}

	var extractor ports.BackgroundExtractor = v
	if cfg.NativeKey {
		extractor = nativekey.New(cfg.FFmpegPath, v)
	}

	uc := usecase.New(usecase.Deps{
		Prober:     v,
		Interp:     v,
		Service:    svc,
		Encoder:    v,
		Compositor: v,
		Extractor:  extractor,
	})

	baseWork := cfg.WorkDir
	if baseWork == "" {
		baseWork = ".cache"
	}
	runDir := filepath.Join(baseWork, "runs", buildRunID(cfg.ReferencePath))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	if !cfg.KeepWork {
		defer os.RemoveAll(runDir)
	}
	logf("work dir: %s", runDir)

	key := types.KeySpec{Color: cfg.KeyColor, Similarity: cfg.Similarity, Blend: cfg.Blend}
	in := usecase.Input{
		ReferencePath:  cfg.ReferencePath,
		AudioPath:      cfg.AudioPath,
		OutputPath:     cfg.OutputPath,
		FPS:            cfg.FPS,
		Epsilon:        cfg.Epsilon,
		QueueDepth:     cfg.QueueDepth,
		FaceCenter:     cfg.FaceCenter,
		BBoxShift:      cfg.BBoxShift,
		DryRun:         cfg.DryRun,
		StaticFallback: cfg.AllowStaticFallback,
		WorkDir:        runDir,
		AlphaOut:       cfg.AlphaOut,
		ThumbnailOut:   cfg.ThumbnailOut,
		Logf:           logf,
	}
	if cfg.Resolution != "" {
		in.ScaleWidth, in.ScaleHeight, _ = parseResolution(cfg.Resolution)
	}
	if cfg.needsKey() {
		in.Key = key
	}
	if cfg.BackgroundPath != "" {
		out := cfg.CompositeOut
		if out == "" {
			out = compositeOutPath(cfg.OutputPath)
		}
		in.Composite = &types.CompositeSpec{
			Background:  cfg.BackgroundPath,
			Key:         key,
			ScaleWidth:  cfg.FgScaleWidth,
			ScaleHeight: cfg.FgScaleHeight,
			X:           cfg.OverlayX,
			Y:           cfg.OverlayY,
			Output:      out,
		}
	}
	if cfg.ShowUI {
		in.Progress = frameBarProgress()
	}

	start := time.Now()
	res, err := uc.Run(ctx, in)
	if err != nil {
		return err
	}

	if res.DryRun {
		if cfg.ShowUI {
			ui.DisplayAsset("Reference", res.Reference)
			ui.DisplayAsset("Audio", res.Audio)
			ui.DisplayPlan(res.Plan)
		}
		logf("dry run: factor %.4f, %d frames at %d fps",
			res.Plan.Factor, res.Plan.TargetFrames, res.Plan.TargetFPS)
		return nil
	}

	outputs := []string{res.Output}
	for _, p := range []string{res.CompositeOut, res.AlphaOut, res.ThumbnailOut} {
		if p != "" {
			outputs = append(outputs, p)
		}
	}
	if cfg.ShowUI {
		ui.Summary(outputs, res.FramesReceived, time.Since(start))
	}
	for _, p := range outputs {
		logf("wrote %s", p)
	}
	return nil
}

// frameBarProgress adapts the progress bar to the usecase callback. The
// bar is created on the first call, once the service has declared a
// total.
func frameBarProgress() func(received, total int) {
	var bar interface{ Set(int) error }
	return func(received, total int) {
		if bar == nil {
			bar = ui.NewFrameBar(total)
		}
		_ = bar.Set(received)
	}
}

// buildRunID names the per-run work directory. The uuid suffix keeps
// concurrent runs over the same reference from sharing artifacts.
func buildRunID(referencePath string) string {
	name := strings.TrimSuffix(filepath.Base(referencePath), filepath.Ext(referencePath))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	return fmt.Sprintf("%s-%s", name, uuid.New().String()[:8])
}

func parseResolution(s string) (w, h int, err error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("resolution %q must be WxH", s)
	}
	w, werr := strconv.Atoi(parts[0])
	h, herr := strconv.Atoi(parts[1])
	if werr != nil || herr != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("resolution %q must be two positive integers", s)
	}
	return w, h, nil
}

func compositeOutPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + "-composited" + ext
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// ensure adapters implement ports
var _ ports.MediaProber = (*ffmpeg.Adapter)(nil)
var _ ports.FrameInterpolator = (*ffmpeg.Adapter)(nil)
var _ ports.FrameEncoder = (*ffmpeg.Adapter)(nil)
var _ ports.Compositor = (*ffmpeg.Adapter)(nil)
var _ ports.BackgroundExtractor = (*ffmpeg.Adapter)(nil)
var _ ports.LipSyncService = (*musetalk.Client)(nil)
var _ ports.BackgroundExtractor = (*nativekey.Adapter)(nil)
