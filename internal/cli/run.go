package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidforge/lipsync/internal/pipeline"
)

func run(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	reference, _ := f.GetString("reference")
	audio, _ := f.GetString("audio")
	output, _ := f.GetString("output")
	server, _ := f.GetString("server")
	fps, _ := f.GetInt("fps")
	resolution, _ := f.GetString("resolution")
	faceCenter, _ := f.GetIntSlice("face-center")
	bboxShift, _ := f.GetInt("bbox-shift")
	stream, _ := f.GetBool("stream")
	dryRun, _ := f.GetBool("dry-run")
	fallback, _ := f.GetBool("allow-static-fallback")
	verbose, _ := f.GetBool("verbose")
	quiet, _ := f.GetBool("quiet")

	background, _ := f.GetString("background")
	keyColor, _ := f.GetString("key-color")
	similarity, _ := f.GetFloat64("similarity")
	blend, _ := f.GetFloat64("blend")
	overlayX, _ := f.GetInt("overlay-x")
	overlayY, _ := f.GetInt("overlay-y")
	fgScale, _ := f.GetInt("fg-scale")
	compositeOut, _ := f.GetString("composite-out")
	alphaOut, _ := f.GetString("alpha-out")
	thumbnail, _ := f.GetString("thumbnail")
	nativeKey, _ := f.GetBool("native-key")

	epsilon, _ := f.GetFloat64("epsilon")
	queueDepth, _ := f.GetInt("queue-depth")
	timeout, _ := f.GetDuration("timeout")
	retries, _ := f.GetInt("retries")
	grace, _ := f.GetDuration("grace")
	keepWork, _ := f.GetBool("keep-work")

	if server == "" {
		server = getenvDefault("LIPSYNC_SERVER_URL", "http://localhost:3015")
	}

	absRef, err := filepath.Abs(reference)
	if err != nil {
		return err
	}
	absAudio, err := filepath.Abs(audio)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, time.Hour)
	defer cancelTimeout()

	logf := func(string, ...any) {}
	if verbose {
		logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	cfg := pipeline.Config{
		ReferencePath: absRef,
		AudioPath:     absAudio,
		OutputPath:    output,

		ServerURL:  server,
		FPS:        fps,
		Epsilon:    epsilon,
		Resolution: resolution,

		FaceCenter: faceCenter,
		BBoxShift:  bboxShift,

		Stream:         stream,
		RequestTimeout: timeout,
		Retries:        retries,
		Grace:          grace,
		QueueDepth:     queueDepth,

		DryRun:              dryRun,
		AllowStaticFallback: fallback,

		BackgroundPath: background,
		KeyColor:       keyColor,
		Similarity:     similarity,
		Blend:          blend,
		OverlayX:       overlayX,
		OverlayY:       overlayY,
		FgScaleWidth:   fgScale,
		CompositeOut:   compositeOut,
		AlphaOut:       alphaOut,
		ThumbnailOut:   thumbnail,
		NativeKey:      nativeKey,

		WorkDir:  getenvDefault("LIPSYNC_CACHE_DIR", ""),
		KeepWork: keepWork,

		FFmpegPath:  getenvDefault("LIPSYNC_FFMPEG", "ffmpeg"),
		FFprobePath: getenvDefault("LIPSYNC_FFPROBE", "ffprobe"),

		Logf:   logf,
		ShowUI: !quiet,
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return pipeline.Run(ctx, cfg)
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
