package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vidforge/lipsync/internal/domain/assembly"
	"github.com/vidforge/lipsync/internal/domain/stretch"
	"github.com/vidforge/lipsync/internal/ports"
	"github.com/vidforge/lipsync/internal/types"
)

type Deps struct {
	Prober     ports.MediaProber
	Interp     ports.FrameInterpolator
	Service    ports.LipSyncService
	Encoder    ports.FrameEncoder
	Compositor ports.Compositor
	Extractor  ports.BackgroundExtractor
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	ReferencePath string
	AudioPath     string
	OutputPath    string
	FPS           int
	Epsilon       float64
	QueueDepth    int
	FaceCenter    []int
	BBoxShift     int

	// Output resolution; zero keeps the generated frame size.
	ScaleWidth  int
	ScaleHeight int

	// DryRun stops after probing and planning: inputs validated, plan
	// computed, no service contact, nothing written.
	DryRun bool
	// StaticFallback permits a non-lip-synced still video when the
	// service is down and the reference is an image.
	StaticFallback bool

	WorkDir string

	Composite    *types.CompositeSpec
	Key          types.KeySpec
	AlphaOut     string
	ThumbnailOut string

	Logf     func(format string, args ...any)
	Progress func(received, total int)
}

type Result struct {
	Reference types.MediaAsset
	Audio     types.MediaAsset
	Plan      stretch.Plan
	Health    types.ServerHealth

	DryRun         bool
	Fallback       bool
	FramesReceived int

	Output       string
	CompositeOut string
	AlphaOut     string
	ThumbnailOut string
}

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	progress := in.Progress
	if progress == nil {
		progress = func(int, int) {}
	}

	ref, err := u.d.Prober.Probe(ctx, in.ReferencePath)
	if err != nil {
		return Result{}, err
	}
	audio, err := u.d.Prober.Probe(ctx, in.AudioPath)
	if err != nil {
		return Result{}, err
	}
	if audio.Kind == types.KindImage {
		return Result{}, fmt.Errorf("audio input %s probes as an image", audio.Path)
	}
	logf("reference: %s %s %.3fs", ref.Kind, ref.Path, ref.Duration)
	logf("audio: %.3fs from %s", audio.Duration, audio.Path)

	var plan stretch.Plan
	if ref.Kind == types.KindImage {
		plan, err = stretch.StillPlan(audio.Duration, in.FPS)
	} else {
		plan, err = stretch.NewPlan(ref.Duration, audio.Duration, in.FPS, in.Epsilon)
	}
	if err != nil {
		return Result{}, err
	}
	logf("plan: factor %.4f, %d frames at %d fps", plan.Factor, plan.TargetFrames, plan.TargetFPS)

	res := Result{Reference: ref, Audio: audio, Plan: plan}
	if in.DryRun {
		res.DryRun = true
		return res, nil
	}

	refPath := ref.Path
	if ref.Kind == types.KindVideo && !plan.PassThrough() {
		stretched := filepath.Join(in.WorkDir, "stretched.mp4")
		logf("stretching reference by %.4f via interpolation", plan.Factor)
		if err := u.d.Interp.Interpolate(ctx, ref.Path, plan, stretched); err != nil {
			return Result{}, err
		}
		probed, err := u.d.Prober.Probe(ctx, stretched)
		if err != nil {
			return Result{}, err
		}
		if !plan.FrameCountOK(probed.FrameCount) {
			return Result{}, fmt.Errorf("stretched reference has %d frames, want %d within one",
				probed.FrameCount, plan.TargetFrames)
		}
		refPath = stretched
	}

	health, err := u.d.Service.Health(ctx)
	if err != nil {
		if in.StaticFallback && ref.Kind == types.KindImage {
			logf("service unavailable, falling back to static video: %v", err)
			if err := u.d.Encoder.EncodeStill(ctx, ref.Path, in.AudioPath, plan.TargetFPS, in.OutputPath); err != nil {
				return Result{}, err
			}
			res.Fallback = true
			res.Output = in.OutputPath
			return res, nil
		}
		return Result{}, err
	}
	res.Health = health
	logf("service healthy: version=%s model_loaded=%v gpu=%v", health.Version, health.ModelLoaded, health.GPUAvailable)

	req, err := buildRequest(refPath, ref.Kind, in.AudioPath, plan, in.FaceCenter, in.BBoxShift)
	if err != nil {
		return Result{}, err
	}

	received, err := u.generateAndEncode(ctx, in, plan, req, logf, progress)
	res.FramesReceived = received
	if err != nil {
		return res, err
	}
	res.Output = in.OutputPath

	if in.AlphaOut != "" {
		logf("extracting alpha rendition: %s", in.AlphaOut)
		if err := u.d.Extractor.ExtractAlpha(ctx, in.OutputPath, in.Key, in.AlphaOut); err != nil {
			return res, err
		}
		res.AlphaOut = in.AlphaOut
	}
	if in.ThumbnailOut != "" {
		if err := u.d.Extractor.Thumbnail(ctx, in.OutputPath, in.Key, in.ThumbnailOut); err != nil {
			return res, err
		}
		res.ThumbnailOut = in.ThumbnailOut
	}
	if in.Composite != nil {
		spec := *in.Composite
		// The compositor keys the raw generated clip. Feeding it an
		// already alpha-extracted asset re-samples the mask edge and
		// shows up as a dark ring, so the foreground is always the
		// unprocessed output.
		spec.Foreground = in.OutputPath
		if spec.AudioSource == "" {
			spec.AudioSource = in.OutputPath
		}
		logf("compositing onto %s", spec.Background)
		if err := u.d.Compositor.Composite(ctx, spec); err != nil {
			return res, err
		}
		res.CompositeOut = spec.Output
	}
	return res, nil
}

// generateAndEncode runs the three concurrent stages: the client's receive
// loop feeding a bounded queue, the assembler ordering frames out of it,
// and the encoder draining the assembler's contiguous prefix. The queue is
// the only shared structure; a full queue suspends the client.
func (u Usecase) generateAndEncode(
	ctx context.Context,
	in Input,
	plan stretch.Plan,
	req types.InferenceRequest,
	logf func(string, ...any),
	progress func(int, int),
) (int, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	depth := in.QueueDepth
	if depth <= 0 {
		depth = 32
	}
	asm := assembly.New(depth)
	frameC := make(chan types.Frame, depth)

	genErrC := make(chan error, 1)
	go func() {
		defer close(frameC)
		genErrC <- u.d.Service.Generate(runCtx, req, &queueSink{
			asm:      asm,
			queue:    frameC,
			plan:     plan,
			logf:     logf,
			progress: progress,
		})
	}()

	asmErrC := make(chan error, 1)
	go func() {
		for f := range frameC {
			if err := asm.Add(runCtx, f); err != nil {
				cancelRun()
				asmErrC <- err
				return
			}
		}
		asmErrC <- nil
	}()

	encErrC := make(chan error, 1)
	go func() {
		err := u.d.Encoder.Encode(runCtx, types.EncodeSpec{
			FPS:        plan.TargetFPS,
			Width:      in.ScaleWidth,
			Height:     in.ScaleHeight,
			AudioPath:  in.AudioPath,
			OutputPath: in.OutputPath,
		}, asm.Output())
		if err != nil {
			cancelRun()
		}
		encErrC <- err
	}()

	genErr := <-genErrC
	asmErr := <-asmErrC

	var finErr error
	if genErr == nil && asmErr == nil {
		// The client returned cleanly; nothing else can arrive, so any
		// remaining gap fails the run immediately.
		finErr = asm.Finish(0)
	}

	if genErr != nil || asmErr != nil || finErr != nil {
		cancelRun()
		encErr := <-encErrC // encoder aborts and removes its partial file
		return asm.Received(), firstCause(asmErr, genErr, finErr, encErr)
	}

	if err := <-encErrC; err != nil {
		return asm.Received(), err
	}
	return asm.Received(), nil
}

// firstCause prefers the error that started the cascade over the
// context-cancellation errors the other stages report once the run is
// being torn down.
func firstCause(errs ...error) error {
	for _, e := range errs {
		if e != nil && !errors.Is(e, context.Canceled) && !errors.Is(e, context.DeadlineExceeded) {
			return e
		}
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

type queueSink struct {
	asm      *assembly.Assembler
	queue    chan<- types.Frame
	plan     stretch.Plan
	logf     func(string, ...any)
	progress func(received, total int)
	total    int
	received int
}

func (s *queueSink) Expect(total, fps int) error {
	if err := s.asm.Expect(total); err != nil {
		return err
	}
	s.total = total
	if fps > 0 && fps != s.plan.TargetFPS {
		s.logf("service fps %d differs from planned %d", fps, s.plan.TargetFPS)
	}
	if !s.plan.FrameCountOK(total) {
		s.logf("service declared %d frames, plan expects %d", total, s.plan.TargetFrames)
	}
	return nil
}

func (s *queueSink) Deliver(ctx context.Context, f types.Frame) error {
	select {
	case s.queue <- f:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.received++
	s.progress(s.received, s.total)
	return nil
}

func buildRequest(
	refPath string,
	kind types.MediaKind,
	audioPath string,
	plan stretch.Plan,
	faceCenter []int,
	bboxShift int,
) (types.InferenceRequest, error) {
	refBytes, err := os.ReadFile(refPath)
	if err != nil {
		return types.InferenceRequest{}, fmt.Errorf("read reference %s: %w", refPath, err)
	}
	audioBytes, err := os.ReadFile(audioPath)
	if err != nil {
		return types.InferenceRequest{}, fmt.Errorf("read audio %s: %w", audioPath, err)
	}

	req := types.InferenceRequest{
		Audio:     base64.StdEncoding.EncodeToString(audioBytes),
		FPS:       plan.TargetFPS,
		BBoxShift: bboxShift,
	}
	if len(faceCenter) == 2 {
		req.FaceCenter = faceCenter
	}
	if kind == types.KindImage {
		req.Image = base64.StdEncoding.EncodeToString(refBytes)
	} else {
		req.Video = base64.StdEncoding.EncodeToString(refBytes)
	}
	return req, nil
}
