package stretch

import (
	"fmt"
	"math"
)

// DefaultEpsilon is the relative factor deviation below which a plan is a
// pass-through: re-timing a clip by less than half a percent is not worth
// the quality cost of interpolation.
const DefaultEpsilon = 0.005

// Plan captures the time scaling needed to make a reference clip cover an
// audio track. Factor is target/source duration.
type Plan struct {
	SourceDuration float64
	TargetDuration float64
	Factor         float64
	TargetFPS      int
	TargetFrames   int
	Epsilon        float64
}

// PlanError reports an unusable stretch computation.
type PlanError struct {
	SourceDuration float64
	TargetDuration float64
	Reason         string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("stretch plan for %.3fs -> %.3fs: %s",
		e.SourceDuration, e.TargetDuration, e.Reason)
}

// NewPlan computes the stretch from a reference duration to an audio
// duration at the given output frame rate. epsilon <= 0 selects
// DefaultEpsilon.
func NewPlan(sourceDur, targetDur float64, fps int, epsilon float64) (Plan, error) {
	if fps <= 0 {
		return Plan{}, &PlanError{sourceDur, targetDur, fmt.Sprintf("fps must be > 0, got %d", fps)}
	}
	if targetDur <= 0 || math.IsNaN(targetDur) || math.IsInf(targetDur, 0) {
		return Plan{}, &PlanError{sourceDur, targetDur, "target duration must be finite and positive"}
	}
	if sourceDur <= 0 || math.IsNaN(sourceDur) || math.IsInf(sourceDur, 0) {
		return Plan{}, &PlanError{sourceDur, targetDur, "source duration must be finite and positive"}
	}

	factor := targetDur / sourceDur
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Plan{}, &PlanError{sourceDur, targetDur, fmt.Sprintf("factor %v is not finite and positive", factor)}
	}

	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return Plan{
		SourceDuration: sourceDur,
		TargetDuration: targetDur,
		Factor:         factor,
		TargetFPS:      fps,
		TargetFrames:   int(math.Round(targetDur * float64(fps))),
		Epsilon:        epsilon,
	}, nil
}

// StillPlan is the degenerate plan for a still-image reference: nothing to
// stretch, the frame count is dictated by the audio alone.
func StillPlan(targetDur float64, fps int) (Plan, error) {
	return NewPlan(targetDur, targetDur, fps, 0)
}

// PassThrough reports whether the factor is close enough to 1 that the
// reference can be used as-is. Interpolation on a near-unity factor only
// degrades the footage.
func (p Plan) PassThrough() bool {
	return math.Abs(p.Factor-1) <= p.Epsilon
}

// FrameCountOK reports whether a realized frame count lands within the
// one-frame tolerance of the plan.
func (p Plan) FrameCountOK(n int) bool {
	d := n - p.TargetFrames
	return d >= -1 && d <= 1
}
