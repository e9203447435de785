package ffmpeg

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vidforge/lipsync/internal/domain/stretch"
)

// Interpolate realizes a stretch plan with motion-compensated frame
// synthesis. setpts rescales the timeline by the plan factor and
// minterpolate fills the target rate with blended intermediates, so visual
// motion speed survives the retiming. Factors below 1 go through the same
// filter; dropping to the target rate via interpolation avoids the motion
// discontinuity a plain trim would leave.
func (a *Adapter) Interpolate(ctx context.Context, inPath string, plan stretch.Plan, outPath string) error {
	err := a.run(ctx,
		"-y",
		"-i", inPath,
		"-vf", interpolateFilter(plan),
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("interpolate %s (factor %.4f): %w", inPath, plan.Factor, err)
	}
	return nil
}

// interpolateFilter emits the factor at full precision. Rounding it scales
// the realized duration by the rounding error times the source length,
// which on long clips pushes the frame count outside the one-frame
// tolerance.
func interpolateFilter(plan stretch.Plan) string {
	return fmt.Sprintf(
		"setpts=%s*PTS,minterpolate=fps=%d:mi_mode=mci:mc_mode=aobmc",
		strconv.FormatFloat(plan.Factor, 'f', -1, 64), plan.TargetFPS,
	)
}
