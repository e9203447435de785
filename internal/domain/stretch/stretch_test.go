package stretch

import (
	"math"
	"testing"
)

func TestNewPlan_Table(t *testing.T) {
	tests := []struct {
		name       string
		src, dst   float64
		fps        int
		wantErr    bool
		wantFactor float64
		wantFrames int
	}{
		{"double", 2.5, 5.0, 30, false, 2.0, 150},
		{"halve", 5.0, 2.5, 30, false, 0.5, 75},
		{"identity", 3.0, 3.0, 25, false, 1.0, 75},
		{"readme scenario", 2.50, 5.075, 30, false, 2.03, 152},
		{"zero source", 0, 5, 30, true, 0, 0},
		{"negative target", 2, -1, 30, true, 0, 0},
		{"nan target", 2, math.NaN(), 30, true, 0, 0},
		{"inf source", math.Inf(1), 5, 30, true, 0, 0},
		{"zero fps", 2, 5, 0, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlan(tt.src, tt.dst, tt.fps, 0)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				var pe *PlanError
				if !asPlanError(err, &pe) {
					t.Fatalf("expected *PlanError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(p.Factor-tt.wantFactor) > 1e-9 {
				t.Fatalf("factor = %v, want %v", p.Factor, tt.wantFactor)
			}
			if p.TargetFrames != tt.wantFrames {
				t.Fatalf("target frames = %d, want %d", p.TargetFrames, tt.wantFrames)
			}
		})
	}
}

func asPlanError(err error, target **PlanError) bool {
	pe, ok := err.(*PlanError)
	if ok {
		*target = pe
	}
	return ok
}

func TestPlan_TargetFramesWithinOne(t *testing.T) {
	// round(audio_duration * fps) within +-1 for a sweep of duration pairs.
	for src := 0.5; src <= 10; src += 0.73 {
		for dst := 0.5; dst <= 12; dst += 0.91 {
			p, err := NewPlan(src, dst, 30, 0)
			if err != nil {
				t.Fatalf("NewPlan(%v, %v): %v", src, dst, err)
			}
			want := math.Round(dst * 30)
			if math.Abs(float64(p.TargetFrames)-want) > 1 {
				t.Fatalf("NewPlan(%v, %v).TargetFrames = %d, want %v +-1", src, dst, p.TargetFrames, want)
			}
		}
	}
}

func TestPlan_PassThroughSelection(t *testing.T) {
	// Factors away from 1 must take the interpolation path; factors inside
	// the epsilon neighborhood must not.
	for factor := 0.51; factor < 2.0; factor += 0.07 {
		p, err := NewPlan(4.0, 4.0*factor, 30, 0.005)
		if err != nil {
			t.Fatalf("NewPlan factor %v: %v", factor, err)
		}
		near := math.Abs(factor-1) <= 0.005
		if p.PassThrough() != near {
			t.Fatalf("factor %v: PassThrough() = %v, want %v", factor, p.PassThrough(), near)
		}
	}

	for _, factor := range []float64{0.996, 1.0, 1.004} {
		p, _ := NewPlan(10.0, 10.0*factor, 30, 0.005)
		if !p.PassThrough() {
			t.Fatalf("factor %v should pass through", factor)
		}
	}
}

func TestPlan_FrameCountOK(t *testing.T) {
	p, err := NewPlan(2.50, 5.075, 30, 0)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	for n, want := range map[int]bool{150: false, 151: true, 152: true, 153: true, 154: false} {
		if got := p.FrameCountOK(n); got != want {
			t.Fatalf("FrameCountOK(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestStillPlan(t *testing.T) {
	p, err := StillPlan(5.075, 30)
	if err != nil {
		t.Fatalf("StillPlan: %v", err)
	}
	if !p.PassThrough() {
		t.Fatalf("still plan must be a pass-through")
	}
	if p.TargetFrames != 152 {
		t.Fatalf("target frames = %d, want 152", p.TargetFrames)
	}
}
