package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "lipsync",
		Short:        "Generate a lip-synced video from a reference clip and an audio track",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	f := root.Flags()
	f.StringP("reference", "r", "", "Reference video or image of the speaker")
	f.StringP("audio", "a", "", "Audio track to lip-sync to")
	f.StringP("output", "o", "output.mp4", "Output video path")
	f.StringP("server", "s", "", "Inference server base URL")
	f.Int("fps", 30, "Output frame rate")
	f.String("resolution", "", "Output resolution as WxH, empty keeps the generated size")
	f.IntSlice("face-center", nil, "Face center as x,y pixels in the reference")
	f.Int("bbox-shift", 0, "Vertical face crop shift in pixels")
	f.Bool("stream", false, "Receive frames over the streaming endpoint")
	f.Bool("dry-run", false, "Probe inputs and print the plan without generating")
	f.Bool("allow-static-fallback", false, "Encode a still video if the server is down (image reference only)")
	f.BoolP("verbose", "v", false, "Log pipeline steps")
	f.BoolP("quiet", "q", false, "Suppress panels and progress output")

	f.String("background", "", "Background video to composite the keyed result onto")
	f.String("key-color", "#00FF00", "Chroma key color")
	f.Float64("similarity", 0.08, "Chroma key similarity threshold")
	f.Float64("blend", 0.05, "Chroma key edge blend")
	f.Int("overlay-x", 0, "Foreground x offset on the background")
	f.Int("overlay-y", 0, "Foreground y offset on the background")
	f.Int("fg-scale", 0, "Foreground width in pixels, 0 keeps the source size")
	f.String("composite-out", "", "Composited output path")
	f.String("alpha-out", "", "Alpha-capable WebM rendition path")
	f.String("thumbnail", "", "Half-resolution alpha rendition path")
	f.Bool("native-key", false, "Key alpha renditions in-process instead of with ffmpeg's colorkey")

	// Hidden tuning flags (internal)
	f.Float64("epsilon", 0, "Pass-through factor tolerance")
	f.Int("queue-depth", 32, "Frame queue depth")
	f.Duration("timeout", 0, "Inference request timeout")
	f.Int("retries", 3, "Retries for transient request failures")
	f.Duration("grace", 0, "Idle wait for late frames on the stream")
	f.Bool("keep-work", false, "Keep the per-run work directory")
	for _, name := range []string{"epsilon", "queue-depth", "timeout", "retries", "grace", "keep-work"} {
		_ = f.MarkHidden(name)
	}

	_ = root.MarkFlagRequired("reference")
	_ = root.MarkFlagRequired("audio")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
