package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/vidforge/lipsync/internal/domain/stretch"
	"github.com/vidforge/lipsync/internal/types"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#111827"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)
)

// DisplayAsset prints a bordered panel describing a probed input.
func DisplayAsset(title string, a types.MediaAsset) {
	var size int64
	if fi, err := os.Stat(a.Path); err == nil {
		size = fi.Size()
	}

	content := fmt.Sprintf(
		"%s %s\n"+
			"%s %s\n"+
			"%s %s\n"+
			"%s %s",
		labelStyle.Render(title+":"), valueStyle.Render(filepath.Base(a.Path)),
		labelStyle.Render("Kind:"), valueStyle.Render(string(a.Kind)),
		labelStyle.Render("Size:"), valueStyle.Render(FormatFileSize(size)),
		labelStyle.Render("Duration:"), valueStyle.Render(FormatDuration(a.Duration)),
	)
	if a.Kind != types.KindAudio {
		content += fmt.Sprintf("\n%s %dx%d", labelStyle.Render("Dimensions:"), a.Width, a.Height)
	}
	if a.Kind == types.KindVideo {
		content += fmt.Sprintf("\n%s %.3f fps, %d frames",
			labelStyle.Render("Frames:"), a.FrameRate, a.FrameCount)
	}

	fmt.Println(panelStyle.Render(content))
}

// DisplayPlan prints the computed stretch ahead of generation.
func DisplayPlan(p stretch.Plan) {
	mode := fmt.Sprintf("stretch ×%.4f", p.Factor)
	if p.PassThrough() {
		mode = "pass-through"
	}
	content := fmt.Sprintf(
		"%s %s\n"+
			"%s %.3fs → %.3fs\n"+
			"%s %d frames at %d fps",
		labelStyle.Render("Mode:"), valueStyle.Render(mode),
		labelStyle.Render("Duration:"), p.SourceDuration, p.TargetDuration,
		labelStyle.Render("Target:"), p.TargetFrames, p.TargetFPS,
	)
	fmt.Println(panelStyle.Render(content))
}

// Summary prints the written outputs once a run succeeds.
func Summary(outputs []string, frames int, elapsed time.Duration) {
	content := okStyle.Render("✓ Done") + fmt.Sprintf(
		"\n%s %d\n%s %s",
		labelStyle.Render("Frames:"), frames,
		labelStyle.Render("Elapsed:"), elapsed.Round(time.Millisecond),
	)
	for _, out := range outputs {
		var size int64
		if fi, err := os.Stat(out); err == nil {
			size = fi.Size()
		}
		content += fmt.Sprintf("\n%s %s (%s)",
			labelStyle.Render("Output:"), valueStyle.Render(out), FormatFileSize(size))
	}
	fmt.Println(panelStyle.Render(content))
}

// NewFrameBar builds the progress bar for frame reception. total may be
// zero when the service has not declared a count yet.
func NewFrameBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Receiving frames"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// FormatFileSize converts bytes to a human-readable form.
func FormatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration converts seconds to MM:SS.
func FormatDuration(seconds float64) string {
	totalSeconds := int(seconds)
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}
