package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service/workflow"
)

// styles renders terminal output on stderr.
type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	dim   lipgloss.Style
	box   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{title: plain, ok: plain, warn: plain, fail: plain, dim: plain, box: plain}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("#04B575")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#FFB020")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("#767676")),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
	}
}

// progressObserver prints scene progress to stderr.
type progressObserver struct {
	workflow.NopObserver
	w  io.Writer
	st styles
	mu sync.Mutex
}

func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{w: w, st: newStyles(w)}
}

func (p *progressObserver) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *progressObserver) Degraded(d workflow.Degradation) {
	p.printf("  %s scene %d: %s/%s %s\n", p.st.warn.Render("!"), d.Scene.Index, d.AgentID, d.Key, p.st.dim.Render(d.Reason))
}

func (p *progressObserver) RetryTriggered(scene core.SceneInfo, attempt int, violations []string) {
	p.printf("  %s scene %d: regenerating (attempt %d) %s\n", p.st.warn.Render("↻"), scene.Index, attempt,
		p.st.dim.Render(strings.Join(violations, ", ")))
}

func (p *progressObserver) SceneCompleted(scene core.SceneInfo, _ *core.GeneratedScene, err error) {
	if err != nil {
		p.printf("%s scene %d %s: %v\n", p.st.fail.Render("✗"), scene.Index, scene.Purpose, err)
		return
	}
	p.printf("%s scene %d %s\n", p.st.ok.Render("✓"), scene.Index, scene.Purpose)
}

// printSummary prints a boxed summary of a finished generation.
func printSummary(w io.Writer, res *workflow.GenerationResult, metrics, out string) {
	st := newStyles(w)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", st.title.Render(fmt.Sprintf("%s: %d scenes", res.ContentType, len(res.Scenes))))
	for _, s := range res.Scenes {
		fmt.Fprintf(&b, "%2d. %-16s %s\n", s.Index, s.Purpose, st.dim.Render(s.Camera))
	}
	fmt.Fprintf(&b, "%s %s", st.dim.Render("aspect"), res.RenderingSpec.AspectRatio)
	if metrics != "" {
		fmt.Fprintf(&b, "\n%s", st.dim.Render(metrics))
	}
	if out != "" {
		fmt.Fprintf(&b, "\n%s %s", st.dim.Render("written to"), out)
	}
	fmt.Fprintln(w, st.box.Render(b.String()))
}
