package service

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// ReportGenerator generates session reports.
type ReportGenerator struct {
	metrics *MetricsCollector
}

// NewReportGenerator creates a new report generator.
func NewReportGenerator(metrics *MetricsCollector) *ReportGenerator {
	return &ReportGenerator{metrics: metrics}
}

// GenerateTextReport generates a text report.
func (r *ReportGenerator) GenerateTextReport(w io.Writer) error {
	sm := r.metrics.GetSessionMetrics()

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "SESSION REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "")

	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "  Session:          %s\n", sm.SessionID)
	fmt.Fprintf(w, "  Duration:         %s\n", sm.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Scenes Total:     %d\n", sm.ScenesTotal)
	fmt.Fprintf(w, "  Scenes Completed: %d\n", sm.ScenesCompleted)
	fmt.Fprintf(w, "  Scenes Failed:    %d\n", sm.ScenesFailed)
	fmt.Fprintf(w, "  Regenerations:    %d\n", sm.RetriesTotal)
	fmt.Fprintf(w, "  Degradations:     %d\n", sm.Degradations)
	fmt.Fprintln(w, "")

	fmt.Fprintln(w, "TOKEN USAGE")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "  Input Tokens:     %d\n", sm.TotalTokensIn)
	fmt.Fprintf(w, "  Output Tokens:    %d\n", sm.TotalTokensOut)
	fmt.Fprintf(w, "  Total Tokens:     %d\n", sm.TotalTokensIn+sm.TotalTokensOut)
	fmt.Fprintln(w, "")

	if err := r.writeAgentTable(w); err != nil {
		return err
	}
	if err := r.writeSceneTable(w); err != nil {
		return err
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	return nil
}

func (r *ReportGenerator) writeAgentTable(w io.Writer) error {
	agents := r.metrics.GetAgentMetrics()
	if len(agents) == 0 {
		return nil
	}
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "AGENT METRICS")
	fmt.Fprintln(w, strings.Repeat("-", 40))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  Agent\tCalls\tTokens\tErrors\tDegraded\tAvg Time")
	fmt.Fprintln(tw, "  -----\t-----\t------\t------\t--------\t--------")

	for _, name := range names {
		am := agents[name]
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%s\n",
			truncate(am.Name, 24),
			am.Invocations,
			am.TotalTokensIn+am.TotalTokensOut,
			am.Errors,
			am.Degradations,
			am.AvgDuration.Round(time.Millisecond),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, "")
	return nil
}

func (r *ReportGenerator) writeSceneTable(w io.Writer) error {
	scenes := r.metrics.GetAllSceneMetrics()
	if len(scenes) == 0 {
		return nil
	}

	fmt.Fprintln(w, "SCENE METRICS")
	fmt.Fprintln(w, strings.Repeat("-", 40))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tPurpose\tStatus\tCalls\tRetries\tDuration")
	fmt.Fprintln(tw, "  -\t-------\t------\t-----\t-------\t--------")

	for _, sm := range scenes {
		status := "✓"
		if !sm.Success {
			status = "✗"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%d\t%d\t%s\n",
			sm.Index,
			truncate(sm.Purpose, 20),
			status,
			sm.AgentCalls,
			sm.Retries,
			sm.Duration.Round(time.Millisecond),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, "")
	return nil
}

// GenerateJSONReport generates a JSON report.
func (r *ReportGenerator) GenerateJSONReport(w io.Writer) error {
	report := Report{
		GeneratedAt: time.Now(),
		Session:     r.metrics.GetSessionMetrics(),
		Agents:      r.metrics.GetAgentMetrics(),
		Scenes:      r.metrics.GetAllSceneMetrics(),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// GenerateSummary generates a brief summary string.
func (r *ReportGenerator) GenerateSummary() string {
	sm := r.metrics.GetSessionMetrics()

	return fmt.Sprintf(
		"Duration: %s | Scenes: %d/%d | Tokens: %d | Regenerations: %d",
		sm.TotalDuration.Round(time.Millisecond),
		sm.ScenesCompleted,
		sm.ScenesTotal,
		sm.TotalTokensIn+sm.TotalTokensOut,
		sm.RetriesTotal,
	)
}

// Report represents a generated report.
type Report struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Session     SessionMetrics           `json:"session"`
	Agents      map[string]*AgentMetrics `json:"agents"`
	Scenes      []*SceneMetrics          `json:"scenes"`
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
