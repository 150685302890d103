// package formatter renders diff reports and sync runs as text, Markdown, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Format is an output format name.
type Format string

const (
	Text     Format = "text"
	Markdown Format = "markdown"
	CSV      Format = "csv"
	JSON     Format = "json"
)

// ParseFormat accepts "text", "markdown" (or "md"), "csv" and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "markdown", "md":
		return Markdown, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// RenderDiff renders report in format f.
func RenderDiff(report models.DiffReport, f Format) ([]byte, error) {
	switch f {
	case Markdown:
		return DiffToMarkdown(report), nil
	case CSV:
		return DiffToCSV(report)
	case JSON:
		return json.MarshalIndent(report, "", "  ")
	default:
		return DiffToText(report, DefaultPalette), nil
	}
}

// RenderRun renders run in format f.
func RenderRun(run *models.SyncRun, f Format) ([]byte, error) {
	switch f {
	case Markdown:
		return RunToMarkdown(run), nil
	case CSV:
		return RunToCSV(run)
	case JSON:
		return json.MarshalIndent(struct {
			*models.SyncRun
			Summary models.RunSummary `json:"summary"`
		}{run, run.Summary()}, "", "  ")
	default:
		return RunToText(run, DefaultPalette), nil
	}
}

// FormatDuration renders milliseconds as "m:ss", or "-" when unknown.
func FormatDuration(ms int) string {
	if ms <= 0 {
		return "-"
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func trackLabel(t models.TrackRef) string {
	return fmt.Sprintf("%s [%s]", t.String(), FormatDuration(t.DurationMs))
}

// DiffToCSV writes one row per track with columns: Status, Source ID, Source, Target ID, Target, Confidence.
// Ambiguous sources get one row per candidate.
func DiffToCSV(report models.DiffReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	rows := [][]string{{"Status", "Source ID", "Source", "Target ID", "Target", "Confidence"}}
	for _, m := range report.Matched {
		rows = append(rows, []string{"matched", m.Source.PlatformID, m.Source.String(), m.Target.PlatformID, m.Target.String(), confidence(m.Confidence)})
	}
	for _, t := range report.MissingOnTarget {
		rows = append(rows, []string{"missing_on_target", t.PlatformID, t.String(), "", "", ""})
	}
	for _, t := range report.MissingOnSource {
		rows = append(rows, []string{"missing_on_source", "", "", t.PlatformID, t.String(), ""})
	}
	for _, g := range report.Ambiguous {
		for _, c := range g.Candidates {
			rows = append(rows, []string{"ambiguous", g.Track.PlatformID, g.Track.String(), c.Target.PlatformID, c.Target.String(), confidence(c.Confidence)})
		}
	}

	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// DiffToMarkdown renders a report with one section per bucket.
func DiffToMarkdown(report models.DiffReport) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Playlist comparison\n\n")
	fmt.Fprintf(&buf, "**Matched**: %d\n", len(report.Matched))
	fmt.Fprintf(&buf, "**Missing on target**: %d\n", len(report.MissingOnTarget))
	fmt.Fprintf(&buf, "**Missing on source**: %d\n", len(report.MissingOnSource))
	fmt.Fprintf(&buf, "**Ambiguous**: %d\n\n", len(report.Ambiguous))

	if len(report.Matched) > 0 {
		buf.WriteString("## Matched\n\n| Source | Target | Confidence |\n|---|---|---|\n")
		for _, m := range report.Matched {
			fmt.Fprintf(&buf, "| %s | %s | %s |\n", mdCell(m.Source.String()), mdCell(m.Target.String()), confidence(m.Confidence))
		}
		buf.WriteString("\n")
	}
	writeTrackList(&buf, "Missing on target", report.MissingOnTarget)
	writeTrackList(&buf, "Missing on source", report.MissingOnSource)

	if len(report.Ambiguous) > 0 {
		buf.WriteString("## Ambiguous\n\n")
		for _, g := range report.Ambiguous {
			fmt.Fprintf(&buf, "- %s\n", trackLabel(g.Track))
			for _, c := range g.Candidates {
				fmt.Fprintf(&buf, "  - %s (%s)\n", trackLabel(c.Target), confidence(c.Confidence))
			}
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func writeTrackList(buf *bytes.Buffer, title string, tracks []models.TrackRef) {
	if len(tracks) == 0 {
		return
	}
	fmt.Fprintf(buf, "## %s\n\n", title)
	for i, t := range tracks {
		fmt.Fprintf(buf, "%d. %s\n", i+1, trackLabel(t))
	}
	buf.WriteString("\n")
}

// DiffToText renders a report for the terminal.
func DiffToText(report models.DiffReport, p *Palette) []byte {
	var buf bytes.Buffer

	buf.WriteString(p.Title("Comparison") + "\n")
	fmt.Fprintf(&buf, "  %s %d\n", p.OK("matched"), len(report.Matched))
	fmt.Fprintf(&buf, "  %s %d\n", p.Warn("missing on target"), len(report.MissingOnTarget))
	fmt.Fprintf(&buf, "  %s %d\n", p.Warn("missing on source"), len(report.MissingOnSource))
	fmt.Fprintf(&buf, "  %s %d\n", p.Err("ambiguous"), len(report.Ambiguous))

	if report.InSync() {
		buf.WriteString("\n" + p.OK("✓ Playlists are in sync") + "\n")
		return buf.Bytes()
	}

	for _, section := range []struct {
		title  string
		tracks []models.TrackRef
	}{
		{"Missing on target", report.MissingOnTarget},
		{"Missing on source", report.MissingOnSource},
	} {
		if len(section.tracks) == 0 {
			continue
		}
		buf.WriteString("\n" + p.Title(section.title) + "\n")
		for _, t := range section.tracks {
			fmt.Fprintf(&buf, "  - %s\n", trackLabel(t))
		}
	}

	if len(report.Ambiguous) > 0 {
		buf.WriteString("\n" + p.Title("Ambiguous") + "\n")
		for _, g := range report.Ambiguous {
			fmt.Fprintf(&buf, "  - %s\n", trackLabel(g.Track))
			for _, c := range g.Candidates {
				fmt.Fprintf(&buf, "      %s %s\n", p.Help(confidence(c.Confidence)), trackLabel(c.Target))
			}
		}
	}
	return buf.Bytes()
}

// RunToCSV writes one row per operation in planning order.
func RunToCSV(run *models.SyncRun) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	rows := [][]string{{"Position", "Kind", "Track", "Target ID", "Confidence", "Status", "Reason", "Attempts", "Error"}}
	for i, op := range run.Operations {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(op.Kind),
			op.Track.String(),
			op.TargetTrackID,
			confidence(op.Confidence),
			string(op.Status),
			op.Reason,
			strconv.Itoa(op.Attempts),
			op.LastError,
		})
	}

	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// RunToMarkdown renders a run summary and its operations table.
func RunToMarkdown(run *models.SyncRun) []byte {
	var buf bytes.Buffer
	s := run.Summary()

	fmt.Fprintf(&buf, "# Sync run %s\n\n", run.ID)
	fmt.Fprintf(&buf, "**Direction**: %s\n", run.Direction)
	fmt.Fprintf(&buf, "**Playlists**: %s → %s\n", run.SourcePlaylistID, run.TargetPlaylistID)
	fmt.Fprintf(&buf, "**State**: %s\n", run.State)
	fmt.Fprintf(&buf, "**Operations**: %d succeeded, %d failed, %d skipped of %d\n", s.Succeeded, s.Failed, s.Skipped, s.Total)
	if run.Error != "" {
		fmt.Fprintf(&buf, "**Error**: %s\n", run.Error)
	}
	buf.WriteString("\n")

	if len(run.Operations) > 0 {
		buf.WriteString("| # | Kind | Track | Status | Reason | Attempts |\n|---|---|---|---|---|---|\n")
		for i, op := range run.Operations {
			fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %d |\n", i+1, op.Kind, mdCell(op.Track.String()), op.Status, op.Reason, op.Attempts)
		}
	}
	return buf.Bytes()
}

// RunToText renders a run for the terminal.
func RunToText(run *models.SyncRun, p *Palette) []byte {
	var buf bytes.Buffer
	s := run.Summary()

	buf.WriteString(p.Title(fmt.Sprintf("Sync run %s (%s)", run.ID, run.Direction)) + "\n")
	fmt.Fprintf(&buf, "  state: %s\n", stateLabel(run.State, p))
	fmt.Fprintf(&buf, "  %s %d  %s %d  %s %d\n", p.OK("succeeded"), s.Succeeded, p.Err("failed"), s.Failed, p.Warn("skipped"), s.Skipped)
	if run.Error != "" {
		fmt.Fprintf(&buf, "  %s %s\n", p.Err("error:"), run.Error)
	}

	for _, op := range run.Operations {
		mark := p.OK("✓")
		switch op.Status {
		case models.OpFailed:
			mark = p.Err("✗")
		case models.OpSkipped:
			mark = p.Warn("-")
		}
		line := fmt.Sprintf("  %s %-6s %s", mark, op.Kind, op.Track)
		if op.Reason != "" {
			line += " " + p.Help("("+op.Reason+")")
		}
		buf.WriteString(line + "\n")
	}
	return buf.Bytes()
}

func stateLabel(s models.RunState, p *Palette) string {
	switch s {
	case models.RunCompleted:
		return p.OK(string(s))
	case models.RunFailed:
		return p.Err(string(s))
	default:
		return p.Warn(string(s))
	}
}

func confidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 3, 64)
}

func mdCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
