package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	th "github.com/desertthunder/plsync/internal/testing"
)

func sampleReport() models.DiffReport {
	return models.DiffReport{
		Matched: []models.MatchPair{{
			Source:     th.Track("s1", "Halcyon", "Orbital", 300000),
			Target:     th.Track("y1", "Halcyon", "Orbital", 301000),
			Confidence: 0.97,
		}},
		MissingOnTarget: []models.TrackRef{th.Track("s2", "Chime", "Orbital", 420000)},
		MissingOnSource: []models.TrackRef{th.Track("y2", "Belfast", "Orbital", 0)},
		Ambiguous: []models.AmbiguousGroup{{
			Track: th.Track("s3", "Satan", "Orbital", 360000),
			Candidates: []models.MatchPair{
				{Target: th.Track("y3", "Satan", "Orbital", 360000), Confidence: 0.85},
				{Target: th.Track("y4", "Satan (Live)", "Orbital", 361000), Confidence: 0.83},
			},
		}},
	}
}

func sampleRun() *models.SyncRun {
	run := models.NewSyncRun("run-1", models.Direction{Source: models.Spotify, Target: models.YouTube}, "src", "dst", 50, false)
	run.Operations = []models.SyncOperation{
		{Kind: models.OpAdd, Track: th.Track("s2", "Chime", "Orbital", 420000), TargetTrackID: "y9", Confidence: 0.9, Attempts: 1, Status: models.OpSucceeded},
		{Kind: models.OpAdd, Track: th.Track("s5", "Lush | 3", "Orbital", 0), Status: models.OpSkipped, Reason: models.ReasonNotFoundOnTarget},
	}
	_ = run.Transition(models.RunRunning)
	_ = run.Transition(models.RunCompleted)
	return run
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", Text},
		{"TEXT", Text},
		{"md", Markdown},
		{"markdown", Markdown},
		{"csv", CSV},
		{"json", JSON},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}

	if _, err := ParseFormat("yaml"); !errors.Is(err, shared.ErrInvalidFlag) {
		t.Errorf("expected ErrInvalidFlag, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{0: "-", 59000: "0:59", 301000: "5:01", 3600000: "60:00"}
	for ms, want := range tests {
		if got := FormatDuration(ms); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestDiffRenderers(t *testing.T) {
	report := sampleReport()

	t.Run("CSV", func(t *testing.T) {
		data, err := DiffToCSV(report)
		if err != nil {
			t.Fatalf("DiffToCSV failed: %v", err)
		}
		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(rows) != 6 {
			t.Fatalf("expected header and 5 rows, got %d", len(rows))
		}
		if rows[1][0] != "matched" || rows[1][5] != "0.970" {
			t.Errorf("unexpected matched row %v", rows[1])
		}
		if rows[3][0] != "missing_on_source" || rows[3][3] != "y2" {
			t.Errorf("unexpected missing row %v", rows[3])
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		out := string(DiffToMarkdown(report))
		for _, want := range []string{
			"# Playlist comparison",
			"**Matched**: 1",
			"| Orbital - Halcyon | Orbital - Halcyon | 0.970 |",
			"## Missing on target",
			"1. Orbital - Chime [7:00]",
			"Orbital - Belfast [-]",
			"## Ambiguous",
			"  - Orbital - Satan (Live) [6:01] (0.830)",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("markdown missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("Text", func(t *testing.T) {
		out := string(DiffToText(report, DefaultPalette))
		if !strings.Contains(out, "Missing on target") || !strings.Contains(out, "Orbital - Chime") {
			t.Errorf("text output missing sections:\n%s", out)
		}
		if strings.Contains(out, "in sync") {
			t.Error("report with differences must not be reported in sync")
		}
	})

	t.Run("Text in sync", func(t *testing.T) {
		out := string(DiffToText(models.DiffReport{Matched: report.Matched}, DefaultPalette))
		if !strings.Contains(out, "Playlists are in sync") {
			t.Errorf("expected in sync message:\n%s", out)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := RenderDiff(report, JSON)
		if err != nil {
			t.Fatalf("RenderDiff failed: %v", err)
		}
		var decoded models.DiffReport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded.Ambiguous) != 1 || len(decoded.Ambiguous[0].Candidates) != 2 {
			t.Errorf("ambiguous group lost: %+v", decoded.Ambiguous)
		}
	})
}

func TestRunRenderers(t *testing.T) {
	run := sampleRun()

	t.Run("CSV", func(t *testing.T) {
		data, err := RunToCSV(run)
		if err != nil {
			t.Fatalf("RunToCSV failed: %v", err)
		}
		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(rows))
		}
		if rows[2][5] != "skipped" || rows[2][6] != models.ReasonNotFoundOnTarget {
			t.Errorf("unexpected row %v", rows[2])
		}
	})

	t.Run("Markdown escapes pipes", func(t *testing.T) {
		out := string(RunToMarkdown(run))
		if !strings.Contains(out, `Orbital - Lush \| 3`) {
			t.Errorf("expected escaped pipe:\n%s", out)
		}
		if !strings.Contains(out, "**Operations**: 1 succeeded, 0 failed, 1 skipped of 2") {
			t.Errorf("missing summary:\n%s", out)
		}
	})

	t.Run("Text", func(t *testing.T) {
		out := string(RunToText(run, DefaultPalette))
		if !strings.Contains(out, "run-1") || !strings.Contains(out, "completed") || !strings.Contains(out, models.ReasonNotFoundOnTarget) {
			t.Errorf("unexpected text:\n%s", out)
		}
	})

	t.Run("JSON includes summary", func(t *testing.T) {
		data, err := RenderRun(run, JSON)
		if err != nil {
			t.Fatalf("RenderRun failed: %v", err)
		}
		var decoded struct {
			ID      string            `json:"id"`
			Summary models.RunSummary `json:"summary"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.ID != "run-1" || decoded.Summary.Skipped != 1 {
			t.Errorf("unexpected decoded run %+v", decoded)
		}
	})
}
