package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"TEXT", FormatText},
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"", FormatText},
		{"invalid", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter(FormatMarkdown, "", WithWriter(&buf), WithColor(true))
	if err != nil {
		t.Fatalf("NewFormatter() error: %v", err)
	}
	defer f.Close()

	if f.Format() != FormatMarkdown {
		t.Errorf("Format() = %q, want markdown", f.Format())
	}
	if f.Writer() != &buf {
		t.Error("Writer() should return the configured writer")
	}
	if !f.colored {
		t.Error("WithColor(true) should enable color")
	}
}

func TestNewFormatterWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")

	f, err := NewFormatter(FormatJSON, path, WithColor(true))
	if err != nil {
		t.Fatalf("NewFormatter() error: %v", err)
	}
	if f.colored {
		t.Error("file output should never be colored")
	}
	if err := f.Output(map[string]int{"snapshots": 3}); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"snapshots": 3`) {
		t.Errorf("file content = %q", data)
	}
}

func TestNewFormatterInvalidPath(t *testing.T) {
	if _, err := NewFormatter(FormatText, filepath.Join(t.TempDir(), "missing", "dir", "out.txt")); err == nil {
		t.Error("NewFormatter() should fail for an unwritable path")
	}
}

func snapshotTable() *Table {
	return NewTable("Snapshots",
		[]string{"Period", "Commit", "LOC"},
		[][]string{
			{"2023-01", "abcdef12", "1,200"},
			{"2023-07", "12345678", "1,350"},
		},
		[]string{"Total", "", "2,550"},
		nil,
	)
}

func TestTableRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := snapshotTable().RenderText(&buf, false); err != nil {
		t.Fatalf("RenderText() error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"Snapshots\n=========", "PERIOD", "2023-07", "12345678", "1,350", "2,550"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := snapshotTable().RenderMarkdown(&buf); err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}

	want := "## Snapshots\n\n" +
		"| Period | Commit | LOC |\n" +
		"| --- | --- | --- |\n" +
		"| 2023-01 | abcdef12 | 1,200 |\n" +
		"| 2023-07 | 12345678 | 1,350 |\n" +
		"| Total |  | 2,550 |\n\n"
	if buf.String() != want {
		t.Errorf("RenderMarkdown() =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestTableRenderData(t *testing.T) {
	rows, ok := snapshotTable().RenderData().([]map[string]string)
	if !ok {
		t.Fatalf("RenderData() type = %T", snapshotTable().RenderData())
	}
	if len(rows) != 2 || rows[1]["Commit"] != "12345678" {
		t.Errorf("RenderData() = %v", rows)
	}

	custom := NewTable("x", nil, nil, nil, []int{1, 2})
	if got, ok := custom.RenderData().([]int); !ok || len(got) != 2 {
		t.Errorf("explicit data should be returned as-is, got %v", custom.RenderData())
	}
}

func TestSectionRender(t *testing.T) {
	s := &Section{Title: "Overview", Content: "Commits: 1,234"}

	var text bytes.Buffer
	if err := s.RenderText(&text, false); err != nil {
		t.Fatal(err)
	}
	if text.String() != "Overview\n--------\nCommits: 1,234\n" {
		t.Errorf("RenderText() = %q", text.String())
	}

	var md bytes.Buffer
	if err := s.RenderMarkdown(&md); err != nil {
		t.Fatal(err)
	}
	if md.String() != "## Overview\n\nCommits: 1,234\n\n" {
		t.Errorf("RenderMarkdown() = %q", md.String())
	}

	if s.RenderData() != s {
		t.Error("RenderData() without Data should return the section")
	}
}

func TestReportRender(t *testing.T) {
	r := &Report{
		Title: "drupal metrics",
		Sections: []Renderable{
			&Section{Title: "Overview", Content: "ok"},
			snapshotTable(),
		},
	}

	var text bytes.Buffer
	if err := r.RenderText(&text, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "drupal metrics") || !strings.Contains(text.String(), "1,350") {
		t.Errorf("RenderText() = %q", text.String())
	}

	var md bytes.Buffer
	if err := r.RenderMarkdown(&md); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(md.String(), "# drupal metrics\n\n## Overview") {
		t.Errorf("RenderMarkdown() = %q", md.String())
	}

	data, ok := r.RenderData().(map[string]any)
	if !ok || data["title"] != "drupal metrics" {
		t.Errorf("RenderData() = %v", r.RenderData())
	}
}

func TestFormatterOutput(t *testing.T) {
	type payload struct {
		Framework string `json:"framework"`
	}
	report := &Report{Title: "typo3", Sections: []Renderable{snapshotTable()}, Data: payload{"typo3"}}

	tests := []struct {
		format Format
		data   any
		check  func(t *testing.T, out string)
	}{
		{FormatJSON, report, func(t *testing.T, out string) {
			var got payload
			if err := json.Unmarshal([]byte(out), &got); err != nil || got.Framework != "typo3" {
				t.Errorf("json output = %q (%v)", out, err)
			}
		}},
		{FormatMarkdown, report, func(t *testing.T, out string) {
			if !strings.HasPrefix(out, "# typo3") {
				t.Errorf("markdown output = %q", out)
			}
		}},
		{FormatText, report, func(t *testing.T, out string) {
			if !strings.HasPrefix(out, "typo3\n=====") {
				t.Errorf("text output = %q", out)
			}
		}},
		{FormatText, payload{"raw"}, func(t *testing.T, out string) {
			if !strings.Contains(out, `"framework": "raw"`) {
				t.Errorf("non-renderable data should be JSON, got %q", out)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			f, err := NewFormatter(tt.format, "", WithWriter(&buf))
			if err != nil {
				t.Fatal(err)
			}
			if err := f.Output(tt.data); err != nil {
				t.Fatalf("Output() error: %v", err)
			}
			tt.check(t, buf.String())
		})
	}
}

func TestFormatterMessages(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter(FormatText, "", WithWriter(&buf))
	if err != nil {
		t.Fatal(err)
	}

	f.Success("Wrote %s", "data/drupal.json")
	f.Warning("%d samples skipped", 2)

	want := "Wrote data/drupal.json\nWARNING: 2 samples skipped\n"
	if buf.String() != want {
		t.Errorf("messages = %q, want %q", buf.String(), want)
	}
}
