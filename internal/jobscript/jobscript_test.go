package jobscript

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"docstress/internal/config"
)

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2:10:4")
	if err != nil {
		t.Fatalf("ParseRange failed: %v", err)
	}
	if got := r.Counts(); !slices.Equal(got, []int{2, 6}) {
		t.Errorf("Counts = %v, want [2 6]", got)
	}

	if got := (Range{From: 1, To: 4, By: 1}).Counts(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("upper bound not exclusive: %v", got)
	}

	for _, bad := range []string{"", "1:2", "a:b:c", "0:4:1", "1:4:0", "1:2:3:4"} {
		if _, err := ParseRange(bad); !errors.Is(err, config.ErrConfiguration) {
			t.Errorf("ParseRange(%q) err = %v, want ErrConfiguration", bad, err)
		}
	}
}

func TestPreprocess(t *testing.T) {
	e := NewTemplateEngine()

	tests := []struct {
		in, want string
	}{
		{"{{docs}}", "{{.docs}}"},
		{"{{ docs }}", "{{.docs}}"},
		{"{{{docs}}}", "{{.docs}}"},
		{"{{#clear}}-c{{/clear}}", `{{if index . "clear"}}-c{{end}}`},
		{"{{^clear}}keep{{/clear}}", `{{if not (index . "clear")}}keep{{end}}`},
		{"{{uuid}}", "{{uuid}}"},
		{"{{.docs}}", "{{.docs}}"},
		{`{{randomInt 1 5}}`, `{{randomInt 1 5}}`},
	}

	for _, tt := range tests {
		if got := e.Preprocess(tt.in); got != tt.want {
			t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMissingVariableFails(t *testing.T) {
	e := NewTemplateEngine()
	tmpl, err := e.Parse("t", "{{nope}}")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := e.Execute(tmpl, map[string]any{}); err == nil {
		t.Error("expected error for undefined variable")
	}

	// missing section keys are falsy
	tmpl, err = e.Parse("t", "a{{#nope}}b{{/nope}}")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if out, err := e.Execute(tmpl, map[string]any{}); err != nil || out != "a" {
		t.Errorf("got %q, %v", out, err)
	}
}

func TestGenerateFromStache(t *testing.T) {
	dir := t.TempDir()
	tpl := filepath.Join(dir, "hopper.stache")
	text := "docs={{docs}} run={{run}} host={{server}}{{#clear}} clear{{/clear}} q={{queue}}\n"
	if err := os.WriteFile(tpl, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}

	paths, err := Generate(Config{
		Template:  tpl,
		Range:     Range{From: 2, To: 6, By: 2},
		TotalDocs: 1000,
		Server:    "10.0.0.1",
		Clear:     true,
		Values:    map[string]any{"queue": "regular"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := []string{
		filepath.Join(dir, "hopper_2_1000.pbs"),
		filepath.Join(dir, "hopper_4_1000.pbs"),
	}
	if !slices.Equal(paths, want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}

	data, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != "docs=250 run=hopper_4_1000 host=10.0.0.1 clear q=regular\n" {
		t.Errorf("script = %q", got)
	}
}

func TestGenerateDefaultTemplate(t *testing.T) {
	dir := t.TempDir()
	paths, err := Generate(Config{
		Range:  Range{From: 3, To: 4, By: 1},
		Server: "db",
		Port:   27018,
		OutDir: dir,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d scripts", len(paths))
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	script := string(data)
	for _, want := range []string{
		"#PBS -l mppwidth=4",
		"#PBS -l walltime=00:29:00",
		"--workers 3 --ndocs 333333 --host db --port 27018",
		"#PBS -N run_3_1000000",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
	if strings.Contains(script, "--clear") {
		t.Error("clear flag rendered without --clear")
	}
}

func TestGenerateRejectsNonTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.txt")
	os.WriteFile(path, []byte("x"), 0644)

	_, err := Generate(Config{Template: path, Range: Range{From: 1, To: 2, By: 1}})
	if !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestLoadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.yaml")
	if err := os.WriteFile(path, []byte("queue: regular\nwalltime: \"10\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadValues(path)
	if err != nil {
		t.Fatalf("LoadValues failed: %v", err)
	}
	if values["queue"] != "regular" || values["walltime"] != "10" {
		t.Errorf("values = %v", values)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("- just\n- a list\n"), 0644)
	if _, err := LoadValues(bad); !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}
