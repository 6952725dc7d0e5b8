// Package jobscript renders one batch job script per worker count so that a
// scaling study can be submitted to a cluster scheduler in one go.
package jobscript

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"docstress/internal/config"
)

const (
	DefaultTotalDocs = 1000000
	DefaultWalltime  = 29
	ScriptExt        = ".pbs"
)

// Accepted template extensions.
var templateExts = []string{".stache", ".tmpl"}

// DefaultTemplate runs one docstress process with procs workers.
const DefaultTemplate = `#!/bin/bash

#PBS -q {{queue}}
#PBS -N {{run}}
#PBS -l mppwidth={{width}}
#PBS -l walltime=00:{{walltime}}:00
#PBS -o {{dir}}/{{run}}.out
#PBS -e {{dir}}/{{run}}.error

cd {{dir}}
aprun -n 1 {{exe}} run --workers {{procs}} --ndocs {{docs}} --host {{server}} --port {{port}}{{#clear}} --clear{{/clear}}
`

// Range is a from:to:by sweep of worker counts. To is exclusive.
type Range struct {
	From, To, By int
}

// ParseRange parses "from:to:by".
func ParseRange(s string) (Range, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Range{}, fmt.Errorf("%w: worker range must be 3 numbers a:b:c, got %q", config.ErrConfiguration, s)
	}

	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Range{}, fmt.Errorf("%w: worker range must be 3 numbers a:b:c, got %q", config.ErrConfiguration, s)
		}
		n[i] = v
	}

	r := Range{From: n[0], To: n[1], By: n[2]}
	if r.From <= 0 || r.By <= 0 {
		return Range{}, fmt.Errorf("%w: worker range %q needs from > 0 and by > 0", config.ErrConfiguration, s)
	}
	return r, nil
}

// Counts lists the worker counts of r.
func (r Range) Counts() []int {
	var out []int
	for p := r.From; p < r.To; p += r.By {
		out = append(out, p)
	}
	return out
}

// Config drives Generate.
type Config struct {
	// Template is a *.stache or *.tmpl file. Empty uses DefaultTemplate.
	Template  string
	Range     Range
	TotalDocs int
	Server    string
	Port      int
	Clear     bool
	// Values adds or overrides template variables. docs, run and procs are
	// always computed.
	Values map[string]any
	// OutDir defaults to the template's directory, or the working directory
	// for the built-in template.
	OutDir string
}

// LoadValues reads extra template variables from a YAML file.
func LoadValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: values %s: %w", config.ErrConfiguration, path, err)
	}
	return values, nil
}

// Generate writes one script per worker count and returns their paths.
func Generate(cfg Config) ([]string, error) {
	text, base, err := loadTemplate(cfg.Template)
	if err != nil {
		return nil, err
	}

	engine := NewTemplateEngine()
	tmpl, err := engine.Parse(base, text)
	if err != nil {
		return nil, fmt.Errorf("%w: template %s: %w", config.ErrConfiguration, base, err)
	}

	total := cfg.TotalDocs
	if total <= 0 {
		total = DefaultTotalDocs
	}

	outDir := cfg.OutDir
	if outDir == "" {
		if cfg.Template != "" {
			outDir = filepath.Dir(cfg.Template)
		} else if outDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}

	exe, err := os.Executable()
	if err != nil {
		exe = "docstress"
	}

	common := map[string]any{
		"server":   cfg.Server,
		"port":     cfg.Port,
		"clear":    cfg.Clear,
		"total":    total,
		"queue":    "debug",
		"walltime": fmt.Sprintf("%02d", DefaultWalltime),
		"dir":      outDir,
		"exe":      exe,
	}
	maps.Copy(common, cfg.Values)

	var written []string
	for _, procs := range cfg.Range.Counts() {
		v := maps.Clone(common)
		v["procs"] = procs
		v["width"] = procs + 1
		v["docs"] = total / procs
		v["run"] = fmt.Sprintf("%s_%d_%d", base, procs, total)

		script, err := engine.Execute(tmpl, v)
		if err != nil {
			return written, fmt.Errorf("%w: render %s: %w", config.ErrConfiguration, v["run"], err)
		}

		path := filepath.Join(outDir, v["run"].(string)+ScriptExt)
		if err := os.WriteFile(path, []byte(script), 0644); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	return written, nil
}

func loadTemplate(path string) (text, base string, err error) {
	if path == "" {
		return DefaultTemplate, "run", nil
	}

	ext := filepath.Ext(path)
	if !isTemplateExt(ext) {
		return "", "", fmt.Errorf("%w: input file format is <name>.stache or <name>.tmpl, got %s", config.ErrConfiguration, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: cannot read template: %w", config.ErrConfiguration, err)
	}
	return string(data), strings.TrimSuffix(filepath.Base(path), ext), nil
}

func isTemplateExt(ext string) bool {
	for _, e := range templateExts {
		if ext == e {
			return true
		}
	}
	return false
}
