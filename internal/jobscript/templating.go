package jobscript

import (
	"bytes"
	"math/rand"
	"regexp"
	"text/template"

	"github.com/google/uuid"
)

// TemplateEngine parses job templates written with mustache-style tags.
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine initializes the engine and its functions
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{}

	e.funcMap = template.FuncMap{
		"randomInt":    e.randomInt,
		"randomUUID":   e.randomUUID,
		"randomChoice": e.randomChoice,
		"uuid":         e.randomUUID, // Alias
	}

	return e
}

var (
	tripleTag = regexp.MustCompile(`\{\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}\}`)
	mustTag   = regexp.MustCompile(`\{\{\s*([#^/]?)\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)
)

// Preprocess converts mustache tags to Go template syntax:
//
//	{{docs}}        -> {{.docs}}
//	{{#clear}}...   -> {{if index . "clear"}}...
//	{{^clear}}...   -> {{if not (index . "clear")}}...
//	{{/clear}}      -> {{end}}
//
// Function names such as {{uuid}} and tags already in Go syntax are left
// alone.
func (e *TemplateEngine) Preprocess(input string) string {
	s := tripleTag.ReplaceAllString(input, "{{$1}}")

	return mustTag.ReplaceAllStringFunc(s, func(tag string) string {
		m := mustTag.FindStringSubmatch(tag)
		kind, name := m[1], m[2]

		switch kind {
		case "#":
			return `{{if index . "` + name + `"}}`
		case "^":
			return `{{if not (index . "` + name + `")}}`
		case "/":
			return "{{end}}"
		}

		if _, ok := e.funcMap[name]; ok {
			return tag
		}
		switch name {
		case "end", "else", "nil", "true", "false":
			return tag
		}
		return "{{." + name + "}}"
	})
}

// Parse creates a new template with the engine's functions. Referencing a
// variable that is not defined fails at execution.
func (e *TemplateEngine) Parse(name, text string) (*template.Template, error) {
	readyText := e.Preprocess(text)
	return template.New(name).
		Funcs(e.funcMap).
		Option("missingkey=error").
		Parse(readyText)
}

// Execute runs the template with data
func (e *TemplateEngine) Execute(t *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// --- Functions ---

func (e *TemplateEngine) randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return rand.Intn(max-min) + min
}

func (e *TemplateEngine) randomUUID() string {
	return uuid.New().String()
}

func (e *TemplateEngine) randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.Intn(len(choices))]
}
