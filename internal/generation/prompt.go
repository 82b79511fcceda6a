package generation

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Shape describes the JSON structure a task expects back from the model.
type Shape int

const (
	// ShapeQuestionList is a non-empty array of {question, answer} objects.
	ShapeQuestionList Shape = iota + 1
	// ShapeExplanation is an object with non-empty title and explanation.
	ShapeExplanation
)

func (s Shape) String() string {
	switch s {
	case ShapeQuestionList:
		return "question list"
	case ShapeExplanation:
		return "explanation"
	default:
		return "unknown shape"
	}
}

// opener returns the JSON delimiter the shape starts with.
func (s Shape) opener() byte {
	if s == ShapeQuestionList {
		return '['
	}
	return '{'
}

func (s Shape) closer() byte {
	if s == ShapeQuestionList {
		return ']'
	}
	return '}'
}

// IsObject reports whether the expected top-level value is a JSON object.
func (s Shape) IsObject() bool {
	return s == ShapeExplanation
}

// PromptSpec is the task instruction plus the shape the answer must have.
type PromptSpec struct {
	Task        TaskKind
	Instruction string
	Shape       Shape
}

// ErrUnknownTask is returned for a request whose task kind has no prompt.
var ErrUnknownTask = errors.New("unknown task kind")

//go:embed prompts.yaml
var defaultCatalog []byte

type catalogFile struct {
	Version int                      `yaml:"version"`
	Prompts map[TaskKind]catalogItem `yaml:"prompts"`
}

type catalogItem struct {
	Template string `yaml:"template"`
}

// PromptCatalog holds one parsed template per task kind.
type PromptCatalog struct {
	templates map[TaskKind]*template.Template
}

var taskShapes = map[TaskKind]Shape{
	TaskQuestionSet:        ShapeQuestionList,
	TaskConceptExplanation: ShapeExplanation,
}

// DefaultPromptCatalog parses the embedded catalogue.
func DefaultPromptCatalog() (*PromptCatalog, error) {
	return ParsePromptCatalog(defaultCatalog)
}

// LoadPromptCatalog reads a catalogue file, or the embedded default when path
// is empty.
func LoadPromptCatalog(path string) (*PromptCatalog, error) {
	if path == "" {
		return DefaultPromptCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalogue: %w", err)
	}
	return ParsePromptCatalog(data)
}

// ParsePromptCatalog parses YAML catalogue data. Every task kind must have a
// template.
func ParsePromptCatalog(data []byte) (*PromptCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode prompt catalogue: %w", err)
	}

	c := &PromptCatalog{templates: make(map[TaskKind]*template.Template, len(taskShapes))}
	for kind := range taskShapes {
		item, ok := file.Prompts[kind]
		if !ok || item.Template == "" {
			return nil, fmt.Errorf("prompt catalogue: missing template for %s", kind)
		}
		tmpl, err := template.New(string(kind)).Option("missingkey=error").Parse(item.Template)
		if err != nil {
			return nil, fmt.Errorf("prompt catalogue: parse %s: %w", kind, err)
		}
		c.templates[kind] = tmpl
	}
	return c, nil
}

// BuildPrompt renders the prompt for req. It is a pure function of the
// catalogue and the request.
func BuildPrompt(c *PromptCatalog, req Request) (PromptSpec, error) {
	shape, ok := taskShapes[req.Kind()]
	if !ok {
		return PromptSpec{}, fmt.Errorf("%w: %q", ErrUnknownTask, req.Kind())
	}

	var data any
	switch req.Kind() {
	case TaskQuestionSet:
		data, _ = req.QuestionSet()
	case TaskConceptExplanation:
		data, _ = req.Concept()
	}

	var buf bytes.Buffer
	if err := c.templates[req.Kind()].Execute(&buf, data); err != nil {
		return PromptSpec{}, fmt.Errorf("render %s prompt: %w", req.Kind(), err)
	}

	return PromptSpec{
		Task:        req.Kind(),
		Instruction: buf.String(),
		Shape:       shape,
	}, nil
}
