package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"knowflow/internal/domain"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

// Prompts holds the contextualize instruction and the answer system template.
type Prompts struct {
	contextualize string
	answer        *template.Template
}

// AnswerData is the value the answer template is rendered with.
type AnswerData struct {
	Chunks []domain.ScoredChunk
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() *Prompts {
	p, err := NewPrompts("", "")
	if err != nil {
		panic(err)
	}
	return p
}

// NewPrompts builds prompts, replacing a built-in one when its override is
// non-empty. The answer override is a text/template receiving AnswerData.
func NewPrompts(contextualize, answer string) (*Prompts, error) {
	if strings.TrimSpace(contextualize) == "" {
		data, err := promptTemplates.ReadFile("templates/contextualize.txt")
		if err != nil {
			return nil, fmt.Errorf("template not found: %w", err)
		}
		contextualize = string(data)
	}

	if strings.TrimSpace(answer) == "" {
		data, err := promptTemplates.ReadFile("templates/answer.txt")
		if err != nil {
			return nil, fmt.Errorf("template not found: %w", err)
		}
		answer = string(data)
	}

	tmpl, err := template.New("answer").Funcs(templateFuncs()).Parse(answer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse answer template: %w", err)
	}

	return &Prompts{
		contextualize: strings.TrimSpace(contextualize),
		answer:        tmpl,
	}, nil
}

func (p *Prompts) Contextualize() string {
	return p.contextualize
}

func (p *Prompts) RenderAnswer(chunks []domain.ScoredChunk) (string, error) {
	var buf bytes.Buffer
	if err := p.answer.Execute(&buf, AnswerData{Chunks: chunks}); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
		// context joins chunk texts with blank lines.
		"context": func(chunks []domain.ScoredChunk) string {
			texts := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Chunk.Text
			}
			return strings.Join(texts, "\n\n")
		},
	}
}
