package answer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Preferred programming languages detected from the question
const (
	LanguageJava       = "java"
	LanguageCPP        = "cpp"
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
	LanguageGo         = "go"
	LanguageGeneric    = "generic"
)

var languageHints = []struct {
	language string
	hints    []string
}{
	{LanguageJava, []string{"java"}},
	{LanguageCPP, []string{"cpp", "stl"}},
	{LanguagePython, []string{"python", "py"}},
	{LanguageJavaScript, []string{"javascript", "js", "node", "typescript"}},
	{LanguageGo, []string{"golang", "go"}},
}

// DetectLanguage returns the programming language the question asks for
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	words := " " + normalize(strings.ReplaceAll(lower, "c++", " cpp ")) + " "
	for _, entry := range languageHints {
		for _, hint := range entry.hints {
			if strings.Contains(words, " "+normalize(hint)+" ") {
				return entry.language
			}
		}
	}
	return LanguageGeneric
}

// templateData is passed to every answer template
type templateData struct {
	Question string
	Category string
	Keywords []string
	Language string
}

// DefaultTemplates holds one answer outline per category. The "default"
// template is used for categories without their own.
var DefaultTemplates = map[string]string{
	CategoryAlgorithm: `Approach for: {{.Question}}
1. Clarify input size and constraints.
2. Start with a brute force solution and state its complexity.
3. Optimize{{if .Keywords}} using {{join .Keywords ", "}}{{end}}.
4. Walk through an example, then edge cases (empty, single element, duplicates).
Language: {{.Language}}. State time and space complexity at the end.`,

	CategoryDataStructure: `Data structure answer for: {{.Question}}
- Core operations and their costs{{if .Keywords}} for {{join .Keywords ", "}}{{end}}.
- Memory layout and trade offs against the alternatives.
- When to pick it in practice.
Language: {{.Language}}.`,

	CategorySystemDesign: `System design outline for: {{.Question}}
1. Requirements: functional, non functional, scale estimates.
2. API and data model.
3. High level components: clients, load balancer, services, storage, cache.
4. Deep dive{{if .Keywords}} on {{join .Keywords ", "}}{{end}}.
5. Bottlenecks, failure modes and monitoring.`,

	CategoryLowLevel: `Low level design for: {{.Question}}
- Entities and their responsibilities.
- Class relationships and the patterns that fit{{if .Keywords}} ({{join .Keywords ", "}}){{end}}.
- Key interfaces and one end to end flow.
Language: {{.Language}}.`,

	CategoryBehavioral: `STAR answer for: {{.Question}}
Situation: set the context briefly.
Task: what you owned.
Action: what you did, in first person.
Result: measurable outcome and what you learned.`,

	CategoryOOP: `OOP answer for: {{.Question}}
- Definition in one sentence.
- Small {{.Language}} example.
- Pitfalls and when not to use it.`,

	CategoryDatabase: `Database answer for: {{.Question}}
- Schema and access patterns.
- Indexes, transactions and isolation{{if .Keywords}} ({{join .Keywords ", "}}){{end}}.
- Scaling: read replicas, partitioning.`,

	CategoryOS: `Operating systems answer for: {{.Question}}
- Concept definition{{if .Keywords}} covering {{join .Keywords ", "}}{{end}}.
- How the kernel implements it.
- A concrete example and common bugs.`,

	CategoryNetworking: `Networking answer for: {{.Question}}
- Which layer it lives in.
- Step by step message flow{{if .Keywords}} ({{join .Keywords ", "}}){{end}}.
- Reliability, latency and security considerations.`,

	"default": `Answer outline for: {{.Question}}
- Restate the question.
- Give the key idea first, then details.
- Close with a trade off.`,
}

// TemplateGenerator renders answers from per category templates
type TemplateGenerator struct {
	templates *template.Template
}

// NewTemplateGenerator parses the given templates. A nil map uses DefaultTemplates.
func NewTemplateGenerator(templates map[string]string) (*TemplateGenerator, error) {
	if templates == nil {
		templates = DefaultTemplates
	}
	if _, ok := templates["default"]; !ok {
		return nil, fmt.Errorf("answer templates must include a %q template", "default")
	}

	root := template.New("answers").Funcs(template.FuncMap{"join": strings.Join})
	for name, body := range templates {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("parse answer template %s: %w", name, err)
		}
	}

	return &TemplateGenerator{templates: root}, nil
}

// Generate renders the template of the classification's category
func (g *TemplateGenerator) Generate(ctx context.Context, classification pipeline.Classification, text string) (pipeline.Answer, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Answer{}, err
	}

	name := classification.Category
	if g.templates.Lookup(name) == nil {
		name = "default"
	}

	var buf bytes.Buffer
	err := g.templates.ExecuteTemplate(&buf, name, templateData{
		Question: text,
		Category: classification.Category,
		Keywords: classification.Keywords,
		Language: DetectLanguage(text),
	})
	if err != nil {
		return pipeline.Answer{}, fmt.Errorf("render %s answer: %w", name, err)
	}

	return pipeline.Answer{
		Question:    text,
		Category:    classification.Category,
		Body:        buf.String(),
		Confidence:  classification.Confidence,
		GeneratedAt: time.Now(),
	}, nil
}
