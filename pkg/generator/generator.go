// Package generator turns reconnaissance output and a requirements list into
// raw test sources via the LLM cache wrapper (spec §4.3).
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/llm"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/recon"
)

// Options tunes one Generate call. Zero values take the Generator's defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// ExtraInstructions is appended verbatim to the user prompt — a free-text
	// escape hatch for caller-supplied guidance the structured fields don't
	// cover.
	ExtraInstructions string
}

// Input is everything the Generator needs to produce test sources.
type Input struct {
	Recon        *recon.Result
	Requirements []string
	TestType     models.TestType
	Options      Options
}

// Generator produces raw test sources from structural input + requirements.
// Implementations must call the LLM cache wrapper and must return at least
// one test or apperrors.ErrorCodeEmptyOutput.
type Generator interface {
	Generate(ctx context.Context, input Input) ([]string, error)
}

const defaultModel = "gemini-2.0-flash"
const defaultMaxTokens = 4096

// LLMGenerator is the concrete Generator: builds a single prompt from the
// structural input and requirements, calls the LLM cache wrapper, and splits
// the response into individual test sources at recognized function
// boundaries.
type LLMGenerator struct {
	client llm.Client
}

// NewLLMGenerator constructs a Generator bound to an LLM client.
func NewLLMGenerator(client llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client}
}

func (g *LLMGenerator) Generate(ctx context.Context, input Input) ([]string, error) {
	systemPrompt := buildSystemPrompt(input.TestType)
	userPrompt := buildUserPrompt(input)

	model := input.Options.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := input.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := g.client.Call(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Model:        model,
		Temperature:  input.Options.Temperature,
		MaxTokens:    maxTokens,
		UseCache:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("generator: llm call: %w", err)
	}

	tests := SplitTestFunctions(resp.Text)
	if len(tests) == 0 {
		return nil, apperrors.NewCodedError(apperrors.ErrorCodeEmptyOutput, fmt.Errorf("generator: llm returned no recognizable test sources"))
	}
	return tests, nil
}

func buildSystemPrompt(testType models.TestType) string {
	var sb strings.Builder
	sb.WriteString("You are a senior QA engineer generating automated test cases. ")
	sb.WriteString("Each test must declare its feature, story, title, and severity or tags ")
	sb.WriteString("as part of the test body (as comments or decorators), and include at ")
	sb.WriteString("least one assertion. Do not use eval, exec, dynamic imports, raw process ")
	sb.WriteString("spawning, or raw socket access.\n")
	switch testType {
	case models.TestTypeAPI:
		sb.WriteString("Generate API-level tests against the given endpoints.")
	case models.TestTypeUI:
		sb.WriteString("Generate UI-level tests against the given page structure.")
	case models.TestTypeManual:
		sb.WriteString("Generate manual test-case descriptions, not automated scripts.")
	default:
		sb.WriteString("Generate tests appropriate to the given structural input.")
	}
	return sb.String()
}

func buildUserPrompt(input Input) string {
	var sb strings.Builder

	sb.WriteString("Requirements:\n")
	for i, r := range input.Requirements {
		fmt.Fprintf(&sb, "%d. %s\n", i, r)
	}

	if input.Recon != nil {
		if input.Recon.Page != nil {
			page := input.Recon.Page
			fmt.Fprintf(&sb, "\nPage: %s (%s)\n", page.Title, page.URL)
			for _, b := range page.Buttons {
				fmt.Fprintf(&sb, "button %q selector=%s visible=%v\n", b.Text, b.Selector, b.Visible)
			}
			for _, in := range page.Inputs {
				fmt.Fprintf(&sb, "input %q type=%s selector=%s\n", in.Name, in.Type, in.Selector)
			}
			for _, l := range page.Links {
				fmt.Fprintf(&sb, "link %q href=%s\n", l.Text, l.Href)
			}
		}
		if len(input.Recon.Endpoints) > 0 {
			sb.WriteString("\nEndpoints:\n")
			for _, e := range input.Recon.Endpoints {
				fmt.Fprintf(&sb, "%s %s — %s\n", e.Method, e.Path, e.Summary)
			}
		}
	}

	if input.Options.ExtraInstructions != "" {
		sb.WriteString("\n")
		sb.WriteString(input.Options.ExtraInstructions)
	}

	return sb.String()
}
