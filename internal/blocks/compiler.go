package blocks

import (
	"strings"
	"time"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/domain"
)

// CompilationResult is the Compiler's output (spec §4.4).
type CompilationResult struct {
	Prompt            string
	BlocksUsed        int
	TotalCharacters   int
	CompilationTimeMs int64
}

// defaultTemplate renders one block's value under a heading named after
// its label.
const defaultTemplate = "{% if value %}## {{label|capitalize}}\n{{value}}\n{% endif %}"

// Compiler assembles blocks into a single prompt.
type Compiler struct {
	now func() time.Time
}

// NewCompiler builds a Compiler using now for timing CompilationResult.
func NewCompiler(now func() time.Time) *Compiler {
	return &Compiler{now: now}
}

// Compile groups blocks by label and renders the default template for
// each, concatenating in label order persona, human, system, then any
// other labels in first-seen order (spec §4.4).
func (c *Compiler) Compile(blocks []domain.Block) (CompilationResult, error) {
	return c.CompileWithTemplate(blocks, defaultTemplate)
}

// CompileWithTemplate renders every block through a caller-supplied
// template instead of the default.
func (c *Compiler) CompileWithTemplate(blocks []domain.Block, templateSource string) (CompilationResult, error) {
	start := c.now()
	tmpl := New(templateSource)

	grouped := groupByLabel(blocks)
	var parts []string
	for _, label := range orderedLabels(grouped, blocks) {
		for _, block := range grouped[label] {
			rendered, err := tmpl.Render(Context{"label": block.Label, "value": block.Value})
			if err != nil {
				return CompilationResult{}, apperrors.Wrap(err, "blocks", "compile", "render block")
			}
			if strings.TrimSpace(rendered) != "" {
				parts = append(parts, rendered)
			}
		}
	}

	prompt := strings.Join(parts, "\n")
	return CompilationResult{
		Prompt:            prompt,
		BlocksUsed:        len(blocks),
		TotalCharacters:   len([]rune(prompt)),
		CompilationTimeMs: c.now().Sub(start).Milliseconds(),
	}, nil
}

// CompileSimple concatenates every block's value with separator, skipping
// templating entirely.
func (c *Compiler) CompileSimple(blocks []domain.Block, separator string) CompilationResult {
	start := c.now()
	var values []string
	for _, block := range blocks {
		if block.Value != "" {
			values = append(values, block.Value)
		}
	}
	prompt := strings.Join(values, separator)
	return CompilationResult{
		Prompt:            prompt,
		BlocksUsed:        len(blocks),
		TotalCharacters:   len([]rune(prompt)),
		CompilationTimeMs: c.now().Sub(start).Milliseconds(),
	}
}

// ValidateResult checks a CompilationResult is non-empty and within cap
// characters, the optional post-validation spec §4.4 describes.
func ValidateResult(result CompilationResult, cap int) error {
	if strings.TrimSpace(result.Prompt) == "" {
		return apperrors.Validation("blocks", "validate_result", "compiled prompt is empty")
	}
	if cap > 0 && result.TotalCharacters > cap {
		return apperrors.Validation("blocks", "validate_result", "compiled prompt exceeds cap")
	}
	return nil
}

var labelOrder = []string{"persona", "human", "system"}

func groupByLabel(blocks []domain.Block) map[string][]domain.Block {
	grouped := map[string][]domain.Block{}
	for _, b := range blocks {
		grouped[b.Label] = append(grouped[b.Label], b)
	}
	return grouped
}

func orderedLabels(grouped map[string][]domain.Block, blocks []domain.Block) []string {
	seen := map[string]bool{}
	var order []string
	for _, label := range labelOrder {
		if _, ok := grouped[label]; ok {
			order = append(order, label)
			seen[label] = true
		}
	}
	for _, b := range blocks {
		if !seen[b.Label] {
			order = append(order, b.Label)
			seen[b.Label] = true
		}
	}
	return order
}
