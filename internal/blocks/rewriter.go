package blocks

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/llm"
)

// Strategy selects an Auto-Rewriter compression approach (spec §4.4).
type Strategy string

const (
	PreserveImportant Strategy = "preserve_important"
	PreserveRecent    Strategy = "preserve_recent"
	Summarize         Strategy = "summarize"
	Custom            Strategy = "custom"
)

// RewriteResult carries the rewritten content plus its (non-gating)
// quality score.
type RewriteResult struct {
	Content       string
	QualityScore  float64
}

// Rewriter compresses over-budget block content using one of four
// strategies (spec §4.4).
type Rewriter struct {
	client llm.Client
}

// NewRewriter builds a Rewriter; client is only consulted by Summarize
// and Custom.
func NewRewriter(client llm.Client) *Rewriter {
	return &Rewriter{client: client}
}

// Rewrite applies strategy to content, compressing it to at most
// targetLength runes. context is only used by Summarize. customTemplate
// is only used by Custom.
func (r *Rewriter) Rewrite(ctx context.Context, strategy Strategy, content string, targetLength int, promptContext, customTemplate string) (RewriteResult, error) {
	if content == "" {
		return RewriteResult{Content: "", QualityScore: 1}, nil
	}

	var rewritten string
	var err error
	switch strategy {
	case PreserveImportant:
		rewritten = preserveImportant(content, targetLength)
	case PreserveRecent:
		rewritten = preserveRecent(content, targetLength)
	case Summarize:
		rewritten, err = r.summarize(ctx, content, targetLength, promptContext)
	case Custom:
		rewritten, err = r.custom(ctx, content, targetLength, customTemplate)
	default:
		return RewriteResult{}, apperrors.Validation("blocks", "rewrite", "unknown strategy")
	}
	if err != nil {
		return RewriteResult{}, err
	}

	if len([]rune(rewritten)) > targetLength {
		return RewriteResult{}, apperrors.Validation("blocks", "rewrite", "rewritten content exceeds target length")
	}
	if content != "" && rewritten == "" {
		return RewriteResult{}, apperrors.Validation("blocks", "rewrite", "rewritten content is empty")
	}

	return RewriteResult{Content: rewritten, QualityScore: qualityScore(content, rewritten)}, nil
}

// preserveImportant splits on newlines, ranks by line length descending,
// and greedily accepts lines until target length is reached, per spec
// §4.4.
func preserveImportant(content string, target int) string {
	lines := strings.Split(content, "\n")
	type ranked struct {
		line  string
		index int
	}
	rankedLines := make([]ranked, len(lines))
	for i, line := range lines {
		rankedLines[i] = ranked{line: line, index: i}
	}
	sort.SliceStable(rankedLines, func(i, j int) bool {
		return len(rankedLines[i].line) > len(rankedLines[j].line)
	})

	accepted := map[int]bool{}
	total := 0
	for _, r := range rankedLines {
		lineLen := len([]rune(r.line))
		addition := lineLen
		if total > 0 {
			addition++ // newline separator
		}
		if total+addition > target {
			continue
		}
		accepted[r.index] = true
		total += addition
	}

	var out []string
	for i, line := range lines {
		if accepted[i] {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// preserveRecent keeps the last targetLength characters of content,
// snapping to the next word boundary, per spec §4.4.
func preserveRecent(content string, target int) string {
	runes := []rune(content)
	if len(runes) <= target {
		return content
	}
	cut := len(runes) - target
	start := cut
	for start < len(runes) && runes[start] != ' ' && runes[start] != '\n' {
		start++
	}
	for start < len(runes) && (runes[start] == ' ' || runes[start] == '\n') {
		start++
	}
	if start >= len(runes) {
		// No word boundary anywhere in the tail slice (e.g. one long run
		// with no spaces): fall back to the raw cut point instead of
		// scanning clean off the end and returning empty.
		return string(runes[cut:])
	}
	return string(runes[start:])
}

func (r *Rewriter) summarize(ctx context.Context, content string, target int, promptContext string) (string, error) {
	if r.client == nil {
		return "", apperrors.Internal("blocks", "summarize", "no llm client configured", nil)
	}
	system := "You compress agent memory block content to fit a strict character budget while preserving the most salient information."
	prompt := "Content:\n" + content + "\n\nTarget length (characters): " + strconv.Itoa(target)
	if promptContext != "" {
		prompt += "\n\nContext: " + promptContext
	}
	return r.client.Generate(ctx, system, prompt)
}

func (r *Rewriter) custom(ctx context.Context, content string, target int, templateSource string) (string, error) {
	if r.client == nil {
		return "", apperrors.Internal("blocks", "custom_rewrite", "no llm client configured", nil)
	}
	if templateSource == "" {
		return "", apperrors.Validation("blocks", "custom_rewrite", "custom strategy requires a prompt template")
	}
	prompt, err := New(templateSource).Render(Context{
		"content":       content,
		"target_length": strconv.Itoa(target),
	})
	if err != nil {
		return "", apperrors.Wrap(err, "blocks", "custom_rewrite", "render prompt template")
	}
	return r.client.Generate(ctx, "", prompt)
}
