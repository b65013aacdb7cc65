package blocks

import (
	"fmt"
	"strconv"
	"strings"

	"memoryengine/internal/apperrors"
)

// Context binds variable names to values for template rendering. Values
// are either string or []string; anything else is stringified with
// fmt-style %v semantics at substitution time.
type Context map[string]any

// Template is a parsed mini-language document (spec §4.4): variables
// `{{name}}` with an optional `|filter` pipeline, conditionals
// `{% if name %}...{% endif %}`, and loops
// `{% for item in list %}...{% endfor %}`. Expansion order is
// conditionals, then loops, then variables; a loop body is rendered with
// variable expansion only (a nested loop inside a loop body is left
// untouched, requiring an explicit re-render per spec §4.4).
type Template struct {
	source string
	strict bool
}

// New parses source into a Template. Parsing here is lazy (render-time),
// since the grammar's three constructs nest by simple scanning rather
// than a full AST; Parse errors surface from Render instead.
func New(source string) *Template {
	return &Template{source: source}
}

// Strict returns a copy of t that errors on undefined variable references
// instead of substituting the empty string.
func (t *Template) Strict() *Template {
	return &Template{source: t.source, strict: true}
}

// Render expands t against ctx.
func (t *Template) Render(ctx Context) (string, error) {
	out, err := renderConditionals(t.source, ctx, t.strict)
	if err != nil {
		return "", err
	}
	out, err = renderLoops(out, ctx, t.strict)
	if err != nil {
		return "", err
	}
	return renderVariables(out, ctx, t.strict)
}

func renderConditionals(src string, ctx Context, strict bool) (string, error) {
	for {
		start := strings.Index(src, "{% if ")
		if start == -1 {
			return src, nil
		}
		nameEnd := strings.Index(src[start:], "%}")
		if nameEnd == -1 {
			return "", apperrors.Validation("blocks", "render_conditional", "unterminated if tag")
		}
		nameEnd += start
		name := strings.TrimSpace(src[start+len("{% if ") : nameEnd])

		endTag := strings.Index(src[nameEnd:], "{% endif %}")
		if endTag == -1 {
			return "", apperrors.Validation("blocks", "render_conditional", "missing endif")
		}
		bodyStart := nameEnd + len("%}")
		bodyEnd := nameEnd + endTag
		body := src[bodyStart:bodyEnd]

		replacement := ""
		if truthy(ctx[name]) {
			replacement = body
		}

		tagEnd := bodyEnd + len("{% endif %}")
		src = src[:start] + replacement + src[tagEnd:]
	}
}

func renderLoops(src string, ctx Context, strict bool) (string, error) {
	for {
		start := strings.Index(src, "{% for ")
		if start == -1 {
			return src, nil
		}
		headerEnd := strings.Index(src[start:], "%}")
		if headerEnd == -1 {
			return "", apperrors.Validation("blocks", "render_loop", "unterminated for tag")
		}
		headerEnd += start
		header := strings.TrimSpace(src[start+len("{% for ") : headerEnd])

		parts := strings.SplitN(header, " in ", 2)
		if len(parts) != 2 {
			return "", apperrors.Validation("blocks", "render_loop", "malformed for header, expected 'item in list'")
		}
		itemName := strings.TrimSpace(parts[0])
		listName := strings.TrimSpace(parts[1])

		endTag := strings.Index(src[headerEnd:], "{% endfor %}")
		if endTag == -1 {
			return "", apperrors.Validation("blocks", "render_loop", "missing endfor")
		}
		bodyStart := headerEnd + len("%}")
		bodyEnd := headerEnd + endTag
		body := src[bodyStart:bodyEnd]

		items := toStringSlice(ctx[listName])
		var rendered strings.Builder
		for _, item := range items {
			scoped := Context{}
			for k, v := range ctx {
				scoped[k] = v
			}
			scoped[itemName] = item
			out, err := renderVariables(body, scoped, strict)
			if err != nil {
				return "", err
			}
			rendered.WriteString(out)
		}

		tagEnd := bodyEnd + len("{% endfor %}")
		src = src[:start] + rendered.String() + src[tagEnd:]
	}
}

func renderVariables(src string, ctx Context, strict bool) (string, error) {
	var out strings.Builder
	for {
		start := strings.Index(src, "{{")
		if start == -1 {
			out.WriteString(src)
			return out.String(), nil
		}
		end := strings.Index(src[start:], "}}")
		if end == -1 {
			return "", apperrors.Validation("blocks", "render_variable", "unterminated variable tag")
		}
		end += start

		out.WriteString(src[:start])
		expr := strings.TrimSpace(src[start+2 : end])
		value, err := evalExpr(expr, ctx, strict)
		if err != nil {
			return "", err
		}
		out.WriteString(value)
		src = src[end+2:]
	}
}

func evalExpr(expr string, ctx Context, strict bool) (string, error) {
	segments := strings.Split(expr, "|")
	name := strings.TrimSpace(segments[0])

	value, defined := ctx[name]
	if !defined {
		if strict {
			return "", apperrors.Validation("blocks", "eval_expr", "undefined variable: "+name)
		}
		value = ""
	}

	result := stringify(value)
	for _, filter := range segments[1:] {
		var err error
		result, err = applyFilter(strings.TrimSpace(filter), result)
		if err != nil {
			return "", err
		}
	}
	return result, nil
}

func applyFilter(name, value string) (string, error) {
	switch name {
	case "upper":
		return strings.ToUpper(value), nil
	case "lower":
		return strings.ToLower(value), nil
	case "trim":
		return strings.TrimSpace(value), nil
	case "length":
		return strconv.Itoa(len([]rune(value))), nil
	case "capitalize":
		if value == "" {
			return value, nil
		}
		runes := []rune(value)
		return strings.ToUpper(string(runes[0])) + string(runes[1:]), nil
	default:
		return "", apperrors.Validation("blocks", "apply_filter", "unknown filter: "+name)
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toStringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	default:
		return nil
	}
}

// truthy implements spec §4.4's conditional rule: truthy iff the variable
// is a non-empty string or non-empty list.
func truthy(v any) bool {
	switch val := v.(type) {
	case string:
		return val != ""
	case []string:
		return len(val) > 0
	default:
		return false
	}
}
