package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderVariableSubstitution(t *testing.T) {
	out, err := New("Hello {{name}}!").Render(Context{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!", out)
}

func TestRenderVariableFilters(t *testing.T) {
	out, err := New("{{name|upper}}").Render(Context{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ADA", out)
}

func TestRenderUnknownFilterErrors(t *testing.T) {
	_, err := New("{{name|reverse}}").Render(Context{"name": "ada"})
	assert.Error(t, err)
}

func TestRenderUndefinedVariableNonStrictIsEmpty(t *testing.T) {
	out, err := New("[{{missing}}]").Render(Context{})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRenderUndefinedVariableStrictErrors(t *testing.T) {
	_, err := New("[{{missing}}]").Strict().Render(Context{})
	assert.Error(t, err)
}

func TestRenderConditionalTruthyString(t *testing.T) {
	out, err := New("{% if name %}Hi {{name}}{% endif %}").Render(Context{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", out)
}

func TestRenderConditionalFalsyEmptyString(t *testing.T) {
	out, err := New("{% if name %}Hi{% endif %}").Render(Context{"name": ""})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRenderConditionalFalsyEmptyList(t *testing.T) {
	out, err := New("{% if tags %}has tags{% endif %}").Render(Context{"tags": []string{}})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRenderLoop(t *testing.T) {
	out, err := New("{% for t in tags %}[{{t}}]{% endfor %}").Render(Context{"tags": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "[a][b]", out)
}

func TestRenderLoopEmptyList(t *testing.T) {
	out, err := New("{% for t in tags %}[{{t}}]{% endfor %}").Render(Context{"tags": []string{}})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRenderCombinedConditionalAndLoop(t *testing.T) {
	tmpl := New("{% if tags %}Tags: {% for t in tags %}{{t}} {% endfor %}{% endif %}")
	out, err := tmpl.Render(Context{"tags": []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, "Tags: x y ", out)
}

func TestCapitalizeFilter(t *testing.T) {
	out, err := New("{{name|capitalize}}").Render(Context{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", out)
}

func TestLengthFilter(t *testing.T) {
	out, err := New("{{name|length}}").Render(Context{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "3", out)
}
