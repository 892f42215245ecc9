package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	t.Parallel()

	s, err := Schema()
	require.NoError(t, err)

	m, err := SchemaMap(s)
	require.NoError(t, err)

	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []any{"action"}, m["required"])
	props := m["properties"].(map[string]any)
	assert.Len(t, props["action"].(map[string]any)["enum"], len(Types))
	assert.NotContains(t, props, "ToolCallID")
}

func TestBatchSchema(t *testing.T) {
	t.Parallel()

	s, err := BatchSchema()
	require.NoError(t, err)

	require.NotNil(t, s.Properties["actions"])
	require.NotNil(t, s.Properties["actions"].Items)
	assert.Equal(t, []string{"action"}, s.Properties["actions"].Items.Required)
	assert.Contains(t, s.Required, "actions")
}

func TestParseBatch(t *testing.T) {
	t.Parallel()

	b, err := ParseBatch([]byte(`{"actions":[{"action":"wait","duration":"3"},{"action":"key","text":"enter"}],"reasoning":"go"}`))
	require.NoError(t, err)

	assert.Equal(t, "go", b.Reasoning)
	require.Len(t, b.Actions, 2)
	assert.InDelta(t, 3.0, b.Actions[0].Duration, 0)
	assert.Equal(t, Key, b.Actions[1].Type)

	_, err = ParseBatch([]byte(`I will click the button`))
	require.Error(t, err)
}
