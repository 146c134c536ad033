package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprLangEvaluator_ComputeFunc(t *testing.T) {
	ev := NewExprLangEvaluator()

	fn, err := ev.ComputeFunc(`record.first + " " + record.last`)
	require.NoError(t, err)

	got, err := fn(fakeEntity{"first": "Ada", "last": "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got)

	// recomputed from the current values on every call
	got, err = fn(fakeEntity{"first": "Grace", "last": "Hopper"})
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", got)
}

func TestExprLangEvaluator_CompileError(t *testing.T) {
	_, err := NewExprLangEvaluator().ComputeFunc(`record.a +`)
	assert.Error(t, err)
}

func TestExprLangEvaluator_Evaluate(t *testing.T) {
	ev := NewExprLangEvaluator()
	got, err := ev.Evaluate(`x * 2`, map[string]any{"x": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	// cached program is reused
	got, err = ev.Evaluate(`x * 2`, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}
