package nativeschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedManifest(t *testing.T) {
	t.Parallel()
	v, err := NewValidator()
	require.NoError(t, err)

	entries, err := v.Validate([]byte(`[
		{"name": "addone", "arity": 1},
		{"name": "secret", "arity": 1, "protected": true}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "addone", entries[0].Name)
	assert.Equal(t, 1, entries[0].Arity)
	assert.False(t, entries[0].Protected)
	assert.True(t, entries[1].Protected)
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	t.Parallel()
	v, err := NewValidator()
	require.NoError(t, err)

	_, err = v.Validate([]byte(`[{"name": "addone"}]`))
	assert.Error(t, err, "arity is required")
}

func TestValidateRejectsInvalidNamePattern(t *testing.T) {
	t.Parallel()
	v, err := NewValidator()
	require.NoError(t, err)

	_, err = v.Validate([]byte(`[{"name": "3bad", "arity": 0}]`))
	assert.Error(t, err)
}

func TestValidateRejectsAdditionalProperties(t *testing.T) {
	t.Parallel()
	v, err := NewValidator()
	require.NoError(t, err)

	_, err = v.Validate([]byte(`[{"name": "addone", "arity": 1, "extra": true}]`))
	assert.Error(t, err)
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	t.Parallel()
	v, err := NewValidator()
	require.NoError(t, err)

	_, err = v.Validate([]byte(`not json`))
	assert.Error(t, err)
}

