package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSON_KeyOrderAndWhitespace(t *testing.T) {
	a, err := FromJSON(json.RawMessage(`{"organization":{"duns":"123","primaryName":"Test Corp"},"n":1}`))
	require.NoError(t, err)
	b, err := FromJSON(json.RawMessage(`{ "n": 1, "organization": { "primaryName": "Test Corp", "duns": "123" } }`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFromJSON_DetectsValueChange(t *testing.T) {
	a, err := FromJSON(json.RawMessage(`{"revenue": 1000000}`))
	require.NoError(t, err)
	b, err := FromJSON(json.RawMessage(`{"revenue": 1000001}`))
	require.NoError(t, err)

	assert.True(t, HasChanged(a, b))
}

func TestFromJSON_LargeNumbersKeepPrecision(t *testing.T) {
	a, err := FromJSON(json.RawMessage(`{"v": 12345678901234567890}`))
	require.NoError(t, err)
	b, err := FromJSON(json.RawMessage(`{"v": 12345678901234567891}`))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFromJSONWithExclusions(t *testing.T) {
	exclude := map[string]bool{"transactionDetail": true, "links.self": true}

	a, err := FromJSONWithExclusions(json.RawMessage(`{"transactionDetail":{"transactionTimestamp":"2024-01-01"},"links":{"self":"/a","parent":"/p"},"x":1}`), exclude)
	require.NoError(t, err)
	b, err := FromJSONWithExclusions(json.RawMessage(`{"transactionDetail":{"transactionTimestamp":"2024-02-02"},"links":{"self":"/b","parent":"/p"},"x":1}`), exclude)
	require.NoError(t, err)
	c, err := FromJSONWithExclusions(json.RawMessage(`{"links":{"parent":"/other"},"x":1}`), exclude)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON(json.RawMessage(`{"broken"`))
	assert.Error(t, err)
}

func TestHasChanged(t *testing.T) {
	assert.True(t, HasChanged("", "abc"))
	assert.False(t, HasChanged("abc", "abc"))
	assert.True(t, HasChanged("abc", "def"))
}
