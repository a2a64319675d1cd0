package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObjectPlain(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	err := DecodeObject(`{"name": "sentinel"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", out.Name)
}

func TestDecodeObjectFenced(t *testing.T) {
	response := "```json\n{\"name\": \"sentinel\"}\n```"

	var out struct {
		Name string `json:"name"`
	}
	err := DecodeObject(response, &out)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", out.Name)
}

func TestDecodeObjectSurroundingProse(t *testing.T) {
	response := `Here is the result you asked for: {"score": 0.8} hope that helps!`

	var out struct {
		Score float64 `json:"score"`
	}
	err := DecodeObject(response, &out)
	require.NoError(t, err)
	assert.Equal(t, 0.8, out.Score)
}

func TestDecodeObjectInvalid(t *testing.T) {
	var out map[string]any
	err := DecodeObject("no json here at all", &out)
	assert.Error(t, err)
}

func TestDecodeArrayFenced(t *testing.T) {
	response := "Some preamble.\n```json\n[{\"id\": 1}, {\"id\": 2}]\n```"

	var out []struct {
		ID int `json:"id"`
	}
	err := DecodeArray(response, &out)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[1].ID)
}

func TestDecodeArrayEmbedded(t *testing.T) {
	response := `The violations are: [{"rule_type": "policy_accuracy"}] as requested.`

	var out []struct {
		RuleType string `json:"rule_type"`
	}
	err := DecodeArray(response, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "policy_accuracy", out[0].RuleType)
}
