package workflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefinitions(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		defs, err := LoadDefinitions("testdata/workflows.yaml")
		require.NoError(t, err)
		require.Len(t, defs, 1)

		def := defs[0]
		assert.Equal(t, "director_duties", def.Name)
		assert.Equal(t, "legal", def.Domain)
		assert.Equal(t, []string{"companies"}, def.Tags)
		assert.Equal(t, 2*time.Minute, def.Timeout)
		assert.Equal(t, "synthesize", def.OutputStep)
		require.Len(t, def.Steps, 3)

		search := def.Steps[0]
		assert.Equal(t, "retrieval", search.Capability)
		assert.Equal(t, []any{"${input.question}", "duties of directors under the Companies Ordinance"}, search.Input["queries"])
		assert.Equal(t, 5, search.Input["top_k_per_query"])

		assert.Equal(t, 90*time.Second, def.Steps[1].Timeout)
		assert.True(t, def.Steps[2].BestEffort)
	})

	t.Run("toml", func(t *testing.T) {
		defs, err := LoadDefinitions("testdata/workflows.toml")
		require.NoError(t, err)
		require.Len(t, defs, 1)
		require.Len(t, defs[0].Steps, 1)
		assert.Equal(t, "${input.question}", defs[0].Steps[0].Input["question"])
		assert.Equal(t, 30*time.Second, defs[0].Steps[0].Timeout)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDefinitions("testdata/nope.yaml")
		assert.Error(t, err)
	})
}

func TestParseDefinitions(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		defs, err := ParseDefinitions(".json", []byte(`{"workflows":[{"name":"j","steps":[{"id":"a","capability":"retrieval","best_effort":true}]}]}`))
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.True(t, defs[0].Steps[0].BestEffort)
	})

	t.Run("json duration strings", func(t *testing.T) {
		defs, err := ParseDefinitions(".json", []byte(`{"workflows":[{"name":"j","timeout":"30s","steps":[{"id":"a","capability":"retrieval","timeout":"1m30s"},{"id":"b","capability":"synthesis","timeout":2000000000}]}]}`))
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, 30*time.Second, defs[0].Timeout)
		assert.Equal(t, 90*time.Second, defs[0].Steps[0].Timeout)
		assert.Equal(t, 2*time.Second, defs[0].Steps[1].Timeout)
	})

	t.Run("json bad duration", func(t *testing.T) {
		for _, body := range []string{
			`{"workflows":[{"name":"j","timeout":"soon","steps":[]}]}`,
			`{"workflows":[{"name":"j","steps":[{"id":"a","capability":"retrieval","timeout":"-5s"}]}]}`,
			`{"workflows":[{"name":"j","steps":[{"id":"a","capability":"retrieval","timout":"5s"}]}]}`,
		} {
			_, err := ParseDefinitions(".json", []byte(body))
			assert.ErrorIs(t, err, ErrInvalidDefinition, body)
		}
	})

	t.Run("json round trip keeps duration text", func(t *testing.T) {
		def := Definition{Name: "j", Timeout: time.Minute, Steps: []Step{{ID: "a", Capability: "retrieval", Timeout: 5 * time.Second}}}
		data, err := json.Marshal(definitionFile{Workflows: []Definition{def}})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"timeout":"1m0s"`)
		assert.Contains(t, string(data), `"timeout":"5s"`)

		defs, err := ParseDefinitions(".json", data)
		require.NoError(t, err)
		assert.Equal(t, def, defs[0])
	})

	t.Run("unknown yaml field", func(t *testing.T) {
		_, err := ParseDefinitions(".yml", []byte("workflows:\n  - name: x\n    stepz: []\n"))
		assert.ErrorIs(t, err, ErrInvalidDefinition)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := ParseDefinitions(".ini", []byte(""))
		assert.ErrorIs(t, err, ErrInvalidDefinition)
	})
}
