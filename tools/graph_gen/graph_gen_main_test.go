// edgewall/tools/graph_gen/graph_gen_main_test.go

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgewall/pkg/compiler"
)

func TestParseFlags(t *testing.T) {
	numBranches, outputFile, raw := parseFlags([]string{})
	assert.Equal(t, 50, numBranches)
	assert.Equal(t, "generated_rules.packed", outputFile)
	assert.False(t, raw)

	numBranches, outputFile, raw = parseFlags([]string{"-branches", "10", "-output", "custom.packed", "-raw"})
	assert.Equal(t, 10, numBranches)
	assert.Equal(t, "custom.packed", outputFile)
	assert.True(t, raw)
}

func TestGeneratePayloadValidates(t *testing.T) {
	payload := generatePayload(25)
	assert.Len(t, payload.Nodes, 1+25*2)
	assert.Len(t, payload.Edges, 25*2)

	_, err := compiler.Validate(payload)
	assert.NoError(t, err)
}

func TestPackPayloadRoundTrips(t *testing.T) {
	payload := generatePayload(5)

	for _, raw := range []bool{true, false} {
		packed, err := packPayload(payload, raw)
		require.NoError(t, err)

		g, err := compiler.Load(packed)
		require.NoError(t, err)
		assert.Len(t, g.Nodes, len(payload.Nodes))
	}
}
