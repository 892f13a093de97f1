package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOneProcessSetGet(t *testing.T) {
	require.NoError(t, RunOneProcessSetGet(1))
}

func TestThreeProcessLearnSameValue(t *testing.T) {
	require.NoError(t, RunThreeProcessLearnSameValue(1))
}

func TestThreeProcessConcurrentSets(t *testing.T) {
	require.NoError(t, RunThreeProcessConcurrentSets(1))
}

func TestRandomInterleaving(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 42, 1337} {
		require.NoErrorf(t, RunRandomInterleaving(seed), "seed %d", seed)
	}
}

func TestScenarioRegistryNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range Scenarios {
		require.Falsef(t, seen[s.Name], "duplicate scenario name %q", s.Name)
		seen[s.Name] = true
	}
}
