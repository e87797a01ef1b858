package space

import (
	"errors"
	"math/rand"
	"testing"

	"quant-optimizer/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discrete(name string, values ...float64) model.ParameterSpec {
	return model.ParameterSpec{Name: name, Kind: model.KindDiscrete, Values: values}
}

func TestEnumerate_CountAndOrder(t *testing.T) {
	sp, err := New([]model.ParameterSpec{
		discrete("q", 10, 20),
		discrete("p", 1, 2, 3),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6), sp.Size())

	combos := sp.Enumerate()
	require.Len(t, combos, 6)

	// Lexicographic over names (p before q), ascending declared value order.
	expected := []model.Combination{
		{"p": 1, "q": 10},
		{"p": 1, "q": 20},
		{"p": 2, "q": 10},
		{"p": 2, "q": 20},
		{"p": 3, "q": 10},
		{"p": 3, "q": 20},
	}
	assert.Equal(t, expected, combos)

	// Every combination has exactly one entry per declared parameter.
	for _, combo := range combos {
		assert.Len(t, combo, 2)
	}
}

func TestEnumerate_DistinctCombinations(t *testing.T) {
	sp, err := New([]model.ParameterSpec{
		discrete("a", 1, 2),
		discrete("b", 1, 2),
		discrete("c", 5, 6, 7),
	})
	require.NoError(t, err)

	combos := sp.Enumerate()
	seen := make(map[string]bool)
	for _, combo := range combos {
		key := combo.Key()
		assert.False(t, seen[key], "duplicate combination %s", key)
		seen[key] = true
	}
	assert.Len(t, seen, 12)
}

func TestNew_DeduplicatesValues(t *testing.T) {
	sp, err := New([]model.ParameterSpec{
		discrete("p", 1, 2, 1, 2, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sp.Size())
	assert.Equal(t, []float64{1, 2, 3}, sp.Specs()[0].Values)
}

func TestNew_RangeExpansion(t *testing.T) {
	tests := []struct {
		name     string
		spec     model.ParameterSpec
		expected []float64
	}{
		{
			name:     "even division",
			spec:     model.ParameterSpec{Name: "x", Kind: model.KindRange, Low: 10, High: 30, Step: 10},
			expected: []float64{10, 20, 30},
		},
		{
			name:     "truncated step",
			spec:     model.ParameterSpec{Name: "x", Kind: model.KindRange, Low: 0, High: 10, Step: 3},
			expected: []float64{0, 3, 6, 9},
		},
		{
			name:     "single point",
			spec:     model.ParameterSpec{Name: "x", Kind: model.KindRange, Low: 5, High: 5, Step: 1},
			expected: []float64{5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, err := New([]model.ParameterSpec{tt.spec})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sp.Specs()[0].Values)
		})
	}
}

func TestNew_InvalidSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []model.ParameterSpec
	}{
		{"no parameters", nil},
		{"empty discrete set", []model.ParameterSpec{{Name: "p", Kind: model.KindDiscrete}}},
		{"inverted bounds", []model.ParameterSpec{{Name: "p", Kind: model.KindRange, Low: 10, High: 5, Step: 1}}},
		{"zero step", []model.ParameterSpec{{Name: "p", Kind: model.KindRange, Low: 0, High: 10, Step: 0}}},
		{"negative step", []model.ParameterSpec{{Name: "p", Kind: model.KindRange, Low: 0, High: 10, Step: -1}}},
		{"empty name", []model.ParameterSpec{discrete("", 1)}},
		{"duplicate name", []model.ParameterSpec{discrete("p", 1), discrete("p", 2)}},
		{"unknown kind", []model.ParameterSpec{{Name: "p", Kind: "fuzzy", Values: []float64{1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs)
			require.Error(t, err)
			var spaceErr *InvalidSpaceError
			assert.True(t, errors.As(err, &spaceErr))
		})
	}
}

func TestRandom_DrawsDeclaredValues(t *testing.T) {
	sp, err := New([]model.ParameterSpec{
		discrete("p", 1, 2),
		discrete("q", 10, 20),
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		combo := sp.Random(rng)
		assert.Contains(t, []float64{1, 2}, combo["p"])
		assert.Contains(t, []float64{10, 20}, combo["q"])
	}
}
