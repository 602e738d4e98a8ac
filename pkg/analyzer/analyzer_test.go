package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandvis/mentionoor/pkg/analyzer"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		brands []string
		check  func(t *testing.T, results []analyzer.Mention)
	}{
		{
			name:   "mentioned and unmentioned brands",
			text:   "Here is a list of top companies: Acme, Contoso.",
			brands: []string{"Acme", "initech"},
			check: func(t *testing.T, results []analyzer.Mention) {
				require.Len(t, results, 2)

				assert.Equal(t, "Acme", results[0].Brand)
				assert.True(t, results[0].Mentioned)
				assert.Equal(t, 1, results[0].Count)
				require.NotNil(t, results[0].PositionIndex)
				assert.Equal(t, 33, *results[0].PositionIndex)

				assert.Equal(t, "initech", results[1].Brand)
				assert.False(t, results[1].Mentioned)
				assert.Equal(t, 0, results[1].Count)
				assert.Nil(t, results[1].PositionIndex)
			},
		},
		{
			name:   "case insensitive matching",
			text:   "ACME beats acme at being Acme.",
			brands: []string{"aCmE"},
			check: func(t *testing.T, results []analyzer.Mention) {
				require.Len(t, results, 1)
				assert.True(t, results[0].Mentioned)
				assert.Equal(t, 3, results[0].Count)
				require.NotNil(t, results[0].PositionIndex)
				assert.Equal(t, 0, *results[0].PositionIndex)
			},
		},
		{
			name:   "non-overlapping counting",
			text:   "aaaa",
			brands: []string{"aa"},
			check: func(t *testing.T, results []analyzer.Mention) {
				require.Len(t, results, 1)
				assert.Equal(t, 2, results[0].Count)
			},
		},
		{
			name:   "empty text",
			text:   "",
			brands: []string{"Acme"},
			check: func(t *testing.T, results []analyzer.Mention) {
				require.Len(t, results, 1)
				assert.False(t, results[0].Mentioned)
				assert.Equal(t, 0, results[0].Count)
				assert.Nil(t, results[0].PositionIndex)
			},
		},
		{
			name:   "empty brand list",
			text:   "some text",
			brands: nil,
			check: func(t *testing.T, results []analyzer.Mention) {
				assert.Empty(t, results)
			},
		},
		{
			name:   "empty brand name never matches",
			text:   "some text",
			brands: []string{""},
			check: func(t *testing.T, results []analyzer.Mention) {
				require.Len(t, results, 1)
				assert.False(t, results[0].Mentioned)
				assert.Nil(t, results[0].PositionIndex)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, analyzer.Analyze(tt.text, tt.brands))
		})
	}
}

func TestAnalyze_PreservesBrandOrder(t *testing.T) {
	brands := []string{"Globex", "Acme", "Contoso"}
	results := analyzer.Analyze("Acme and Contoso", brands)

	require.Len(t, results, 3)
	for i, brand := range brands {
		assert.Equal(t, brand, results[i].Brand)
	}
}
