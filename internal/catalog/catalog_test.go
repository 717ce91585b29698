package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Loads(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Greater(t, c.Len(), 150)

	us, ok := c.Country("us")
	require.True(t, ok)
	assert.Equal(t, "United States", us.Name)
	assert.Len(t, us.Subdivisions, 51)
	assert.Equal(t, "Alabama", us.Subdivisions[0].Name)

	ci, ok := c.Country("CI")
	require.True(t, ok)
	assert.Equal(t, "Cote d'Ivoire", ci.Name)
}

func TestSubdivision(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	s, ok := c.Subdivision("CA", "CA-QC")
	require.True(t, ok)
	assert.Equal(t, "Quebec", s.Name)

	_, ok = c.Subdivision("CA", "US-CA")
	assert.False(t, ok)
	_, ok = c.Subdivision("XX", "XX-1")
	assert.False(t, ok)
}

func TestStartingWith_SortedByName(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	got := c.StartingWith("s")
	require.NotEmpty(t, got)
	for i, country := range got {
		assert.Equal(t, "S", country.Name[:1])
		if i > 0 {
			assert.Less(t, got[i-1].Name, country.Name)
		}
	}
	assert.Empty(t, c.StartingWith("X"))
}

func TestLetters(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	letters := c.Letters()
	assert.Equal(t, "A", letters[0])
	assert.NotContains(t, letters, "X")
	assert.Contains(t, letters, "Z")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate code", "countries:\n  - {code: FR, name: France}\n  - {code: FR, name: Francia}\n"},
		{"missing name", "countries:\n  - {code: FR}\n"},
		{"foreign subdivision", "countries:\n  - code: FR\n    name: France\n    subdivisions:\n      - {code: DE-BY, name: Bayern}\n"},
		{"invalid yaml", "countries: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
