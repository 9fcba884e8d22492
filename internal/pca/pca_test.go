package pca

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit_InvalidInput(t *testing.T) {
	_, err := Fit(nil, 2)
	assert.Error(t, err)

	data := [][]float32{{1, 2, 3}, {4, 5, 6}}
	_, err = Fit(data, 0)
	assert.Error(t, err)
	_, err = Fit(data, 4)
	assert.Error(t, err)

	_, err = Fit([][]float32{{1, 2, 3}, {4, 5}}, 1)
	assert.Error(t, err)
}

func TestFit_FewerVectorsThanComponents(t *testing.T) {
	// 3 vectors in 10 dimensions can carry at most 3 components.
	data := make([][]float32, 3)
	for i := range data {
		row := make([]float32, 10)
		row[i] = 1
		data[i] = row
	}

	_, err := Fit(data, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vectors")

	_, err = Fit(data, 3)
	assert.NoError(t, err)
}

func TestFit_Shapes(t *testing.T) {
	data := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
		{1, 1, 1, 1},
	}
	mapping, err := Fit(data, 2)
	require.NoError(t, err)
	require.Len(t, mapping, 4)
	for _, row := range mapping {
		assert.Len(t, row, 2)
	}

	// Principal directions are unit vectors.
	for j := 0; j < 2; j++ {
		var norm float64
		for i := range mapping {
			norm += float64(mapping[i][j]) * float64(mapping[i][j])
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	}
}

func TestFit_FindsDominantDirection(t *testing.T) {
	// Points near the line y = 2x; the first component must align with
	// (1, 2) up to sign.
	data := make([][]float32, 0, 20)
	for i := range 20 {
		x := float32(i) - 10
		jitter := float32(i%3)*0.01 - 0.01
		data = append(data, []float32{x, 2*x + jitter})
	}

	mapping, err := Fit(data, 1)
	require.NoError(t, err)
	require.Len(t, mapping, 2)
	ratio := float64(mapping[1][0]) / float64(mapping[0][0])
	assert.InDelta(t, 2.0, ratio, 0.05)
}

func TestProject(t *testing.T) {
	identity := [][]float32{{1, 0}, {0, 1}}
	out, err := Project([]float32{3, -4}, identity)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, -4}, out)

	_, err = Project([]float32{1, 2, 3}, identity)
	assert.Error(t, err)
}

func TestFitProject_PreservesDistancesInSubspace(t *testing.T) {
	// 4D data of rank 2: projecting onto 2 components loses nothing, so
	// pairwise distances survive (up to centering, which cancels out).
	base := [][2]float32{{0, 0}, {1, 0}, {0, 1}, {2, 3}, {-1, 4}, {3, -2}}
	data := make([][]float32, len(base))
	for i, p := range base {
		a, b := p[0], p[1]
		data[i] = []float32{a, b, a + b, a - b}
	}

	mapping, err := Fit(data, 2)
	require.NoError(t, err)

	projected := make([][]float32, len(data))
	for i, vec := range data {
		projected[i], err = Project(vec, mapping)
		require.NoError(t, err)
	}

	for i := range data {
		for j := i + 1; j < len(data); j++ {
			assert.InDelta(t, dist(data[i], data[j]), dist(projected[i], projected[j]), 1e-3,
				"pair %d,%d", i, j)
		}
	}
}

func dist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
