// Package pca fits a principal-component projection over embedding
// vectors, so a build can store reduced vectors alongside the mapping
// needed to project query vectors identically.
package pca

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Fit computes the top-components principal directions of data (one
// row per vector) and returns the projection matrix, row-major with
// one row per input dimension and one column per component.
func Fit(data [][]float32, components int) ([][]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("pca: no vectors")
	}
	dims := len(data[0])
	if components <= 0 || components > dims {
		return nil, fmt.Errorf("pca: invalid component count %d for %d dimensions", components, dims)
	}
	// The thin SVD yields min(vectors, dims) right singular vectors, so
	// fewer vectors than components cannot produce a full mapping.
	if components > len(data) {
		return nil, fmt.Errorf("pca: %d components require at least %d vectors, got %d", components, components, len(data))
	}

	// Center the data, then take right singular vectors: the SVD of
	// the centered matrix gives the same principal directions as the
	// eigendecomposition of the covariance matrix, without forming it.
	means := make([]float64, dims)
	for _, row := range data {
		if len(row) != dims {
			return nil, fmt.Errorf("pca: ragged input: got %d dimensions, want %d", len(row), dims)
		}
		for j, v := range row {
			means[j] += float64(v)
		}
	}
	for j := range means {
		means[j] /= float64(len(data))
	}

	centered := mat.NewDense(len(data), dims, nil)
	for i, row := range data {
		for j, v := range row {
			centered.Set(i, j, float64(v)-means[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, fmt.Errorf("pca: SVD failed to converge")
	}
	var v mat.Dense
	svd.VTo(&v)

	mapping := make([][]float32, dims)
	for i := range mapping {
		row := make([]float32, components)
		for j := range row {
			row[j] = float32(v.At(i, j))
		}
		mapping[i] = row
	}
	return mapping, nil
}

// Project applies a mapping produced by Fit to one vector.
func Project(vec []float32, mapping [][]float32) ([]float32, error) {
	if len(vec) != len(mapping) {
		return nil, fmt.Errorf("pca: vector has %d dimensions, mapping expects %d", len(vec), len(mapping))
	}
	if len(mapping) == 0 {
		return nil, nil
	}
	out := make([]float32, len(mapping[0]))
	for i, v := range vec {
		for j, m := range mapping[i] {
			out[j] += v * m
		}
	}
	return out, nil
}
