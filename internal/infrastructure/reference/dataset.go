package reference

import (
	"fmt"
	"math/rand"
)

// ClusterDataset is a synthetic labeled dataset: each class is an isotropic
// Gaussian cluster around a fixed per-class mean. Sampling is deterministic
// per seed, so runs reproduce exactly.
type ClusterDataset struct {
	inputs [][]float64
	labels []int
}

// NewClusterTask builds one task's dataset with perClass samples for each of
// the given global classes.
func NewClusterTask(classes []int, perClass, inputDim int, noise float64, seed int64) (*ClusterDataset, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("at least one class required")
	}
	if perClass < 1 {
		return nil, fmt.Errorf("samples per class must be >= 1, got %d", perClass)
	}
	if inputDim < 1 {
		return nil, fmt.Errorf("input dim must be >= 1, got %d", inputDim)
	}

	rng := rand.New(rand.NewSource(seed))
	ds := &ClusterDataset{
		inputs: make([][]float64, 0, len(classes)*perClass),
		labels: make([]int, 0, len(classes)*perClass),
	}
	for _, class := range classes {
		if class < 0 {
			return nil, fmt.Errorf("class ids must be >= 0, got %d", class)
		}
		mean := classMean(class, inputDim)
		for i := 0; i < perClass; i++ {
			x := make([]float64, inputDim)
			for j := range x {
				x[j] = mean[j] + rng.NormFloat64()*noise
			}
			ds.inputs = append(ds.inputs, x)
			ds.labels = append(ds.labels, class)
		}
	}
	return ds, nil
}

// classMean places class c at 3.0 along dimension c mod inputDim, with a
// secondary offset so class count may exceed the input width.
func classMean(class, inputDim int) []float64 {
	mean := make([]float64, inputDim)
	mean[class%inputDim] = 3.0
	if class >= inputDim {
		mean[(class/inputDim)%inputDim] += 1.5
	}
	return mean
}

// Len returns the number of samples.
func (d *ClusterDataset) Len() int { return len(d.inputs) }

// Sample returns the i-th input vector and its global class label.
func (d *ClusterDataset) Sample(i int) ([]float64, int) {
	return d.inputs[i], d.labels[i]
}
