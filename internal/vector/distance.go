package vector

import (
	"github.com/makr-code/themis/internal/capability"
	"github.com/makr-code/themis/internal/core"
)

// distance returns a value that sorts ascending with decreasing
// similarity, regardless of metric: lower is always "closer".
func distance(kernel capability.DistanceKernel, metric core.Metric, a, b []float32) float64 {
	switch metric {
	case core.MetricCosine:
		return float64(1 - kernel.Cosine(a, b))
	case core.MetricInnerProd:
		return float64(-kernel.InnerProduct(a, b))
	default:
		return float64(kernel.L2(a, b))
	}
}
