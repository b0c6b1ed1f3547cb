// Package capability holds compile-time registries for pluggable backend
// implementations: distance kernels, exact geometry predicates and fulltext
// analyzers. The registry shape is grounded on the teacher's
// dialect.RegisterDialect pattern (a sync.RWMutex-guarded map of constructors
// keyed by a Type, with a concrete default registered at package init), so
// a GPU/SIMD distance kernel or an alternate analyzer can be swapped in
// without touching the index packages that consume it.
package capability

import (
	"fmt"
	"sync"

	"github.com/makr-code/themis/internal/geometry"
)

// DistanceKernel computes vector distances/similarities for the vector
// index, per spec §4.6. The default CPU kernel is registered below; a
// GPU or SIMD-accelerated kernel can register under a different Name.
type DistanceKernel interface {
	Name() string
	L2(a, b []float32) float32
	Cosine(a, b []float32) float32
	InnerProduct(a, b []float32) float32
}

var (
	kernelMu       sync.RWMutex
	kernelRegistry = map[string]func() DistanceKernel{}
)

// RegisterDistanceKernel adds a named DistanceKernel constructor to the
// registry. Intended to be called from package init functions.
func RegisterDistanceKernel(name string, ctor func() DistanceKernel) {
	kernelMu.Lock()
	defer kernelMu.Unlock()
	kernelRegistry[name] = ctor
}

// GetDistanceKernel returns a fresh DistanceKernel instance for name.
func GetDistanceKernel(name string) (DistanceKernel, error) {
	kernelMu.RLock()
	defer kernelMu.RUnlock()
	ctor, ok := kernelRegistry[name]
	if !ok {
		return nil, fmt.Errorf("distance kernel %q is not registered", name)
	}
	return ctor(), nil
}

// geometryBackendRegistry mirrors the kernel registry for
// geometry.ExactGeometryBackend implementations.
var (
	geomMu       sync.RWMutex
	geomRegistry = map[string]func() geometry.ExactGeometryBackend{}
)

// RegisterGeometryBackend adds a named ExactGeometryBackend constructor.
func RegisterGeometryBackend(name string, ctor func() geometry.ExactGeometryBackend) {
	geomMu.Lock()
	defer geomMu.Unlock()
	geomRegistry[name] = ctor
}

// GetGeometryBackend returns a fresh ExactGeometryBackend for name.
func GetGeometryBackend(name string) (geometry.ExactGeometryBackend, error) {
	geomMu.RLock()
	defer geomMu.RUnlock()
	ctor, ok := geomRegistry[name]
	if !ok {
		return nil, fmt.Errorf("geometry backend %q is not registered", name)
	}
	return ctor(), nil
}

// FulltextAnalyzer turns raw text into a token stream for indexing and
// querying, per spec §4.5.
type FulltextAnalyzer interface {
	Name() string
	Analyze(text string) []string
}

var (
	analyzerMu       sync.RWMutex
	analyzerRegistry = map[string]func() FulltextAnalyzer{}
)

// RegisterFulltextAnalyzer adds a named FulltextAnalyzer constructor.
func RegisterFulltextAnalyzer(name string, ctor func() FulltextAnalyzer) {
	analyzerMu.Lock()
	defer analyzerMu.Unlock()
	analyzerRegistry[name] = ctor
}

// GetFulltextAnalyzer returns a fresh FulltextAnalyzer for name.
func GetFulltextAnalyzer(name string) (FulltextAnalyzer, error) {
	analyzerMu.RLock()
	defer analyzerMu.RUnlock()
	ctor, ok := analyzerRegistry[name]
	if !ok {
		return nil, fmt.Errorf("fulltext analyzer %q is not registered", name)
	}
	return ctor(), nil
}

const (
	// KernelCPU names the mandatory reference DistanceKernel.
	KernelCPU = "cpu"
	// GeometryBackendCPU names the mandatory reference ExactGeometryBackend.
	GeometryBackendCPU = "cpu"
)

func init() {
	RegisterDistanceKernel(KernelCPU, func() DistanceKernel { return cpuKernel{} })
	RegisterGeometryBackend(GeometryBackendCPU, func() geometry.ExactGeometryBackend { return geometry.CPUBackend{} })
}
