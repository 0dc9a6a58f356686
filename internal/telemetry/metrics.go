// Package telemetry holds the process-wide prometheus collectors for
// the emulated kernel.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	sharedMemoryCreations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hle_kernel_shared_memory_created_total",
		Help: "Shared memory objects created, by creation path.",
	}, []string{"path"})

	sharedMemoryMaps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hle_kernel_shared_memory_maps_total",
		Help: "Shared memory map attempts, by outcome.",
	}, []string{"result"})

	regionUsedBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hle_kernel_region_used_bytes",
		Help: "Bytes currently allocated from each physical memory region.",
	}, []string{"region"})
)

func init() {
	prometheus.MustRegister(sharedMemoryCreations, sharedMemoryMaps, regionUsedBytes)
}

// ObserveCreation counts one shared memory creation on the given path
// (fresh, adopted, applet).
func ObserveCreation(path string) { sharedMemoryCreations.WithLabelValues(path).Inc() }

// ObserveMap counts one Map attempt with its symbolic outcome.
func ObserveMap(result string) { sharedMemoryMaps.WithLabelValues(result).Inc() }

// SetRegionUsed records a region's current allocation level.
func SetRegionUsed(region string, used float64) { regionUsedBytes.WithLabelValues(region).Set(used) }

// MapsCounter returns the counter child for one map outcome, so tests
// can read values back.
func MapsCounter(result string) prometheus.Counter {
	return sharedMemoryMaps.WithLabelValues(result)
}
