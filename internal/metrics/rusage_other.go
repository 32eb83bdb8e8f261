//go:build !linux

package metrics

// processCPUSeconds has no portable getrusage equivalent wired for
// non-Linux platforms; the gauge simply reports zero there.
func processCPUSeconds() float64 { return 0 }
