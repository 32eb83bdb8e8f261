//go:build linux

package metrics

import "golang.org/x/sys/unix"

// processCPUSeconds reports this process's accumulated user+system CPU
// time via getrusage(RUSAGE_SELF), the same family of syscall the example
// pack's platform-specific mount_linux.go reaches golang.org/x/sys/unix
// for directly rather than through a portable stdlib wrapper.
func processCPUSeconds() float64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	user := float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6
	sys := float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6
	return user + sys
}
