//go:build linux

package adapter

import "golang.org/x/sys/unix"

// pinCurrentThread restricts the calling OS thread to the given CPU IDs,
// used when a host wants the session's single worker goroutine pinned
// the way a dedicated I/O thread would be on a kernel-backed queue.
func pinCurrentThread(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	return unix.SchedSetaffinity(0, &set)
}
