//go:build !linux

package adapter

// pinCurrentThread is a no-op on platforms without SCHED_SETAFFINITY;
// the worker goroutine simply runs unpinned.
func pinCurrentThread(cpus []int) error { return nil }
