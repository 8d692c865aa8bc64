package adapter

import (
	"sync"
	"testing"
	"time"
)

func TestRealThreadFactoryHonorsCPUAffinityHook(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	ran := false
	f := realThreadFactory{}
	f.Go(ThreadConfig{Name: "pinned", CPUAffinity: []int{0}}, func() {
		defer wg.Done()
		ran = true
	})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pinned goroutine did not run")
	}
	if !ran {
		t.Error("expected entry function to run")
	}
}

func TestRealThreadFactoryWithoutAffinityStillRuns(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	f := realThreadFactory{}
	f.Go(ThreadConfig{Name: "unpinned"}, wg.Done)
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unpinned goroutine did not run")
	}
}
