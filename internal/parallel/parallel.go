// Package parallel runs index-based loops across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how For splits work.
type Config struct {
	Enabled    bool // Whether to fan out at all
	NumWorkers int  // Upper bound on goroutines
	MinItems   int  // Below this, run sequentially
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinItems:   8,
	}
}

// For calls f(i) for every i in [0, n). Each index runs exactly once; indexes
// are handed out dynamically so a few large items do not serialize the loop.
func For(n int, f func(i int), cfg Config) {
	workers := min(cfg.NumWorkers, n)
	if !cfg.Enabled || n < cfg.MinItems || workers < 2 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				f(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
}
