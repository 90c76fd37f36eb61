package raccoon

import (
	"fmt"
	"sync"
)

// ParallelExecutor is the default BatchExecutor: a bounded worker pool over
// the handshake engine. Tasks in a batch share nothing; a panic inside one
// task is converted to that task's error and never reaches its siblings.
type ParallelExecutor struct {
	engine  HandshakeEngine
	workers int
}

// NewParallelExecutor wraps engine in a pool of at most workers concurrent
// handshakes. A non-positive workers defaults to 10.
func NewParallelExecutor(engine HandshakeEngine, workers int) *ParallelExecutor {
	if workers <= 0 {
		workers = 10
	}
	return &ParallelExecutor{engine: engine, workers: workers}
}

// ExecuteBatch runs all requests and blocks until the last one finishes.
// results[i] always corresponds to reqs[i].
func (p *ParallelExecutor) ExecuteBatch(reqs []ExecutionRequest) []ExecutionResult {
	results := make([]ExecutionResult, len(reqs))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i] = ExecutionResult{Err: fmt.Errorf("handshake task panicked: %v", r)}
				}
			}()
			fp, err := p.engine.Execute(reqs[i])
			results[i] = ExecutionResult{Fingerprint: fp, Err: err}
		}(i)
	}

	wg.Wait()
	return results
}
