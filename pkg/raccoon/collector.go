package raccoon

import (
	"log"
	"math/big"
)

// ResponseCollector turns a vector set into fingerprinted responses by
// submitting the whole set as one batch to the executor. Tasks that errored
// are logged with their full parameter tuple and dropped; everything else is
// paired back with its originating vector, in request order.
type ResponseCollector struct {
	executor BatchExecutor
}

func NewResponseCollector(executor BatchExecutor) *ResponseCollector {
	return &ResponseCollector{executor: executor}
}

// Collect executes vectors against the shared initial secret and returns one
// VectorResponse per successful task.
func (c *ResponseCollector) Collect(vectors []Vector, secret *big.Int) []VectorResponse {
	reqs := make([]ExecutionRequest, len(vectors))
	for i, v := range vectors {
		reqs[i] = ExecutionRequest{Vector: v, Secret: secret}
	}

	results := c.executor.ExecuteBatch(reqs)

	responses := make([]VectorResponse, 0, len(results))
	for i, res := range results {
		v := vectors[i]
		if res.Err != nil {
			log.Printf("raccoon: could not extract fingerprint for workflow=%v version=%v suite=%v pmsWithNullByte=%v: %v",
				v.Workflow, v.Version, v.Suite, v.PMSWithNullByte, res.Err)
			continue
		}
		responses = append(responses, VectorResponse{Vector: v, Fingerprint: res.Fingerprint})
	}
	return responses
}
