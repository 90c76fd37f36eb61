package raccoon

import "math/rand"

// Vector identifies one crafted handshake shape: the workflow variant, the
// negotiated version and suite, and whether the derived premaster secret is
// engineered to start with a zero byte. Two vectors with identical fields
// describe interchangeable test cases; each execution is still independent.
type Vector struct {
	Workflow        WorkflowType    `json:"workflow"`
	Version         ProtocolVersion `json:"version"`
	Suite           CipherSuite     `json:"suite"`
	PMSWithNullByte bool            `json:"pms_with_null_byte"`
}

// VectorResponse pairs an executed vector with the fingerprint the engine
// captured for it. Failed executions produce no VectorResponse.
type VectorResponse struct {
	Vector      Vector
	Fingerprint Fingerprint
}

// BuildVectorSet produces count vectors with the null-byte flag set and
// count without, uniformly shuffled with rnd so that neither population
// clusters in time when the batch executes. count of zero yields an empty
// set.
func BuildVectorSet(version ProtocolVersion, suite CipherSuite, workflow WorkflowType, count int, rnd *rand.Rand) []Vector {
	vectors := make([]Vector, 0, 2*count)
	for i := 0; i < count; i++ {
		vectors = append(vectors,
			Vector{Workflow: workflow, Version: version, Suite: suite, PMSWithNullByte: true},
			Vector{Workflow: workflow, Version: version, Suite: suite, PMSWithNullByte: false},
		)
	}
	rnd.Shuffle(len(vectors), func(i, j int) {
		vectors[i], vectors[j] = vectors[j], vectors[i]
	})
	return vectors
}
