package raccoon

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
)

func TestCollectDropsFailedTasks(t *testing.T) {
	// Null-byte handshakes fail, the rest succeed.
	engine := &fakeEngine{
		executeFn: func(req ExecutionRequest) (Fingerprint, error) {
			if req.Vector.PMSWithNullByte {
				return nil, errors.New("connection reset")
			}
			return "fp", nil
		},
	}
	collector := NewResponseCollector(NewParallelExecutor(engine, 4))

	vectors := BuildVectorSet(VersionTLS11, 0x0016, WorkflowCKECCSFin, 5, rand.New(rand.NewSource(1)))
	responses := collector.Collect(vectors, big.NewInt(99))

	if len(responses) != 5 {
		t.Fatalf("expected 5 responses for 10 vectors with 5 failures, got %d", len(responses))
	}
	for _, r := range responses {
		if r.Vector.PMSWithNullByte {
			t.Error("a failed vector leaked into the responses")
		}
		if r.Vector.Version != VersionTLS11 || r.Vector.Suite != 0x0016 || r.Vector.Workflow != WorkflowCKECCSFin {
			t.Errorf("response lost its vector identity: %+v", r.Vector)
		}
		if r.Fingerprint != Fingerprint("fp") {
			t.Errorf("unexpected fingerprint %v", r.Fingerprint)
		}
	}
}

func TestCollectAllSucceed(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(req ExecutionRequest) (Fingerprint, error) { return req.Vector.PMSWithNullByte, nil },
	}
	collector := NewResponseCollector(NewParallelExecutor(engine, 2))

	vectors := BuildVectorSet(VersionTLS12, 0x0033, WorkflowCKE, 3, rand.New(rand.NewSource(2)))
	responses := collector.Collect(vectors, big.NewInt(1))

	if len(responses) != len(vectors) {
		t.Fatalf("expected %d responses, got %d", len(vectors), len(responses))
	}
	for i, r := range responses {
		if r.Vector != vectors[i] {
			t.Errorf("response %d out of order", i)
		}
		if r.Fingerprint.(bool) != r.Vector.PMSWithNullByte {
			t.Errorf("response %d paired with the wrong fingerprint", i)
		}
	}
}

func TestCollectEmpty(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(ExecutionRequest) (Fingerprint, error) { return "fp", nil },
	}
	collector := NewResponseCollector(NewParallelExecutor(engine, 2))
	if got := collector.Collect(nil, big.NewInt(1)); len(got) != 0 {
		t.Errorf("expected no responses, got %d", len(got))
	}
}
