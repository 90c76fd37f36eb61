package raccoon

import (
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"testing"
)

// fakeEngine scripts Execute and records every request it saw.
type fakeEngine struct {
	mu        sync.Mutex
	requests  []ExecutionRequest
	executeFn func(req ExecutionRequest) (Fingerprint, error)
	normalOK  bool
}

func (e *fakeEngine) Execute(req ExecutionRequest) (Fingerprint, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	return e.executeFn(req)
}

func (e *fakeEngine) RunNormalHandshake(ProtocolVersion, CipherSuite) bool { return e.normalOK }

func (e *fakeEngine) Implementable(CipherSuite) bool { return true }

// panicEngine blows up outside the task boundary.
type panicEngine struct{ fakeEngine }

func (e *panicEngine) RunNormalHandshake(ProtocolVersion, CipherSuite) bool {
	panic("engine misconfigured")
}

// stringOracle compares string fingerprints literally.
type stringOracle struct{}

func (stringOracle) Compare(a, b Fingerprint) EqualityResult {
	sa, ok1 := a.(string)
	sb, ok2 := b.(string)
	if !ok1 || !ok2 || sa == "?" || sb == "?" {
		return EqualityInconclusive
	}
	if sa == sb {
		return EqualityEqual
	}
	return EqualityUnequal
}

// flakyOracle reports UNEQUAL exactly once and EQUAL forever after,
// simulating a noise blip that disappears on retest.
type flakyOracle struct{ fired bool }

func (o *flakyOracle) Compare(a, b Fingerprint) EqualityResult {
	if !o.fired {
		o.fired = true
		return EqualityUnequal
	}
	return EqualityEqual
}

func singleSuiteReport() SiteReport {
	return SiteReport{
		SupportsTLS12: true,
		SupportsDH:    true,
		VersionSuites: []VersionSuites{
			{Version: VersionTLS12, Suites: []CipherSuite{0x0033}},
		},
	}
}

func testConfig() ProbeConfig {
	return ProbeConfig{
		Workflows: []WorkflowType{WorkflowCKE},
		Rand:      rand.New(rand.NewSource(7)),
	}
}

func newTestProbe(engine HandshakeEngine, oracle EqualityOracle) *Probe {
	return NewProbe(engine, NewParallelExecutor(engine, 4), oracle, testConfig())
}

func TestProbeIdenticalBehaviorIsNotVulnerable(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(ExecutionRequest) (Fingerprint, error) { return "same", nil },
		normalOK:  true,
	}
	result := newTestProbe(engine, stringOracle{}).Run(singleSuiteReport())

	if result.Verdict != VerdictFalse {
		t.Fatalf("expected FALSE, got %v", result.Verdict)
	}
	if len(result.Fingerprints) != 1 {
		t.Fatalf("expected 1 fingerprint, got %d", len(result.Fingerprints))
	}
	fp := result.Fingerprints[0]
	if !fp.HandshakeWorking {
		t.Error("baseline handshake should be recorded as working")
	}
	if fp.Escalated {
		t.Error("identical behavior must not trigger escalation")
	}
	if len(fp.Responses) != 20 {
		t.Errorf("expected 20 first-pass responses, got %d", len(fp.Responses))
	}
	if fp.Status != StatusNotVulnerable {
		t.Errorf("expected NOT_VULNERABLE, got %v", fp.Status)
	}
}

func TestProbePersistentOracleIsVulnerable(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(req ExecutionRequest) (Fingerprint, error) {
			if req.Vector.PMSWithNullByte {
				return "alert 20", nil
			}
			return "clean close", nil
		},
		normalOK: true,
	}
	result := newTestProbe(engine, stringOracle{}).Run(singleSuiteReport())

	if result.Verdict != VerdictTrue {
		t.Fatalf("expected TRUE, got %v", result.Verdict)
	}
	fp := result.Fingerprints[0]
	if !fp.Escalated {
		t.Error("a distinguishable first pass must escalate before declaring vulnerable")
	}
	if len(fp.Responses) != 100 {
		t.Errorf("expected 100 responses after escalation, got %d", len(fp.Responses))
	}
	if fp.Status != StatusVulnerable {
		t.Errorf("expected VULNERABLE, got %v", fp.Status)
	}
}

func TestProbeNoiseBlipIsRejected(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(ExecutionRequest) (Fingerprint, error) { return "same", nil },
		normalOK:  true,
	}
	result := newTestProbe(engine, &flakyOracle{}).Run(singleSuiteReport())

	if result.Verdict != VerdictFalse {
		t.Fatalf("expected FALSE after noise retest, got %v", result.Verdict)
	}
	fp := result.Fingerprints[0]
	if !fp.Escalated {
		t.Error("the noise blip should have triggered escalation")
	}
	if len(fp.Responses) != 100 {
		t.Errorf("expected first pass plus escalation (100 responses), got %d", len(fp.Responses))
	}
	if fp.Status != StatusNotVulnerable {
		t.Errorf("expected NOT_VULNERABLE, got %v", fp.Status)
	}
}

func TestProbeSharesSecretAcrossEscalation(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(ExecutionRequest) (Fingerprint, error) { return "same", nil },
		normalOK:  true,
	}
	newTestProbe(engine, &flakyOracle{}).Run(singleSuiteReport())

	if len(engine.requests) != 100 {
		t.Fatalf("expected 100 executions, got %d", len(engine.requests))
	}
	secret := engine.requests[0].Secret
	for _, req := range engine.requests {
		if req.Secret.Cmp(secret) != 0 {
			t.Fatalf("escalation must reuse the combination secret: %v vs %v", req.Secret, secret)
		}
	}
}

func TestProbeIneligibleTargets(t *testing.T) {
	tests := []struct {
		name   string
		report SiteReport
	}{
		{
			name: "no supported version",
			report: SiteReport{
				SupportsDH:    true,
				VersionSuites: []VersionSuites{{Version: VersionTLS12, Suites: []CipherSuite{0x0033}}},
			},
		},
		{
			name:   "missing suite list",
			report: SiteReport{SupportsTLS12: true, SupportsDH: true},
		},
		{
			name: "DH not confirmed",
			report: SiteReport{
				SupportsTLS12: true,
				VersionSuites: []VersionSuites{{Version: VersionTLS12, Suites: []CipherSuite{0x0033}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{
				executeFn: func(ExecutionRequest) (Fingerprint, error) {
					t.Error("ineligible target must not be touched")
					return nil, nil
				},
			}
			result := newTestProbe(engine, stringOracle{}).Run(tt.report)
			if result.Verdict != VerdictCouldNotTest {
				t.Errorf("expected COULD_NOT_TEST, got %v", result.Verdict)
			}
			if result.Fingerprints != nil {
				t.Errorf("expected no fingerprints, got %d", len(result.Fingerprints))
			}
		})
	}
}

func TestProbeAllTasksFailing(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(ExecutionRequest) (Fingerprint, error) {
			return nil, errors.New("connection refused")
		},
	}
	result := newTestProbe(engine, stringOracle{}).Run(singleSuiteReport())

	if result.Verdict != VerdictFalse {
		t.Fatalf("expected FALSE, got %v", result.Verdict)
	}
	fp := result.Fingerprints[0]
	if len(fp.Responses) != 0 {
		t.Errorf("expected zero responses, got %d", len(fp.Responses))
	}
	if fp.Status != StatusNotVulnerable {
		t.Errorf("an empty response set must classify NOT_VULNERABLE, got %v", fp.Status)
	}
	if fp.HandshakeWorking {
		t.Error("baseline failure should be recorded, not hidden")
	}
}

func TestProbeSkipsNonDHAndForeignVersions(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(ExecutionRequest) (Fingerprint, error) { return "same", nil },
		normalOK:  true,
	}
	report := SiteReport{
		SupportsTLS12: true,
		SupportsDH:    true,
		VersionSuites: []VersionSuites{
			{Version: VersionTLS12, Suites: []CipherSuite{0xC02F, 0x0033}}, // ECDHE suite must be skipped
			{Version: 0x0304, Suites: []CipherSuite{0x0033}},               // TLS 1.3 is out of scope
		},
	}
	result := newTestProbe(engine, stringOracle{}).Run(report)

	if len(result.Fingerprints) != 1 {
		t.Fatalf("expected exactly 1 tested combination, got %d", len(result.Fingerprints))
	}
	if got := result.Fingerprints[0].Suite; got != 0x0033 {
		t.Errorf("expected suite 0x0033, got 0x%04x", uint16(got))
	}
}

func TestProbeScanWideFailureIsError(t *testing.T) {
	engine := &panicEngine{}
	result := newTestProbe(engine, stringOracle{}).Run(singleSuiteReport())

	if result.Verdict != VerdictError {
		t.Fatalf("expected ERROR, got %v", result.Verdict)
	}
	if result.Fingerprints != nil {
		t.Error("partial fingerprints must be discarded on a scan-wide failure")
	}
}

func TestProbeSecretIsNonNil(t *testing.T) {
	engine := &fakeEngine{
		executeFn: func(req ExecutionRequest) (Fingerprint, error) {
			if req.Secret == nil || req.Secret.Cmp(big.NewInt(0)) < 0 {
				t.Error("secret must be a non-negative integer")
			}
			return "same", nil
		},
		normalOK: true,
	}
	newTestProbe(engine, stringOracle{}).Run(singleSuiteReport())
}
