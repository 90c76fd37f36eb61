package raccoon

import (
	"log"
	"math/big"
	"math/rand"
	"time"
)

// ProbeConfig tunes a Probe. Zero values pick the defaults.
type ProbeConfig struct {
	// Iterations is the number of paired handshakes in the first pass
	// (default 10, giving 20 observations). Escalation collects four times
	// as many on top.
	Iterations int
	// Workflows restricts which variants are tested. Defaults to
	// TestableWorkflows(); the WorkflowInitial sentinel is always skipped.
	Workflows []WorkflowType
	// Rand drives secret generation and vector shuffling. Seeding it makes
	// a probe run reproducible. Defaults to a time-seeded source.
	Rand *rand.Rand
}

// Probe drives the cipher-suite scan loop against one target.
type Probe struct {
	engine    HandshakeEngine
	collector *ResponseCollector
	oracle    EqualityOracle
	config    ProbeConfig
}

// NewProbe builds a probe from its collaborators. The executor runs the
// vector batches; the oracle decides fingerprint equality.
func NewProbe(engine HandshakeEngine, executor BatchExecutor, oracle EqualityOracle, config ProbeConfig) *Probe {
	if config.Iterations <= 0 {
		config.Iterations = 10
	}
	if config.Workflows == nil {
		config.Workflows = TestableWorkflows()
	}
	if config.Rand == nil {
		config.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Probe{
		engine:    engine,
		collector: NewResponseCollector(executor),
		oracle:    oracle,
		config:    config,
	}
}

// ProbeResult is the probe-level output: every per-combination fingerprint
// plus the aggregated verdict.
type ProbeResult struct {
	Fingerprints []*CipherSuiteFingerprint `json:"fingerprints"`
	Verdict      Verdict                   `json:"verdict"`
}

// Run executes the scan loop over every eligible (version, suite)
// combination in the report. An ineligible target is refused with
// COULD_NOT_TEST before anything is sent. A panic anywhere during the scan
// degrades the verdict to ERROR and discards partial fingerprints, since
// partial data under an unknown failure could misrepresent the target.
func (p *Probe) Run(report SiteReport) (result ProbeResult) {
	if !report.CanTest() {
		return ProbeResult{Verdict: VerdictCouldNotTest}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("raccoon: scan aborted: %v", r)
			result = ProbeResult{Verdict: VerdictError}
		}
	}()

	var fingerprints []*CipherSuiteFingerprint
	for _, pair := range report.VersionSuites {
		if !testableVersion(pair.Version) {
			continue
		}
		for _, suite := range pair.Suites {
			if !UsesDH(suite) || !p.engine.Implementable(suite) {
				continue
			}
			working := p.engine.RunNormalHandshake(pair.Version, suite)
			for _, workflow := range p.config.Workflows {
				if workflow == WorkflowInitial {
					continue
				}
				fp := p.testCombination(pair.Version, suite, workflow)
				fp.HandshakeWorking = working
				fingerprints = append(fingerprints, fp)
			}
		}
	}

	verdict := VerdictFalse
	for _, fp := range fingerprints {
		if fp.Status == StatusVulnerable {
			verdict = VerdictTrue
			break
		}
	}
	return ProbeResult{Fingerprints: fingerprints, Verdict: verdict}
}

// testCombination runs the first pass for one combination and escalates with
// four times the samples when the pass looks distinguishable. The initial DH
// secret is drawn once and shared by both passes; the oracle depends on
// comparing responses to the same underlying secret value.
func (p *Probe) testCombination(version ProtocolVersion, suite CipherSuite, workflow WorkflowType) *CipherSuiteFingerprint {
	secret := big.NewInt(p.config.Rand.Int63())

	vectors := BuildVectorSet(version, suite, workflow, p.config.Iterations, p.config.Rand)
	fp := &CipherSuiteFingerprint{
		Version:   version,
		Suite:     suite,
		Workflow:  workflow,
		Responses: p.collector.Collect(vectors, secret),
	}

	if fp.Classify(p.oracle) == StatusPotentiallyVulnerable {
		log.Printf("raccoon: non-identical answers for %v %v %v, collecting %d additional samples",
			version, suite, workflow, 8*p.config.Iterations)
		escalation := BuildVectorSet(version, suite, workflow, 4*p.config.Iterations, p.config.Rand)
		fp.AppendResponses(p.collector.Collect(escalation, secret))
	}

	fp.Status = fp.Classify(p.oracle)
	return fp
}

func testableVersion(v ProtocolVersion) bool {
	switch v {
	case VersionSSL30, VersionTLS10, VersionTLS11, VersionTLS12:
		return true
	}
	return false
}
