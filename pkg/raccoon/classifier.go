package raccoon

// VulnStatus is the classification of one accumulated combination.
type VulnStatus int

const (
	StatusInconclusive VulnStatus = iota
	StatusNotVulnerable
	StatusPotentiallyVulnerable
	StatusVulnerable
)

func (s VulnStatus) String() string {
	switch s {
	case StatusNotVulnerable:
		return "NOT_VULNERABLE"
	case StatusPotentiallyVulnerable:
		return "POTENTIALLY_VULNERABLE"
	case StatusVulnerable:
		return "VULNERABLE"
	}
	return "INCONCLUSIVE"
}

// CipherSuiteFingerprint accumulates the vector responses for one
// (version, suite, workflow) combination. It is owned by the single scan
// loop iteration that builds it; responses only grow, and escalation happens
// at most once.
type CipherSuiteFingerprint struct {
	Version          ProtocolVersion  `json:"version"`
	Suite            CipherSuite      `json:"suite"`
	Workflow         WorkflowType     `json:"workflow"`
	Responses        []VectorResponse `json:"-"`
	HandshakeWorking bool             `json:"handshake_working"`
	Escalated        bool             `json:"escalated"`
	Status           VulnStatus       `json:"status"`
}

// AppendResponses adds the escalation samples to the accumulated set. The
// original first-pass responses are kept so that early evidence still
// contributes to the final classification. A second escalation is a no-op.
func (f *CipherSuiteFingerprint) AppendResponses(responses []VectorResponse) {
	if f.Escalated {
		return
	}
	f.Responses = append(f.Responses, responses...)
	f.Escalated = true
}

// Classify partitions the accumulated responses by null-byte flag and asks
// the oracle whether the two groups are behaviorally distinguishable. Before
// escalation a distinguishable result is only PotentiallyVulnerable; a
// single pass over noisy network observations is not trusted. After
// escalation the combined set decides for real. An empty or one-sided set is
// NotVulnerable.
func (f *CipherSuiteFingerprint) Classify(oracle EqualityOracle) VulnStatus {
	if f.distinguishable(oracle) {
		if f.Escalated {
			return StatusVulnerable
		}
		return StatusPotentiallyVulnerable
	}
	return StatusNotVulnerable
}

// distinguishable compares every null-byte fingerprint against every
// non-null-byte fingerprint. Any UNEQUAL is evidence of a leak; INCONCLUSIVE
// comparisons are ignored.
func (f *CipherSuiteFingerprint) distinguishable(oracle EqualityOracle) bool {
	var withNull, withoutNull []Fingerprint
	for _, r := range f.Responses {
		if r.Vector.PMSWithNullByte {
			withNull = append(withNull, r.Fingerprint)
		} else {
			withoutNull = append(withoutNull, r.Fingerprint)
		}
	}
	for _, a := range withNull {
		for _, b := range withoutNull {
			if oracle.Compare(a, b) == EqualityUnequal {
				return true
			}
		}
	}
	return false
}
