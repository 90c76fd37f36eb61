// Package raccoon detects the Direct Raccoon side channel in TLS servers
// using finite-field Diffie-Hellman key exchange. The probe sends matched
// pairs of crafted handshakes whose premaster secrets differ only in a
// leading zero byte, fingerprints the server's observable behavior for each,
// and decides statistically whether the two populations are distinguishable.
package raccoon

import (
	"fmt"
	"math/big"
)

// ProtocolVersion is a TLS wire version number.
type ProtocolVersion uint16

const (
	VersionSSL30 ProtocolVersion = 0x0300
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
)

func (v ProtocolVersion) String() string {
	switch v {
	case VersionSSL30:
		return "SSL 3.0"
	case VersionTLS10:
		return "TLS 1.0"
	case VersionTLS11:
		return "TLS 1.1"
	case VersionTLS12:
		return "TLS 1.2"
	}
	return fmt.Sprintf("Unknown (0x%04x)", uint16(v))
}

// CipherSuite is a TLS cipher suite identifier.
type CipherSuite uint16

func (c CipherSuite) String() string {
	return SuiteName(c)
}

// WorkflowType identifies the shape of the crafted client flight sent after
// the server's ServerHelloDone. WorkflowInitial is a placeholder marking the
// untested base state and is never executed.
type WorkflowType int

const (
	WorkflowInitial WorkflowType = iota
	WorkflowCKE                  // ClientKeyExchange only
	WorkflowCKECCS               // ClientKeyExchange + ChangeCipherSpec
	WorkflowCKECCSFin            // ClientKeyExchange + ChangeCipherSpec + Finished
)

func (w WorkflowType) String() string {
	switch w {
	case WorkflowInitial:
		return "INITIAL"
	case WorkflowCKE:
		return "CKE"
	case WorkflowCKECCS:
		return "CKE_CCS"
	case WorkflowCKECCSFin:
		return "CKE_CCS_FIN"
	}
	return fmt.Sprintf("Unknown (%d)", int(w))
}

// TestableWorkflows returns the workflow variants that are actually executed,
// excluding the WorkflowInitial sentinel.
func TestableWorkflows() []WorkflowType {
	return []WorkflowType{WorkflowCKE, WorkflowCKECCS, WorkflowCKECCSFin}
}

// Fingerprint is the opaque behavioral signature the handshake engine
// captured for one executed vector. The probe never inspects it; only the
// equality oracle compares two of them.
type Fingerprint any

// EqualityResult is the outcome of comparing two fingerprints.
type EqualityResult int

const (
	EqualityEqual EqualityResult = iota
	EqualityUnequal
	EqualityInconclusive
)

// EqualityOracle classifies two fingerprints as behaviorally equal, unequal,
// or impossible to tell apart reliably.
type EqualityOracle interface {
	Compare(a, b Fingerprint) EqualityResult
}

// ExecutionRequest describes one crafted handshake for the engine to run.
// Secret is the initial DH client secret shared by every vector of the same
// combination; the engine derives the actual private value from it and the
// vector's null-byte flag deterministically.
type ExecutionRequest struct {
	Vector Vector
	Secret *big.Int
}

// ExecutionResult carries the fingerprint of a completed handshake task, or
// the error that prevented one from being captured.
type ExecutionResult struct {
	Fingerprint Fingerprint
	Err         error
}

// HandshakeEngine runs crafted and ordinary handshakes against the target.
type HandshakeEngine interface {
	// Execute performs one crafted handshake and returns the server's
	// behavioral fingerprint, or an error if the exchange failed.
	Execute(req ExecutionRequest) (Fingerprint, error)
	// RunNormalHandshake reports whether an uncrafted handshake for the
	// given version and suite completes as planned.
	RunNormalHandshake(version ProtocolVersion, suite CipherSuite) bool
	// Implementable reports whether the engine can drive the suite through
	// the crafted flight.
	Implementable(suite CipherSuite) bool
}

// BatchExecutor runs a batch of independent handshake tasks and blocks until
// all of them finish. Results correspond to requests by index. A failing or
// panicking task must not affect its siblings.
type BatchExecutor interface {
	ExecuteBatch(reqs []ExecutionRequest) []ExecutionResult
}

// Verdict is the probe-level outcome.
type Verdict string

const (
	VerdictTrue         Verdict = "TRUE"
	VerdictFalse        Verdict = "FALSE"
	VerdictError        Verdict = "ERROR"
	VerdictCouldNotTest Verdict = "COULD_NOT_TEST"
)

// VersionSuites pairs a protocol version with the cipher suites the server
// accepted for it.
type VersionSuites struct {
	Version ProtocolVersion `json:"version"`
	Suites  []CipherSuite   `json:"suites"`
}

// SiteReport is the eligibility input: what a prior enumeration learned about
// the target. VersionSuites is nil when enumeration was not performed.
type SiteReport struct {
	SupportsSSL30 bool            `json:"supports_ssl30"`
	SupportsTLS10 bool            `json:"supports_tls10"`
	SupportsTLS11 bool            `json:"supports_tls11"`
	SupportsTLS12 bool            `json:"supports_tls12"`
	SupportsDH    bool            `json:"supports_dh"`
	VersionSuites []VersionSuites `json:"version_suites"`
}

// CanTest reports whether the probe has enough to run at all. A target with
// no testable protocol version, no suite list, or unconfirmed DH support is
// refused up front.
func (r SiteReport) CanTest() bool {
	if !r.SupportsSSL30 && !r.SupportsTLS10 && !r.SupportsTLS11 && !r.SupportsTLS12 {
		return false
	}
	if r.VersionSuites == nil {
		return false
	}
	return r.SupportsDH
}
