// Package scanner builds the site report for a target and runs the DH oracle
// probe against it.
package scanner

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"log"
	"math/rand"
	"net"
	"strings"
	"time"

	ztls "github.com/zmap/zcrypto/tls"
	zx509 "github.com/zmap/zcrypto/x509"

	"github.com/raccoonscan/raccoonscan-portal/pkg/handshake"
	"github.com/raccoonscan/raccoonscan-portal/pkg/raccoon"
)

type Scanner struct {
	config Config
}

type Config struct {
	Timeout    time.Duration
	Workers    int   // parallel handshakes per batch
	Iterations int   // paired handshakes in the probe's first pass
	Seed       int64 // 0 means time-seeded
	Verbose    bool
}

// Result is the full outcome of scanning one target.
type Result struct {
	Target         string        `json:"target"`
	IP             string        `json:"ip"`
	Port           string        `json:"port"`
	ServiceType    string        `json:"service_type"`    // "https", "smtp", "imap", etc.
	ConnectionType string        `json:"connection_type"` // "direct-tls" or "starttls"
	ScanTime       time.Time     `json:"scan_time"`
	Duration       time.Duration `json:"duration"`

	Report       raccoon.SiteReport `json:"report"`
	Verdict      string             `json:"verdict"`
	Combinations []Combination      `json:"combinations"`

	Certificate *CertificateInfo `json:"certificate,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// Combination summarizes one tested (version, suite, workflow) for reports
// and persistence.
type Combination struct {
	Version          string `json:"version"`
	SuiteID          uint16 `json:"suite_id"`
	SuiteName        string `json:"suite_name"`
	Workflow         string `json:"workflow"`
	HandshakeWorking bool   `json:"handshake_working"`
	Escalated        bool   `json:"escalated"`
	Samples          int    `json:"samples"`
	Status           string `json:"status"`
}

type CertificateInfo struct {
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	DNSNames           []string  `json:"dns_names"`
	KeyType            string    `json:"key_type"`
	KeySize            int       `json:"key_size"`
}

func New(config Config) *Scanner {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Workers == 0 {
		config.Workers = 10
	}
	return &Scanner{config: config}
}

// GetConfig returns a copy of the current scanner configuration
func (s *Scanner) GetConfig() Config {
	return s.config
}

func (s *Scanner) ScanTarget(target string) (*Result, error) {
	start := time.Now()
	result := &Result{
		Target:       target,
		ScanTime:     start,
		Verdict:      string(raccoon.VerdictCouldNotTest),
		Combinations: []Combination{},
		Errors:       []string{},
	}

	host, port, err := parseTarget(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}
	result.Port = port

	serviceInfo := DetectServiceType(port)
	if s.config.Verbose {
		fmt.Printf("Detected service: %s on port %s\n", serviceInfo.Name, port)
	}
	result.ServiceType = strings.ToLower(serviceInfo.Name)
	if serviceInfo.Protocol == ProtocolSTARTTLS {
		result.ConnectionType = "starttls"
	} else {
		result.ConnectionType = "direct-tls"
	}

	// Resolve IP
	resolver := &net.Resolver{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ips, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup failed: %w", err)
	}
	if len(ips) > 0 {
		result.IP = ips[0].IP.String()
	}

	// First, test if we can connect at all
	dial := s.dialFunc(host, port, serviceInfo)
	testConn, err := dial(s.config.Timeout)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Connection failed: %v", err))
		result.Duration = time.Since(start)
		return result, nil
	}
	_ = testConn.Close() // Best effort close after test connection

	result.Report = s.buildSiteReport(dial)
	if s.config.Verbose {
		fmt.Printf("Site report: ssl3=%v tls10=%v tls11=%v tls12=%v dh=%v\n",
			result.Report.SupportsSSL30, result.Report.SupportsTLS10,
			result.Report.SupportsTLS11, result.Report.SupportsTLS12,
			result.Report.SupportsDH)
	}

	certInfo, err := s.getCertificateInfo(dial)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Certificate error: %v", err))
	} else {
		result.Certificate = certInfo
	}

	engine := handshake.NewEngine(dial, handshake.Config{
		Timeout: s.config.Timeout,
		Verbose: s.config.Verbose,
	})
	executor := raccoon.NewParallelExecutor(engine, s.config.Workers)

	var rnd *rand.Rand
	if s.config.Seed != 0 {
		rnd = rand.New(rand.NewSource(s.config.Seed))
	}
	probe := raccoon.NewProbe(engine, executor, handshake.Oracle{}, raccoon.ProbeConfig{
		Iterations: s.config.Iterations,
		Rand:       rnd,
	})

	probeResult := probe.Run(result.Report)
	result.Verdict = string(probeResult.Verdict)
	for _, fp := range probeResult.Fingerprints {
		result.Combinations = append(result.Combinations, summarize(fp))
	}

	result.Duration = time.Since(start)
	return result, nil
}

// dialFunc returns the connection recipe for the target: plain TCP, or TCP
// plus the service's STARTTLS preamble.
func (s *Scanner) dialFunc(host, port string, serviceInfo ServiceInfo) handshake.DialFunc {
	if serviceInfo.Protocol == ProtocolSTARTTLS {
		return func(timeout time.Duration) (net.Conn, error) {
			return DialStartTLS(host, port, serviceInfo.STARTTLSType, timeout)
		}
	}
	return handshake.Dialer(host, port)
}

// buildSiteReport enumerates protocol versions and the DH cipher suites the
// server accepts for each.
func (s *Scanner) buildSiteReport(dial handshake.DialFunc) raccoon.SiteReport {
	report := raccoon.SiteReport{VersionSuites: []raccoon.VersionSuites{}}

	versions := []struct {
		version raccoon.ProtocolVersion
		flag    *bool
	}{
		{raccoon.VersionSSL30, &report.SupportsSSL30},
		{raccoon.VersionTLS10, &report.SupportsTLS10},
		{raccoon.VersionTLS11, &report.SupportsTLS11},
		{raccoon.VersionTLS12, &report.SupportsTLS12},
	}

	for _, v := range versions {
		if !s.testProtocol(dial, uint16(v.version)) {
			continue
		}
		*v.flag = true

		suites := s.enumerateDHSuites(dial, uint16(v.version))
		if len(suites) > 0 {
			report.SupportsDH = true
			report.VersionSuites = append(report.VersionSuites, raccoon.VersionSuites{
				Version: v.version,
				Suites:  suites,
			})
		}
	}

	return report
}

// testProtocol checks whether the server completes any handshake pinned to
// the given version.
func (s *Scanner) testProtocol(dial handshake.DialFunc, version uint16) bool {
	conn, err := dial(s.config.Timeout)
	if err != nil {
		return false
	}
	defer func() {
		_ = conn.Close() // Clean up version test connection
	}()
	_ = conn.SetDeadline(time.Now().Add(s.config.Timeout)) // Best effort timeout

	tlsConn := ztls.Client(conn, &ztls.Config{
		MinVersion:         version,
		MaxVersion:         version,
		InsecureSkipVerify: true,
	})
	if err := tlsConn.Handshake(); err != nil {
		if s.config.Verbose {
			log.Printf("scanner: version 0x%04x not supported: %v", version, err)
		}
		return false
	}
	_ = tlsConn.Close() // Clean up TLS session
	return true
}

// enumerateDHSuites finds every finite-field DH suite the server accepts at
// the given version. Each round offers the not-yet-seen suites and removes
// whichever one the server picks, so server preference order does not hide
// the rest.
func (s *Scanner) enumerateDHSuites(dial handshake.DialFunc, version uint16) []raccoon.CipherSuite {
	remaining := make([]uint16, 0)
	for _, suite := range raccoon.DHSuites() {
		remaining = append(remaining, uint16(suite))
	}

	var accepted []raccoon.CipherSuite
	for len(remaining) > 0 {
		conn, err := dial(s.config.Timeout)
		if err != nil {
			break
		}
		_ = conn.SetDeadline(time.Now().Add(s.config.Timeout)) // Best effort timeout

		selected, err := handshake.NegotiateSuite(conn, version, remaining)
		_ = conn.Close() // Enumeration only needs the ServerHello
		if err != nil {
			break
		}

		found := false
		for i, suite := range remaining {
			if suite == selected {
				remaining = append(remaining[:i], remaining[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			log.Printf("scanner: server selected unoffered suite 0x%04x, stopping enumeration", selected)
			break
		}
		accepted = append(accepted, raccoon.CipherSuite(selected))
	}

	return accepted
}

func (s *Scanner) getCertificateInfo(dial handshake.DialFunc) (*CertificateInfo, error) {
	conn, err := dial(s.config.Timeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Close() // Clean up certificate check connection
	}()
	_ = conn.SetDeadline(time.Now().Add(s.config.Timeout)) // Best effort timeout

	tlsConn := ztls.Client(conn, &ztls.Config{InsecureSkipVerify: true})
	if err := tlsConn.Handshake(); err != nil {
		return nil, err
	}

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("no certificates found") //nolint:err113 // Descriptive error for missing certificates
	}

	cert := state.PeerCertificates[0]
	info := &CertificateInfo{
		Subject:            cert.Subject.String(),
		Issuer:             cert.Issuer.String(),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		DNSNames:           cert.DNSNames,
		KeyType:            cert.PublicKeyAlgorithm.String(),
	}

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		info.KeySize = pub.N.BitLen()
	case *zx509.AugmentedECDSA:
		// zcrypto wraps ECDSA keys in AugmentedECDSA
		if pub.Pub != nil {
			info.KeySize = ecdsaKeySize(pub.Pub)
		}
	case *ecdsa.PublicKey:
		info.KeySize = ecdsaKeySize(pub)
	default:
		if s.config.Verbose {
			log.Printf("Unknown public key type: %T", cert.PublicKey)
		}
	}

	return info, nil
}

func ecdsaKeySize(pub *ecdsa.PublicKey) int {
	switch pub.Curve {
	case elliptic.P224():
		return 224
	case elliptic.P256():
		return 256
	case elliptic.P384():
		return 384
	case elliptic.P521():
		return 521
	}
	if pub.Curve != nil && pub.Curve.Params() != nil {
		return pub.Curve.Params().BitSize
	}
	return 0
}

func summarize(fp *raccoon.CipherSuiteFingerprint) Combination {
	return Combination{
		Version:          fp.Version.String(),
		SuiteID:          uint16(fp.Suite),
		SuiteName:        fp.Suite.String(),
		Workflow:         fp.Workflow.String(),
		HandshakeWorking: fp.HandshakeWorking,
		Escalated:        fp.Escalated,
		Samples:          len(fp.Responses),
		Status:           fp.Status.String(),
	}
}

func parseTarget(target string) (host, port string, err error) {
	// Handle various input formats
	if !strings.Contains(target, ":") {
		return target, "443", nil
	}

	host, port, err = net.SplitHostPort(target)
	if err != nil {
		return "", "", err
	}

	return host, port, nil
}
