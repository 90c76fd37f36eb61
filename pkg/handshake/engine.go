package handshake

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	ztls "github.com/zmap/zcrypto/tls"

	"github.com/raccoonscan/raccoonscan-portal/pkg/raccoon"
)

// DialFunc opens a TCP connection to the target, ready for TLS bytes. For
// STARTTLS services it performs the plaintext preamble before returning.
type DialFunc func(timeout time.Duration) (net.Conn, error)

// Dialer returns a DialFunc for a plain host:port target.
func Dialer(host, port string) DialFunc {
	return func(timeout time.Duration) (net.Conn, error) {
		return net.DialTimeout("tcp", net.JoinHostPort(host, port), timeout)
	}
}

type Config struct {
	Timeout time.Duration
	Verbose bool
}

// Engine runs crafted finite-field DH handshakes against one target. It
// satisfies raccoon.HandshakeEngine.
type Engine struct {
	dial   DialFunc
	config Config
}

func NewEngine(dial DialFunc, config Config) *Engine {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Engine{dial: dial, config: config}
}

// Implementable reports whether the engine can drive the suite through the
// crafted flight. Only finite-field DH key exchange is craftable here.
func (e *Engine) Implementable(suite raccoon.CipherSuite) bool {
	return raccoon.UsesDH(suite)
}

// Execute performs one crafted handshake: negotiate the vector's version and
// suite, read the server's DH parameters, send the client flight with a
// premaster secret shaped by the vector's null-byte flag, then observe how
// the server reacts.
func (e *Engine) Execute(req raccoon.ExecutionRequest) (raccoon.Fingerprint, error) {
	vec := req.Vector

	conn, err := e.dial(e.config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer func() {
		_ = conn.Close() // Clean up probe connection
	}()
	_ = conn.SetDeadline(time.Now().Add(e.config.Timeout)) // Best effort timeout

	version := uint16(vec.Version)
	params, err := e.negotiate(conn, version, uint16(vec.Suite))
	if err != nil {
		return nil, err
	}

	public, err := deriveClientKey(params, req.Secret, vec.PMSWithNullByte)
	if err != nil {
		return nil, err
	}

	flight, err := buildFlight(vec.Workflow, version, public)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(flight); err != nil {
		return nil, fmt.Errorf("failed to send client flight: %w", err)
	}

	fp := e.observe(conn)
	if e.config.Verbose {
		log.Printf("handshake: %v %v %v nullByte=%v -> %v",
			vec.Workflow, vec.Version, vec.Suite, vec.PMSWithNullByte, fp)
	}
	return fp, nil
}

// negotiate sends the ClientHello and consumes server messages up to
// ServerHelloDone, returning the DH parameters from ServerKeyExchange.
func (e *Engine) negotiate(conn net.Conn, version, suite uint16) (*serverDHParams, error) {
	hello, err := buildClientHello(version, []uint16{suite})
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(hello); err != nil {
		return nil, fmt.Errorf("failed to send ClientHello: %w", err)
	}

	reader := newMessageReader(conn)

	msg, err := reader.next()
	if err != nil {
		return nil, fmt.Errorf("reading ServerHello: %w", err)
	}
	if msg.msgType != handshakeTypeServerHello {
		return nil, fmt.Errorf("expected ServerHello, got message type %d", msg.msgType)
	}
	sh, err := parseServerHello(msg.body)
	if err != nil {
		return nil, err
	}
	if sh.version != version {
		return nil, fmt.Errorf("server negotiated 0x%04x instead of 0x%04x", sh.version, version)
	}
	if sh.suite != suite {
		return nil, fmt.Errorf("server selected suite 0x%04x instead of 0x%04x", sh.suite, suite)
	}

	var params *serverDHParams
	for {
		msg, err := reader.next()
		if err != nil {
			return nil, fmt.Errorf("reading server handshake: %w", err)
		}
		switch msg.msgType {
		case handshakeTypeCertificate:
			// Not verified; the probe impersonates no one.
		case handshakeTypeServerKeyExchange:
			params, err = parseServerDHParams(msg.body)
			if err != nil {
				return nil, fmt.Errorf("parsing ServerKeyExchange: %w", err)
			}
		case handshakeTypeServerHelloDone:
			if params == nil {
				return nil, errors.New("server sent no ServerKeyExchange")
			}
			return params, nil
		default:
			return nil, fmt.Errorf("unexpected handshake message type %d", msg.msgType)
		}
	}
}

// buildFlight assembles the post-ServerHelloDone client messages for the
// workflow variant, all in one write so the server sees them back to back.
func buildFlight(workflow raccoon.WorkflowType, version uint16, public []byte) ([]byte, error) {
	flight := buildClientKeyExchange(version, public)

	switch workflow {
	case raccoon.WorkflowCKE:
	case raccoon.WorkflowCKECCS:
		flight = append(flight, buildChangeCipherSpec(version)...)
	case raccoon.WorkflowCKECCSFin:
		flight = append(flight, buildChangeCipherSpec(version)...)
		fin, err := buildFinished(version)
		if err != nil {
			return nil, err
		}
		flight = append(flight, fin...)
	default:
		return nil, fmt.Errorf("workflow %v is not executable", workflow)
	}
	return flight, nil
}

// observe reads whatever the server sends back until the socket ends, and
// condenses it into a fingerprint.
func (e *Engine) observe(conn net.Conn) *Fingerprint {
	fp := &Fingerprint{Complete: true}

	for {
		rec, err := readRecord(conn)
		if err != nil {
			fp.SocketFate = normalizeSocketFate(err)
			return fp
		}
		received := ReceivedRecord{
			ContentType: rec.contentType,
			Length:      len(rec.payload),
		}
		if rec.contentType == recordTypeAlert {
			received.AlertLevel, received.AlertDescription = parseAlert(rec.payload)
		}
		fp.Records = append(fp.Records, received)
	}
}

// RunNormalHandshake reports whether an ordinary handshake pinned to the
// given version and suite completes.
func (e *Engine) RunNormalHandshake(version raccoon.ProtocolVersion, suite raccoon.CipherSuite) bool {
	conn, err := e.dial(e.config.Timeout)
	if err != nil {
		return false
	}
	defer func() {
		_ = conn.Close() // Clean up baseline connection
	}()
	_ = conn.SetDeadline(time.Now().Add(e.config.Timeout)) // Best effort timeout

	tlsConn := ztls.Client(conn, &ztls.Config{
		MinVersion:         uint16(version),
		MaxVersion:         uint16(version),
		CipherSuites:       []uint16{uint16(suite)},
		InsecureSkipVerify: true,
	})
	if err := tlsConn.Handshake(); err != nil {
		if e.config.Verbose {
			log.Printf("handshake: baseline %v %v failed: %v", version, suite, err)
		}
		return false
	}
	_ = tlsConn.Close() // Clean up TLS session
	return true
}

// NegotiateSuite offers the given suites at the given version on an already
// open connection and returns the suite the server selected. Used by the
// site-report enumerator; the connection is consumed.
func NegotiateSuite(conn net.Conn, version uint16, suites []uint16) (uint16, error) {
	hello, err := buildClientHello(version, suites)
	if err != nil {
		return 0, err
	}
	if _, err := conn.Write(hello); err != nil {
		return 0, fmt.Errorf("failed to send ClientHello: %w", err)
	}

	reader := newMessageReader(conn)
	msg, err := reader.next()
	if err != nil {
		return 0, fmt.Errorf("reading ServerHello: %w", err)
	}
	if msg.msgType != handshakeTypeServerHello {
		return 0, fmt.Errorf("expected ServerHello, got message type %d", msg.msgType)
	}
	sh, err := parseServerHello(msg.body)
	if err != nil {
		return 0, err
	}
	if sh.version != version {
		return 0, fmt.Errorf("server negotiated 0x%04x instead of 0x%04x", sh.version, version)
	}
	return sh.suite, nil
}
