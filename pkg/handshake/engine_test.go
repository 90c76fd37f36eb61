package handshake

import (
	"encoding/binary"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/raccoonscan/raccoonscan-portal/pkg/raccoon"
)

func pipeDialer(conn net.Conn) DialFunc {
	return func(time.Duration) (net.Conn, error) {
		return conn, nil
	}
}

// serveDHE plays the server half of a DHE handshake on conn: consume the
// ClientHello, send ServerHello/ServerKeyExchange/ServerHelloDone with the
// given group, consume the ClientKeyExchange, answer with a fatal alert.
func serveDHE(t *testing.T, conn net.Conn, version, suite uint16, alertDesc byte) {
	t.Helper()
	defer conn.Close()

	p, g := testGroup()
	serverPriv := big.NewInt(246813579)
	ys := new(big.Int).Exp(g, serverPriv, p)

	reader := newMessageReader(conn)
	msg, err := reader.next()
	if err != nil {
		t.Errorf("mock server: reading ClientHello: %v", err)
		return
	}
	if msg.msgType != handshakeTypeClientHello {
		t.Errorf("mock server: expected ClientHello, got type %d", msg.msgType)
		return
	}

	conn.Write(buildHandshakeRecord(version, handshakeTypeServerHello, serverHelloBody(version, suite)))
	conn.Write(buildHandshakeRecord(version, handshakeTypeServerKeyExchange, encodeDHParams(p, g, ys, nil)))
	conn.Write(buildHandshakeRecord(version, handshakeTypeServerHelloDone, nil))

	msg, err = reader.next()
	if err != nil {
		t.Errorf("mock server: reading ClientKeyExchange: %v", err)
		return
	}
	if msg.msgType != handshakeTypeClientKeyExchange {
		t.Errorf("mock server: expected ClientKeyExchange, got type %d", msg.msgType)
		return
	}

	conn.Write(buildRecord(recordTypeAlert, version, []byte{0x02, alertDesc}))
}

func TestExecuteCapturesAlert(t *testing.T) {
	client, server := net.Pipe()
	go serveDHE(t, server, 0x0303, 0x0033, 40)

	engine := NewEngine(pipeDialer(client), Config{Timeout: 5 * time.Second})
	fp, err := engine.Execute(raccoon.ExecutionRequest{
		Vector: raccoon.Vector{
			Workflow:        raccoon.WorkflowCKE,
			Version:         raccoon.VersionTLS12,
			Suite:           0x0033,
			PMSWithNullByte: true,
		},
		Secret: big.NewInt(42),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	observed, ok := fp.(*Fingerprint)
	if !ok {
		t.Fatalf("Execute() returned %T, want *Fingerprint", fp)
	}
	if !observed.Complete {
		t.Error("observation should be complete")
	}
	if len(observed.Records) != 1 || observed.Records[0].ContentType != recordTypeAlert {
		t.Fatalf("expected a single alert record, got %+v", observed.Records)
	}
	if observed.Records[0].AlertDescription != 40 {
		t.Errorf("alert description = %d, want 40", observed.Records[0].AlertDescription)
	}
	if observed.SocketFate != SocketClosed {
		t.Errorf("socket fate = %s, want %s", observed.SocketFate, SocketClosed)
	}
}

func serverHelloBody(version, suite uint16) []byte {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, version)
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0)                   // no session id
	body = binary.BigEndian.AppendUint16(body, suite)
	body = append(body, 0) // null compression
	return body
}

func TestExecuteRejectsWrongSuite(t *testing.T) {
	client, server := net.Pipe()

	// Answer with a suite the client did not offer; the client aborts after
	// the ServerHello.
	go func() {
		defer server.Close()
		reader := newMessageReader(server)
		if _, err := reader.next(); err != nil {
			return
		}
		server.Write(buildHandshakeRecord(0x0303, handshakeTypeServerHello, serverHelloBody(0x0303, 0x0039)))
	}()

	engine := NewEngine(pipeDialer(client), Config{Timeout: 5 * time.Second})
	_, err := engine.Execute(raccoon.ExecutionRequest{
		Vector: raccoon.Vector{
			Workflow: raccoon.WorkflowCKE,
			Version:  raccoon.VersionTLS12,
			Suite:    0x0033,
		},
		Secret: big.NewInt(42),
	})
	if err == nil {
		t.Fatal("expected an error when the server picks a different suite")
	}
}

func TestBuildFlight(t *testing.T) {
	public := []byte{0x01, 0x02}

	cke, err := buildFlight(raccoon.WorkflowCKE, 0x0303, public)
	if err != nil {
		t.Fatalf("buildFlight(CKE) error = %v", err)
	}
	withCCS, err := buildFlight(raccoon.WorkflowCKECCS, 0x0303, public)
	if err != nil {
		t.Fatalf("buildFlight(CKE_CCS) error = %v", err)
	}
	full, err := buildFlight(raccoon.WorkflowCKECCSFin, 0x0303, public)
	if err != nil {
		t.Fatalf("buildFlight(CKE_CCS_FIN) error = %v", err)
	}

	if len(withCCS) != len(cke)+6 {
		t.Errorf("CKE_CCS flight should add exactly one ChangeCipherSpec record")
	}
	if len(full) <= len(withCCS) {
		t.Errorf("CKE_CCS_FIN flight should add a Finished record")
	}
	if withCCS[len(cke)] != recordTypeChangeCipherSpec {
		t.Errorf("record after ClientKeyExchange = 0x%02x, want ChangeCipherSpec", withCCS[len(cke)])
	}

	if _, err := buildFlight(raccoon.WorkflowInitial, 0x0303, public); err == nil {
		t.Error("the initial sentinel must not be executable")
	}
}

func TestImplementable(t *testing.T) {
	engine := NewEngine(Dialer("localhost", "443"), Config{})

	if !engine.Implementable(0x0033) {
		t.Error("DHE_RSA_WITH_AES_128_CBC_SHA should be implementable")
	}
	if engine.Implementable(0xC02F) {
		t.Error("ECDHE suites are not implementable")
	}
	if engine.Implementable(0x1301) {
		t.Error("TLS 1.3 suites are not implementable")
	}
}
