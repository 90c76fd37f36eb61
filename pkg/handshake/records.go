// Package handshake drives crafted TLS handshakes over raw sockets. It builds
// and parses records directly so the client flight after ServerHelloDone can
// be shaped freely, which no TLS library allows.
package handshake

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	recordTypeChangeCipherSpec = 0x14
	recordTypeAlert            = 0x15
	recordTypeHandshake        = 0x16
	recordTypeApplicationData  = 0x17

	handshakeTypeClientHello       = 0x01
	handshakeTypeServerHello       = 0x02
	handshakeTypeCertificate       = 0x0b
	handshakeTypeServerKeyExchange = 0x0c
	handshakeTypeServerHelloDone   = 0x0e
	handshakeTypeClientKeyExchange = 0x10
	handshakeTypeFinished          = 0x14

	maxRecordLength = 1 << 14
)

// buildClientHello constructs a ClientHello record offering exactly the given
// cipher suites at the given protocol version. No extensions are sent; the
// targeted servers are pre-1.3 and the crafted flight needs none.
func buildClientHello(version uint16, suites []uint16) ([]byte, error) {
	randomBytes := make([]byte, 32)
	binary.BigEndian.PutUint32(randomBytes[0:4], uint32(time.Now().Unix()))
	if _, err := rand.Read(randomBytes[4:]); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	var body bytes.Buffer

	// Protocol version
	_ = binary.Write(&body, binary.BigEndian, version) // Writing to buffer cannot fail

	// Random
	body.Write(randomBytes)

	// Session ID length (0 - no session resumption)
	body.WriteByte(0)

	// Cipher suites
	_ = binary.Write(&body, binary.BigEndian, uint16(len(suites)*2)) // Writing to buffer cannot fail
	for _, suite := range suites {
		_ = binary.Write(&body, binary.BigEndian, suite) // Writing to buffer cannot fail
	}

	// Compression methods (NULL only)
	body.WriteByte(1)
	body.WriteByte(0)

	return buildHandshakeRecord(version, handshakeTypeClientHello, body.Bytes()), nil
}

// buildHandshakeRecord wraps a handshake message body in its 4-byte handshake
// header and a single TLS record.
func buildHandshakeRecord(version uint16, msgType byte, body []byte) []byte {
	var msg bytes.Buffer
	msg.WriteByte(msgType)
	msg.WriteByte(byte(len(body) >> 16))
	msg.WriteByte(byte(len(body) >> 8))
	msg.WriteByte(byte(len(body)))
	msg.Write(body)
	return buildRecord(recordTypeHandshake, version, msg.Bytes())
}

// buildRecord wraps a payload in a TLS record header.
func buildRecord(contentType byte, version uint16, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(contentType)
	_ = binary.Write(&buf, binary.BigEndian, version)              // Writing to buffer cannot fail
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(payload))) // Writing to buffer cannot fail
	buf.Write(payload)
	return buf.Bytes()
}

// buildClientKeyExchange wraps the client's DH public value in a
// ClientKeyExchange message (opaque dh_Yc with 2-byte length).
func buildClientKeyExchange(version uint16, public []byte) []byte {
	var body bytes.Buffer
	_ = binary.Write(&body, binary.BigEndian, uint16(len(public))) // Writing to buffer cannot fail
	body.Write(public)
	return buildHandshakeRecord(version, handshakeTypeClientKeyExchange, body.Bytes())
}

// buildChangeCipherSpec returns the one-byte ChangeCipherSpec record.
func buildChangeCipherSpec(version uint16) []byte {
	return buildRecord(recordTypeChangeCipherSpec, version, []byte{0x01})
}

// buildFinished returns a Finished record filled with random bytes. The
// server cannot decrypt it with the keys it derived, which is the point: how
// it reacts to the undecryptable record is part of the observed behavior.
func buildFinished(version uint16) ([]byte, error) {
	garbage := make([]byte, 40)
	if _, err := rand.Read(garbage); err != nil {
		return nil, fmt.Errorf("failed to generate finished payload: %w", err)
	}
	return buildRecord(recordTypeHandshake, version, garbage), nil
}

// rawRecord is one TLS record as read off the wire.
type rawRecord struct {
	contentType byte
	version     uint16
	payload     []byte
}

// readRecord reads exactly one TLS record from the connection.
func readRecord(conn net.Conn) (*rawRecord, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(header[3:5])
	if length > maxRecordLength {
		return nil, fmt.Errorf("oversized record: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}

	return &rawRecord{
		contentType: header[0],
		version:     binary.BigEndian.Uint16(header[1:3]),
		payload:     payload,
	}, nil
}

// handshakeMsg is one handshake-protocol message, possibly reassembled from
// several records.
type handshakeMsg struct {
	msgType byte
	body    []byte
}

// messageReader reassembles handshake messages from the record stream.
// Servers are free to split or coalesce messages across records.
type messageReader struct {
	conn net.Conn
	buf  []byte
}

func newMessageReader(conn net.Conn) *messageReader {
	return &messageReader{conn: conn}
}

// next returns the next complete handshake message. An alert record arriving
// mid-handshake is surfaced as an error naming the alert.
func (r *messageReader) next() (*handshakeMsg, error) {
	for len(r.buf) < 4 {
		if err := r.fill(); err != nil {
			return nil, err
		}
	}

	length := int(r.buf[1])<<16 | int(r.buf[2])<<8 | int(r.buf[3])
	for len(r.buf) < 4+length {
		if err := r.fill(); err != nil {
			return nil, err
		}
	}

	msg := &handshakeMsg{msgType: r.buf[0], body: r.buf[4 : 4+length]}
	r.buf = r.buf[4+length:]
	return msg, nil
}

func (r *messageReader) fill() error {
	rec, err := readRecord(r.conn)
	if err != nil {
		return err
	}
	switch rec.contentType {
	case recordTypeHandshake:
		r.buf = append(r.buf, rec.payload...)
		return nil
	case recordTypeAlert:
		level, desc := parseAlert(rec.payload)
		return fmt.Errorf("alert during handshake: level=%d description=%d", level, desc)
	default:
		return fmt.Errorf("unexpected record type %d during handshake", rec.contentType)
	}
}

// serverHello is the part of a ServerHello the probe cares about.
type serverHello struct {
	version uint16
	suite   uint16
}

// parseServerHello extracts the negotiated version and cipher suite.
func parseServerHello(body []byte) (*serverHello, error) {
	// version(2) + random(32) + session_id_len(1)
	if len(body) < 35 {
		return nil, errors.New("server hello too short")
	}
	sessionLen := int(body[34])
	if len(body) < 35+sessionLen+3 {
		return nil, errors.New("server hello truncated")
	}
	return &serverHello{
		version: binary.BigEndian.Uint16(body[0:2]),
		suite:   binary.BigEndian.Uint16(body[35+sessionLen : 35+sessionLen+2]),
	}, nil
}

// parseAlert decodes a 2-byte alert payload. Malformed alerts decode as
// (0, 0) rather than failing; they still contribute to the fingerprint.
func parseAlert(payload []byte) (level, description byte) {
	if len(payload) < 2 {
		return 0, 0
	}
	return payload[0], payload[1]
}
