package main

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net"
)

const (
	tls12Version = 0x0303
	dheSuite     = 0x0033 // TLS_DHE_RSA_WITH_AES_128_CBC_SHA

	recordTypeAlert     = 0x15
	recordTypeHandshake = 0x16

	handshakeTypeClientHello       = 0x01
	handshakeTypeServerHello       = 0x02
	handshakeTypeServerKeyExchange = 0x0c
	handshakeTypeServerHelloDone   = 0x0e
	handshakeTypeClientKeyExchange = 0x10
)

// 1024-bit MODP group from RFC 2409. Small enough that leading-zero shared
// secrets show up quickly under repeated handshakes.
var groupPrime, _ = new(big.Int).SetString(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E08"+
		"8A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B"+
		"302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9"+
		"A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE6"+
		"49286651ECE65381FFFFFFFFFFFFFFFF", 16)

var groupGenerator = big.NewInt(2)

func main() {
	port := flag.String("port", "8443", "listen port")
	leaky := flag.Bool("leaky", false, "answer differently when the premaster secret has a leading zero byte")
	flag.Parse()

	listener, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = listener.Close() // Clean up test server
	}()

	fmt.Printf("Mock DHE server listening on port %s (leaky=%v)...\n", *port, *leaky)

	for {
		conn, err := listener.Accept()
		if err != nil {
			fmt.Printf("Accept error: %v\n", err)
			continue
		}

		go handleConnection(conn, *leaky)
	}
}

func handleConnection(conn net.Conn, leaky bool) {
	defer func() {
		_ = conn.Close() // Clean up test connection
	}()
	fmt.Printf("New connection from %s\n", conn.RemoteAddr())

	msgType, _, err := readHandshakeMessage(conn)
	if err != nil {
		fmt.Printf("Read error: %v\n", err)
		return
	}
	if msgType != handshakeTypeClientHello {
		fmt.Printf("Expected ClientHello, got type %d\n", msgType)
		return
	}

	// Fresh server key pair per connection
	private, err := rand.Int(rand.Reader, groupPrime)
	if err != nil {
		fmt.Printf("Key generation error: %v\n", err)
		return
	}
	public := new(big.Int).Exp(groupGenerator, private, groupPrime)

	if _, err := conn.Write(buildServerFlight(public)); err != nil {
		fmt.Printf("Write error: %v\n", err)
		return
	}

	msgType, body, err := readHandshakeMessage(conn)
	if err != nil {
		fmt.Printf("Read error: %v\n", err)
		return
	}
	if msgType != handshakeTypeClientKeyExchange {
		fmt.Printf("Expected ClientKeyExchange, got type %d\n", msgType)
		return
	}

	clientPublic, err := parseClientKeyExchange(body)
	if err != nil {
		fmt.Printf("ClientKeyExchange error: %v\n", err)
		return
	}

	shared := new(big.Int).Exp(clientPublic, private, groupPrime)
	primeLen := (groupPrime.BitLen() + 7) / 8
	hasLeadingZero := len(shared.Bytes()) < primeLen

	fmt.Printf("Premaster leading zero: %v\n", hasLeadingZero)

	// A leaky server changes its observable behavior based on the secret:
	// abrupt close for a leading zero, fatal alert otherwise. A sound server
	// answers identically either way.
	if leaky && hasLeadingZero {
		return
	}

	if _, err := conn.Write(buildAlert(2, 40)); err != nil { // fatal handshake_failure
		fmt.Printf("Write error: %v\n", err)
	}
}

// readHandshakeMessage reads records until one full handshake message is
// available. The crafted flights put each message in its own record, so no
// cross-record reassembly is needed here.
func readHandshakeMessage(conn net.Conn) (byte, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, nil, err
	}
	if header[0] != recordTypeHandshake {
		return 0, nil, fmt.Errorf("unexpected record type %d", header[0])
	}

	payload := make([]byte, binary.BigEndian.Uint16(header[3:5]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		return 0, nil, err
	}
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("handshake message too short")
	}

	length := int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if length > len(payload)-4 {
		return 0, nil, fmt.Errorf("handshake message spans records")
	}
	return payload[0], payload[4 : 4+length], nil
}

func parseClientKeyExchange(body []byte) (*big.Int, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("truncated")
	}
	length := int(binary.BigEndian.Uint16(body[:2]))
	if length == 0 || length > len(body)-2 {
		return nil, fmt.Errorf("bad public value length %d", length)
	}
	return new(big.Int).SetBytes(body[2 : 2+length]), nil
}

// buildServerFlight returns ServerHello, ServerKeyExchange and ServerHelloDone
// in one write. No Certificate message; the crafted clients never verify one.
func buildServerFlight(public *big.Int) []byte {
	var buf bytes.Buffer

	// ServerHello
	var hello bytes.Buffer
	_ = binary.Write(&hello, binary.BigEndian, uint16(tls12Version))
	random := make([]byte, 32)
	_, _ = rand.Read(random)
	hello.Write(random)
	hello.WriteByte(0) // Session ID length
	_ = binary.Write(&hello, binary.BigEndian, uint16(dheSuite))
	hello.WriteByte(0) // Compression method
	buf.Write(buildHandshakeRecord(handshakeTypeServerHello, hello.Bytes()))

	// ServerKeyExchange: ServerDHParams, no signature
	var ske bytes.Buffer
	writeDHInteger(&ske, groupPrime.Bytes())
	writeDHInteger(&ske, groupGenerator.Bytes())
	writeDHInteger(&ske, public.Bytes())
	buf.Write(buildHandshakeRecord(handshakeTypeServerKeyExchange, ske.Bytes()))

	// ServerHelloDone
	buf.Write(buildHandshakeRecord(handshakeTypeServerHelloDone, nil))

	return buf.Bytes()
}

func writeDHInteger(buf *bytes.Buffer, value []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint16(len(value)))
	buf.Write(value)
}

func buildHandshakeRecord(msgType byte, body []byte) []byte {
	var handshake bytes.Buffer
	handshake.WriteByte(msgType)
	handshake.WriteByte(byte(len(body) >> 16))
	handshake.WriteByte(byte(len(body) >> 8))
	handshake.WriteByte(byte(len(body)))
	handshake.Write(body)

	var buf bytes.Buffer
	buf.WriteByte(recordTypeHandshake)
	_ = binary.Write(&buf, binary.BigEndian, uint16(tls12Version))
	_ = binary.Write(&buf, binary.BigEndian, uint16(handshake.Len()))
	buf.Write(handshake.Bytes())
	return buf.Bytes()
}

func buildAlert(level, description byte) []byte {
	return []byte{recordTypeAlert, 0x03, 0x03, 0x00, 0x02, level, description}
}
