package handshake

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"testing"
)

// encodeDHParams builds a ServerKeyExchange body from (p, g, Ys), optionally
// with trailing signature bytes.
func encodeDHParams(p, g, ys *big.Int, trailer []byte) []byte {
	var buf bytes.Buffer
	for _, v := range []*big.Int{p, g, ys} {
		b := v.Bytes()
		binary.Write(&buf, binary.BigEndian, uint16(len(b)))
		buf.Write(b)
	}
	buf.Write(trailer)
	return buf.Bytes()
}

// testGroup is a small but real DH group. deriveClientKey only needs p to be
// large enough that shared secrets with and without a leading zero byte both
// occur within the search bound.
func testGroup() (p, g *big.Int) {
	p, _ = new(big.Int).SetString("f52aff3ce1b1294018301a2470e4059b", 16)
	return p, big.NewInt(2)
}

func TestParseServerDHParams(t *testing.T) {
	p, g := testGroup()
	ys := new(big.Int).Exp(g, big.NewInt(12345), p)

	tests := []struct {
		name    string
		body    []byte
		wantErr bool
	}{
		{
			name: "valid",
			body: encodeDHParams(p, g, ys, nil),
		},
		{
			name: "signature trailer ignored",
			body: encodeDHParams(p, g, ys, make([]byte, 64)),
		},
		{
			name:    "truncated",
			body:    encodeDHParams(p, g, ys, nil)[:20],
			wantErr: true,
		},
		{
			name:    "empty",
			body:    nil,
			wantErr: true,
		},
		{
			name:    "generator out of range",
			body:    encodeDHParams(p, big.NewInt(1), ys, nil),
			wantErr: true,
		},
		{
			name:    "public value out of range",
			body:    encodeDHParams(p, g, new(big.Int).Add(p, big.NewInt(5)), nil),
			wantErr: true,
		},
		{
			name:    "prime too small",
			body:    encodeDHParams(big.NewInt(23), big.NewInt(5), big.NewInt(8), nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := parseServerDHParams(tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseServerDHParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if params.p.Cmp(p) != 0 || params.g.Cmp(g) != 0 || params.ys.Cmp(ys) != 0 {
				t.Error("parsed parameters do not round-trip")
			}
		})
	}
}

func TestDeriveClientKeyNullByte(t *testing.T) {
	p, g := testGroup()

	// Server side of the exchange, so the shared secret can be recomputed
	// from the client public value.
	serverPriv := big.NewInt(987654321)
	params := &serverDHParams{p: p, g: g, ys: new(big.Int).Exp(g, serverPriv, p)}

	for _, nullByte := range []bool{true, false} {
		public, err := deriveClientKey(params, big.NewInt(42), nullByte)
		if err != nil {
			t.Fatalf("deriveClientKey(nullByte=%v) error = %v", nullByte, err)
		}

		shared := new(big.Int).Exp(new(big.Int).SetBytes(public), serverPriv, p)
		hasNull := len(shared.Bytes()) < params.byteLen()
		if hasNull != nullByte {
			t.Errorf("shared secret leading zero = %v, want %v", hasNull, nullByte)
		}
	}
}

func TestDeriveClientKeyDeterministic(t *testing.T) {
	p, g := testGroup()
	params := &serverDHParams{p: p, g: g, ys: new(big.Int).Exp(g, big.NewInt(777), p)}

	secret := big.NewInt(31337)
	first, err := deriveClientKey(params, secret, true)
	if err != nil {
		t.Fatalf("deriveClientKey() error = %v", err)
	}
	second, err := deriveClientKey(params, secret, true)
	if err != nil {
		t.Fatalf("deriveClientKey() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same (secret, nullByte) must select the same client key")
	}

	other, err := deriveClientKey(params, secret, false)
	if err != nil {
		t.Fatalf("deriveClientKey() error = %v", err)
	}
	if bytes.Equal(first, other) {
		t.Error("opposite null-byte flags selected the same client key")
	}
}

func TestDeriveClientKeyRejectsBadSecret(t *testing.T) {
	p, g := testGroup()
	params := &serverDHParams{p: p, g: g, ys: new(big.Int).Exp(g, big.NewInt(5), p)}

	if _, err := deriveClientKey(params, nil, true); err == nil {
		t.Error("nil secret must be rejected")
	}
	if _, err := deriveClientKey(params, big.NewInt(-4), true); err == nil {
		t.Error("negative secret must be rejected")
	}
}
