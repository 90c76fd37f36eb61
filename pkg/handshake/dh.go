package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// serverDHParams are the ephemeral Diffie-Hellman parameters a server sends
// in ServerKeyExchange (RFC 5246, section 7.4.3).
type serverDHParams struct {
	p, g, ys *big.Int
}

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// maxDeriveSteps bounds the null-byte search. A leading zero appears in
// roughly 1 in 256 shared secrets, so a few thousand steps is already far
// beyond what the search ever needs.
const maxDeriveSteps = 1 << 16

// parseServerDHParams reads (p, g, Ys) from the front of a ServerKeyExchange
// body. Anything after the public value (the signature for authenticated
// suites) is ignored.
func parseServerDHParams(body []byte) (*serverDHParams, error) {
	p, rest, err := readDHInteger(body)
	if err != nil {
		return nil, fmt.Errorf("dh_p: %w", err)
	}
	g, rest, err := readDHInteger(rest)
	if err != nil {
		return nil, fmt.Errorf("dh_g: %w", err)
	}
	ys, _, err := readDHInteger(rest)
	if err != nil {
		return nil, fmt.Errorf("dh_Ys: %w", err)
	}

	params := &serverDHParams{p: p, g: g, ys: ys}
	if err := params.validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func readDHInteger(data []byte) (*big.Int, []byte, error) {
	if len(data) < 2 {
		return nil, nil, errors.New("missing length prefix")
	}
	length := int(binary.BigEndian.Uint16(data[0:2]))
	data = data[2:]
	if len(data) < length {
		return nil, nil, errors.New("value truncated")
	}
	return new(big.Int).SetBytes(data[:length]), data[length:], nil
}

func (params *serverDHParams) validate() error {
	if params.p.BitLen() < 128 {
		return fmt.Errorf("dh prime too small: %d bits", params.p.BitLen())
	}
	if params.g.Cmp(one) <= 0 || params.g.Cmp(params.p) >= 0 {
		return errors.New("dh generator out of range")
	}
	if params.ys.Cmp(one) <= 0 || params.ys.Cmp(params.p) >= 0 {
		return errors.New("dh server public value out of range")
	}
	return nil
}

// byteLen is the length of the prime's canonical big-endian encoding. A
// shared secret whose minimal encoding is shorter starts with a zero byte
// when padded to this width.
func (params *serverDHParams) byteLen() int {
	return (params.p.BitLen() + 7) / 8
}

// deriveClientKey finds a client private value x, starting from secret and
// stepping upward, whose shared secret Ys^x mod p begins with a zero byte
// exactly when nullByte is set. The returned public value g^x mod p is what
// goes into ClientKeyExchange. The search is deterministic in
// (secret, nullByte): the same inputs always select the same x.
func deriveClientKey(params *serverDHParams, secret *big.Int, nullByte bool) (public []byte, err error) {
	if secret == nil || secret.Sign() <= 0 {
		return nil, errors.New("initial secret must be positive")
	}

	// Clamp into [2, p-2].
	x := new(big.Int).Mod(secret, new(big.Int).Sub(params.p, two))
	if x.Cmp(two) < 0 {
		x.Set(two)
	}

	shared := new(big.Int)
	for i := 0; i < maxDeriveSteps; i++ {
		shared.Exp(params.ys, x, params.p)
		if shared.Sign() > 0 && (len(shared.Bytes()) < params.byteLen()) == nullByte {
			pub := new(big.Int).Exp(params.g, x, params.p)
			if pub.Cmp(one) > 0 && pub.Cmp(params.p) < 0 {
				return pub.Bytes(), nil
			}
		}
		x.Add(x, one)
	}

	return nil, fmt.Errorf("no private value found with leading zero byte=%v", nullByte)
}
