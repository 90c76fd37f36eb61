package handshake

import (
	"crypto/sha1" // #nosec G505 - Digest is a comparison key, not a security primitive
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/raccoonscan/raccoonscan-portal/pkg/raccoon"
)

// Socket fates. Error messages must be normalized for comparison: IP
// address and port info would otherwise make every observation unique.
const (
	SocketTimeout = "TIMEOUT"
	SocketReset   = "RESET"
	SocketClosed  = "CLOSED"
	SocketError   = "SOCKET_ERROR"
)

// ReceivedRecord is one record observed after the crafted flight was sent.
type ReceivedRecord struct {
	ContentType byte `json:"content_type"`
	Length      int  `json:"length"`

	// Set only for alert records.
	AlertLevel       byte `json:"alert_level,omitempty"`
	AlertDescription byte `json:"alert_description,omitempty"`
}

// Fingerprint is the observable server behavior for one crafted handshake:
// the record sequence the server answered with and how the socket ended up.
// Complete is false when observation was cut short before the socket fate
// could be established.
type Fingerprint struct {
	Records    []ReceivedRecord `json:"records"`
	SocketFate string           `json:"socket_fate"`
	Complete   bool             `json:"complete"`
}

// Digest returns a stable hash of the normalized observation, usable as a
// comparison and grouping key.
func (fp *Fingerprint) Digest() string {
	var sb strings.Builder
	for _, rec := range fp.Records {
		fmt.Fprintf(&sb, "%d:%d:%d:%d|", rec.ContentType, rec.Length, rec.AlertLevel, rec.AlertDescription)
	}
	sb.WriteString(fp.SocketFate)
	return fmt.Sprintf("%x", sha1.Sum([]byte(sb.String()))) // #nosec G401
}

func (fp *Fingerprint) String() string {
	return fmt.Sprintf("records=%d fate=%s digest=%s", len(fp.Records), fp.SocketFate, fp.Digest()[:12])
}

// normalizeSocketFate maps a read error to a coarse, host-independent label.
func normalizeSocketFate(err error) string {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return SocketTimeout
	case strings.Contains(err.Error(), "reset"):
		return SocketReset
	case strings.Contains(err.Error(), "EOF") || strings.Contains(err.Error(), "closed"):
		return SocketClosed
	default:
		return SocketError
	}
}

// Oracle compares two fingerprints field by field. It satisfies
// raccoon.EqualityOracle.
type Oracle struct{}

// Compare reports whether two observations are behaviorally identical. An
// incomplete observation, or a value that is not a *Fingerprint, cannot be
// judged either way and yields an inconclusive result.
func (Oracle) Compare(a, b raccoon.Fingerprint) raccoon.EqualityResult {
	fpA, okA := a.(*Fingerprint)
	fpB, okB := b.(*Fingerprint)
	if !okA || !okB || fpA == nil || fpB == nil {
		return raccoon.EqualityInconclusive
	}
	if !fpA.Complete || !fpB.Complete {
		return raccoon.EqualityInconclusive
	}
	if fpA.Digest() == fpB.Digest() {
		return raccoon.EqualityEqual
	}
	return raccoon.EqualityUnequal
}
