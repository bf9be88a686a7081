package fairness

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
)

const bytesPerRound = sha256.Size

// ByteGenerator yields the deterministic byte stream for one play. Round r of
// the stream is HMAC-SHA256(serverSeed, "clientSeed:nonce:r").
type ByteGenerator struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	round      uint64
	cursor     int
	buf        []byte
}

func NewByteGenerator(serverSeed, clientSeed string, nonce uint64) *ByteGenerator {
	return &ByteGenerator{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
}

func (g *ByteGenerator) Next() byte {
	if g.buf == nil || g.cursor == bytesPerRound {
		if g.buf != nil {
			g.round++
		}
		g.buf = hmacSHA256(g.serverSeed, g.clientSeed+":"+strconv.FormatUint(g.nonce, 10)+":"+strconv.FormatUint(g.round, 10))
		g.cursor = 0
	}
	b := g.buf[g.cursor]
	g.cursor++
	return b
}

// Float consumes four bytes and returns a value in [0, 1).
func (g *ByteGenerator) Float() float64 {
	var f float64
	div := 1.0
	for i := 0; i < 4; i++ {
		div *= 256
		f += float64(g.Next()) / div
	}
	return f
}

// Floats returns the first count floats of the stream for (serverSeed, clientSeed, nonce).
func Floats(serverSeed, clientSeed string, nonce uint64, count int) []float64 {
	g := NewByteGenerator(serverSeed, clientSeed, nonce)
	out := make([]float64, count)
	for i := range out {
		out[i] = g.Float()
	}
	return out
}

// RollNumber maps the first float of the stream to a two-decimal value in [0, 99.99].
func RollNumber(serverSeed, clientSeed string, nonce uint64) float64 {
	f := NewByteGenerator(serverSeed, clientSeed, nonce).Float()
	return math.Floor(f*10000) / 100
}

// RollHash is the per-roll digest reported back to players for verification.
func RollHash(serverSeed, clientSeed string, nonce uint64) string {
	return hex.EncodeToString(hmacSHA256(serverSeed, clientSeed+":"+strconv.FormatUint(nonce, 10)))
}

func hmacSHA256(key, msg string) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
