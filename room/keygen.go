package room

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Room codes are short and human-typeable, not secrets. 36^5 keeps the
// collision rate low for realistic room counts; the store retries on a
// clash so callers never see one.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength   = 5
)

// KeyGenerator draws room codes uniformly from the code alphabet.
type KeyGenerator struct {
	mutex sync.Mutex
	rng   *rand.Rand
}

func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *KeyGenerator) Generate() string {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[g.rng.Intn(len(codeAlphabet))])
	}
	return b.String()
}

// Coin returns true with probability 1/2; used to pick which side of a
// freshly paired room chooses its piece first.
func (g *KeyGenerator) Coin() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.rng.Intn(2) == 0
}
