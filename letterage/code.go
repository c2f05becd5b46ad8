package letterage

import (
	"sync"

	"github.com/robinvdvleuten/lettrage/ledger"
)

const minCodeLength = 3

// CodeGenerator hands out letter codes in sequence: AAA, AAB, ..., AAZ,
// ABA, ..., ZZZ, AAAA. It is safe for concurrent use.
type CodeGenerator struct {
	mu   sync.Mutex
	last string
}

// NewCodeGenerator starts after last, typically the highest code already
// stored. Codes that are not generated codes are ignored.
func NewCodeGenerator(last string) *CodeGenerator {
	g := &CodeGenerator{}
	g.Observe(last)
	return g
}

// Observe moves the sequence past code if code is ahead of it.
func (g *CodeGenerator) Observe(code string) {
	if !ledger.IsLetterCode(code) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if ledger.LetterCodeLess(g.last, code) {
		g.last = code
	}
}

// Next returns the next code.
func (g *CodeGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = nextCode(g.last)
	return g.last
}

// Last returns the most recent code, or "" if none was handed out.
func (g *CodeGenerator) Last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func nextCode(code string) string {
	if code == "" {
		b := make([]byte, minCodeLength)
		for i := range b {
			b[i] = 'A'
		}
		return string(b)
	}
	b := []byte(code)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 'Z' {
			b[i]++
			return string(b)
		}
		b[i] = 'A'
	}
	// Every position wrapped: grow by one letter.
	return "A" + string(b)
}
