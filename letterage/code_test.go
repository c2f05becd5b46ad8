package letterage

import (
	"sync"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestNextCode(t *testing.T) {
	tests := []struct {
		last, want string
	}{
		{"", "AAA"},
		{"AAA", "AAB"},
		{"AAZ", "ABA"},
		{"AZZ", "BAA"},
		{"ZZZ", "AAAA"},
		{"AZZZ", "BAAA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextCode(tt.last))
	}
}

func TestCodeGeneratorObserve(t *testing.T) {
	g := NewCodeGenerator("abc")
	assert.Equal(t, "", g.Last())

	g.Observe("AB")
	g.Observe("ABC")
	g.Observe("AAZ")
	assert.Equal(t, "ABC", g.Last())

	g.Observe("AAAA")
	assert.Equal(t, "AAAB", g.Next())
}

func TestCodeGeneratorConcurrent(t *testing.T) {
	g := NewCodeGenerator("")
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := g.Next()
			mu.Lock()
			seen[code] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, len(seen))
	assert.Equal(t, "ABX", g.Last())
}
