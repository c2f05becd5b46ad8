package telemetry

import (
	"io"
	"sync"
	"time"

	"github.com/robinvdvleuten/lettrage/output"
)

// TimingCollector records a tree of timers. Timers started from the
// collector while another is running nest under the running one, so a
// CLI command can time its top-level steps without passing timers around.
//
// Concurrent pipelines should start their own timers and use Child:
// nesting by "current" is only meaningful for sequential work.
type TimingCollector struct {
	mu      sync.Mutex
	roots   []*timerNode
	current *timerNode
	now     func() time.Time
}

type timerNode struct {
	name     string
	start    time.Time
	end      time.Time
	children []*timerNode
	parent   *timerNode
}

func (n *timerNode) duration() time.Duration {
	if n.end.IsZero() {
		return 0
	}
	return n.end.Sub(n.start)
}

// NewTimingCollector creates an empty collector.
func NewTimingCollector() *TimingCollector {
	return &TimingCollector{now: time.Now}
}

// Start begins timing an operation.
func (c *TimingCollector) Start(name string) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := &timerNode{name: name, start: c.now()}
	if c.current == nil {
		c.roots = append(c.roots, node)
	} else {
		node.parent = c.current
		c.current.children = append(c.current.children, node)
	}
	c.current = node
	return &timingTimer{collector: c, node: node}
}

// Report writes the timing tree to w.
func (c *TimingCollector) Report(w io.Writer, styles *output.Styles) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, root := range c.roots {
		formatTimingTree(w, root, styles)
	}
}

// Durations sums the recorded durations by timer name.
func (c *TimingCollector) Durations() map[string]time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]time.Duration)
	var walk func(n *timerNode)
	walk = func(n *timerNode) {
		out[n.name] += n.duration()
		for _, child := range n.children {
			walk(child)
		}
	}
	for _, root := range c.roots {
		walk(root)
	}
	return out
}

type timingTimer struct {
	collector *TimingCollector
	node      *timerNode
}

func (t *timingTimer) End() {
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()

	if !t.node.end.IsZero() {
		return
	}
	t.node.end = t.collector.now()
	if t.collector.current == t.node {
		t.collector.current = t.node.parent
	}
}

func (t *timingTimer) Child(name string) Timer {
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()

	node := &timerNode{name: name, start: t.collector.now(), parent: t.node}
	t.node.children = append(t.node.children, node)
	return &timingTimer{collector: t.collector, node: node}
}
