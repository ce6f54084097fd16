package indexing

import (
	"sync"
)

type progressChild struct {
	progress *Progress
	weight   int64
}

// Progress is a node in a weighted progress tree. A child attached with weight w
// accounts for w of its parent's total units. Safe for concurrent use.
type Progress struct {
	mu        sync.Mutex
	total     int64
	completed int64
	finished  bool
	children  []progressChild
}

// NewProgress creates a progress node with the given unit count
func NewProgress(total int64) *Progress {
	return &Progress{total: total}
}

// AddChild attaches child as weight units of p
func (p *Progress) AddChild(child *Progress, weight int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children = append(p.children, progressChild{progress: child, weight: weight})
}

// Increment marks one more unit as completed
func (p *Progress) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed < p.total {
		p.completed++
	}
}

// Finish marks every unit as completed
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = p.total
	p.finished = true
}

// FractionCompleted returns completion in [0,1] including weighted children
func (p *Progress) FractionCompleted() float64 {
	p.mu.Lock()
	total, completed, finished := p.total, p.completed, p.finished
	children := append([]progressChild(nil), p.children...)
	p.mu.Unlock()

	if total <= 0 {
		if finished {
			return 1
		}
		return 0
	}

	units := float64(completed)
	for _, c := range children {
		units += float64(c.weight) * c.progress.FractionCompleted()
	}
	fraction := units / float64(total)
	if fraction > 1 {
		return 1
	}
	return fraction
}
