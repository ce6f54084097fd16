package indexing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_WeightedChildren(t *testing.T) {
	root := NewProgress(4)
	light := NewProgress(2)
	heavy := NewProgress(1)
	root.AddChild(light, 1)
	root.AddChild(heavy, 3)

	assert.Equal(t, 0.0, root.FractionCompleted())

	light.Increment()
	assert.InDelta(t, 0.125, root.FractionCompleted(), 1e-9)

	heavy.Increment()
	assert.InDelta(t, 0.875, root.FractionCompleted(), 1e-9)

	light.Increment()
	light.Increment()
	assert.InDelta(t, 1.0, root.FractionCompleted(), 1e-9)
}

func TestProgress_EmptyChildCountsOnceFinished(t *testing.T) {
	root := NewProgress(2)
	empty := NewProgress(0)
	root.AddChild(empty, 2)

	assert.Equal(t, 0.0, root.FractionCompleted())
	empty.Finish()
	assert.Equal(t, 1.0, root.FractionCompleted())
}
