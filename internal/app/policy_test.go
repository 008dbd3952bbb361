package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyFirstSourceIsPrimary(t *testing.T) {
	p := StandardPolicy{}.Decide(0)
	assert.True(t, p.Primary)
	assert.Equal(t, 1, p.Order)
}

func TestPolicyFurtherSourcesAreSynthetic(t *testing.T) {
	for count, wantOrder := range map[int]int{1: 2, 2: 3, 5: 6} {
		p := StandardPolicy{}.Decide(count)
		assert.False(t, p.Primary, "count %d", count)
		assert.Equal(t, wantOrder, p.Order, "count %d", count)
	}
}
