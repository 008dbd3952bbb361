package app

// Placement tells a publisher where the next media source goes.
type Placement struct {
	// Primary means the source rides the human's own connection.
	Primary bool
	// Order is the source ordinal, assigned once and never renumbered.
	Order int
}

// PlacementPolicy decides placement for a human's next media source given
// how many sources that human currently publishes.
type PlacementPolicy interface {
	Decide(currentCount int) Placement
}

// StandardPolicy: the first source is published directly by the human,
// every further source gets its own synthetic participant. Removing a
// source never shifts the ordinals of the remaining ones.
type StandardPolicy struct{}

func (StandardPolicy) Decide(currentCount int) Placement {
	if currentCount == 0 {
		return Placement{Primary: true, Order: 1}
	}
	return Placement{Order: currentCount + 1}
}
