package net

import (
	"math/rand"
	"time"
)

// expInterval draws an exponentially distributed duration with the given
// mean. Randomised intervals keep peers from synchronising their gossip.
func expInterval(rng *rand.Rand, mean time.Duration) time.Duration {
	if mean <= 0 {
		return 0
	}
	return time.Duration(rng.ExpFloat64() * float64(mean))
}
