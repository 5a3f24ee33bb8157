package reinforcement

import (
	"qmaze/maze"
	"qmaze/prng"
	"qmaze/qtable"
)

// ChooseAction is the epsilon-greedy policy. One draw decides between exploring
// and exploiting; only the explore branch draws a second time, to pick the random
// action. The branches therefore consume different numbers of draws, and callers
// must carry the returned seed forward.
// Epsilon is a percentage: 0 always exploits, 100 always explores.
func ChooseAction(q qtable.Values, epsilon, seed uint32) (maze.Action, uint32) {
	r, seed := prng.Next(seed)
	if r < epsilon {
		// Exploration: pick an action by ordinal.
		r, seed = prng.Next(seed)
		return maze.Action(r % maze.NumActions), seed
	}
	// Exploitation: earliest action among the maxima.
	return qtable.BestAction(q), seed
}
