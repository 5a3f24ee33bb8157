// Package prng is a linear congruential generator used for exploration noise.
// It is reproducible and cheap, and NOT cryptographically secure: anyone who sees
// a few outputs can predict the rest. There is no hidden state; callers thread
// the returned seed into the next draw.
package prng

const (
	// Numerical Recipes LCG constants; arithmetic is mod 2^32 via uint32 overflow.
	Multiplier uint32 = 1664525
	Increment  uint32 = 1013904223

	// Modulus bounds drawn values to [0, Modulus), i.e. a percentage.
	Modulus uint32 = 100

	// InitialSeed is the seed a fresh engine state starts from.
	InitialSeed uint32 = 1
)

// Next advances seed and returns a value in [0,100) along with the new seed.
func Next(seed uint32) (value, next uint32) {
	next = seed*Multiplier + Increment
	value = next % Modulus
	return
}
