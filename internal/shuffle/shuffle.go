// Package shuffle produces the randomized token order that drives
// client-side puzzle rendering for each game mode.
package shuffle

import "math/rand"

// Game modes with a fixed payload set. Clients decide how tokens render
// (digits, image tiles, card backs); the engine only permutes them.
const (
	ModeNumberScramble = "number-scramble"
	ModeImageScramble  = "image-scramble"
	ModeMemoryMatch    = "memory-match"

	DefaultMode = ModeNumberScramble
)

var payloads = map[string][]int{
	ModeNumberScramble: {1, 2, 3, 4, 5, 6, 7, 8, 9},
	ModeImageScramble:  {1, 2, 3, 4, 5, 6, 7, 8, 9},
	ModeMemoryMatch:    {1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8},
}

// Payload returns a copy of the mode's fixed token set, empty for modes
// without one.
func Payload(mode string) []int {
	p, ok := payloads[mode]
	if !ok {
		return []int{}
	}

	out := make([]int, len(p))
	copy(out, p)
	return out
}

// Generate returns a uniformly random permutation of the mode's payload
// set via a Fisher–Yates shuffle. A mode with no payload set yields an
// empty sequence, which is a valid output rather than an error.
func Generate(mode string) []int {
	out := Payload(mode)
	for i := len(out) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out
}
