package shuffle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/egame/internal/shuffle"
)

func TestGenerate_IsPermutation(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{
		shuffle.ModeNumberScramble,
		shuffle.ModeImageScramble,
		shuffle.ModeMemoryMatch,
	} {
		payload := shuffle.Payload(mode)

		for i := 0; i < 100; i++ {
			got := shuffle.Generate(mode)
			require.Len(t, got, len(payload), "mode %s: length must be preserved", mode)
			assert.ElementsMatch(t, payload, got, "mode %s: output must be a permutation of the payload set", mode)
		}
	}
}

func TestGenerate_UnknownModeIsEmpty(t *testing.T) {
	t.Parallel()

	got := shuffle.Generate("free-play")
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestGenerate_PositionsRoughlyUniform(t *testing.T) {
	t.Parallel()

	const runs = 9000

	// Count how often token 1 lands in each of the 9 positions. With a
	// uniform shuffle the expectation is runs/9 per position.
	counts := make([]int, 9)
	for i := 0; i < runs; i++ {
		got := shuffle.Generate(shuffle.ModeNumberScramble)
		for pos, tok := range got {
			if tok == 1 {
				counts[pos]++
				break
			}
		}
	}

	want := runs / 9
	for pos, c := range counts {
		assert.InDelta(t, want, c, float64(want)/2, "token 1 at position %d", pos)
	}
}
