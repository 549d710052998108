// Package code assigns short session identifiers that are unique among
// currently active sessions.
package code

import (
	"context"
	"math/rand"
	"strconv"

	"github.com/victornm/egame/internal/domain"
	"github.com/victornm/egame/internal/errors"
)

const (
	codeMin = 1000
	codeMax = 9999

	defaultMaxAttempts = 50
)

// SessionProber is the slice of the store the generator needs to check
// whether a code is taken.
type SessionProber interface {
	GetSession(ctx context.Context, code string) (*domain.Session, error)
}

type Config struct {
	Store SessionProber
	// MaxAttempts bounds the probe loop; 0 means the default of 50.
	MaxAttempts int
	// IntN is the random source, overridable in tests. Defaults to
	// math/rand.
	IntN func(n int) int
}

type Generator struct {
	store       SessionProber
	maxAttempts int
	intN        func(n int) int
}

func NewGenerator(c Config) *Generator {
	g := &Generator{
		store:       c.Store,
		maxAttempts: c.MaxAttempts,
		intN:        c.IntN,
	}

	if g.maxAttempts <= 0 {
		g.maxAttempts = defaultMaxAttempts
	}
	if g.intN == nil {
		g.intN = rand.Intn
	}

	return g
}

// Next draws uniformly random 4-digit codes and probes the store until it
// finds one not in use. The probe is advisory only: the caller must treat
// its create-if-absent write as authoritative and come back for a fresh
// code on a write conflict.
func (g *Generator) Next(ctx context.Context) (string, error) {
	for i := 0; i < g.maxAttempts; i++ {
		code := strconv.Itoa(codeMin + g.intN(codeMax-codeMin+1))

		_, err := g.store.GetSession(ctx, code)
		if errors.Is(err, errors.CodeNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}

	return "", errors.New(errors.CodeResourceExhausted,
		errors.WithMessagef("no free session code after %d attempts", g.maxAttempts))
}
