// Package generator produces the contact details and quantity filled into
// each order form.
package generator

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"order_pacer/internal/model"
)

// MinQuantityShare is the probability that Quantity returns the lower bound.
const MinQuantityShare = 0.8

type SampleSource interface {
	RandomSample(ctx context.Context) (model.Sample, error)
}

type Generator struct {
	src SampleSource

	mu  sync.Mutex
	rng *rand.Rand
}

func New(src SampleSource) *Generator {
	return NewWithRand(src, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewWithRand(src SampleSource, rng *rand.Rand) *Generator {
	return &Generator{src: src, rng: rng}
}

// Name returns "First Last" from a random sample.
func (g *Generator) Name(ctx context.Context) (string, error) {
	smp, err := g.src.RandomSample(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(smp.FirstName + " " + smp.LastName), nil
}

// Phone returns the phone of an independently drawn sample, so the name and
// phone on one order rarely come from the same row.
func (g *Generator) Phone(ctx context.Context) (string, error) {
	smp, err := g.src.RandomSample(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(smp.Phone), nil
}

// Quantity returns min with probability MinQuantityShare, otherwise a uniform
// value in (min, max].
func (g *Generator) Quantity(min, max int) int {
	if min <= 0 {
		min = 1
	}
	if max <= min {
		return min
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rng.Float64() < MinQuantityShare {
		return min
	}
	return min + 1 + g.rng.Intn(max-min)
}
