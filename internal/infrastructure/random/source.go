package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is a seedable, goroutine-safe random source. The same seed always
// replays the same sequence.
type Source struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a source seeded with seed; zero picks a time-based seed.
func New(seed uint64) *Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Source{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *Source) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}
