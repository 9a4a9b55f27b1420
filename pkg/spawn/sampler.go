package spawn

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler is the single source of randomness for generation, safe for concurrent use
type Sampler struct {
	mutex  sync.Mutex
	source rand.Source
	random *rand.Rand
}

func NewSampler(seed uint64) *Sampler {
	source := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)

	return &Sampler{
		source: source,
		random: rand.New(source),
	}
}

func NewTimeSeededSampler() *Sampler {
	return NewSampler(uint64(time.Now().UnixNano()))
}

// Poisson draws an arrival count with mean lambda. lambda <= 0 always gives 0.
func (s *Sampler) Poisson(lambda float64) int {
	if lambda <= 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return 0
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return int(distuv.Poisson{Lambda: lambda, Src: s.source}.Rand())
}

// IntN is uniform over [0, n), n must be positive
func (s *Sampler) IntN(n int) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.random.IntN(n)
}

func (s *Sampler) Float64() float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.random.Float64()
}

// Weighted picks an index with probability proportional to its weight.
// Returns -1 when no weight is positive.
func (s *Sampler) Weighted(weights []float64) int {
	total := 0.0
	for _, weight := range weights {
		if weight > 0 {
			total += weight
		}
	}
	if total <= 0 {
		return -1
	}

	target := s.Float64() * total
	last := -1
	for i, weight := range weights {
		if weight <= 0 {
			continue
		}
		last = i
		if target < weight {
			return i
		}
		target -= weight
	}

	return last
}
