package table

import (
	"fmt"
	"math/rand"
	"time"
)

// A DurationSource produces the successive idle and active durations of an
// actor. Implementations are not safe for concurrent use; each actor owns its
// sources.
type DurationSource interface {
	Next() time.Duration
}

// A UniformSource draws durations uniformly from [min, max].
type UniformSource struct {
	min, max time.Duration
	rng      *rand.Rand
}

// NewUniformSource creates a seedable UniformSource. The bounds must satisfy
// 0 <= min <= max.
func NewUniformSource(min, max time.Duration, seed int64) *UniformSource {
	if min < 0 || max < min {
		panic(fmt.Sprintf("invalid duration range [%s, %s]", min, max))
	}

	return &UniformSource{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next sampled duration.
func (s *UniformSource) Next() time.Duration {
	if s.max == s.min {
		return s.min
	}
	return s.min + time.Duration(s.rng.Int63n(int64(s.max-s.min)+1))
}

// A FixedSource always produces the same duration.
type FixedSource time.Duration

// Next returns the fixed duration.
func (s FixedSource) Next() time.Duration {
	return time.Duration(s)
}

// A SequenceSource replays a predetermined schedule of durations. After the
// schedule is exhausted it keeps returning the last entry. It makes
// timing-dependent scenarios reproducible in tests.
type SequenceSource struct {
	durations []time.Duration
	next      int
}

// NewSequenceSource creates a SequenceSource from the given schedule.
func NewSequenceSource(durations ...time.Duration) *SequenceSource {
	if len(durations) == 0 {
		panic("a sequence source needs at least one duration")
	}

	return &SequenceSource{durations: durations}
}

// Next returns the next scheduled duration.
func (s *SequenceSource) Next() time.Duration {
	d := s.durations[s.next]
	if s.next < len(s.durations)-1 {
		s.next++
	}
	return d
}
