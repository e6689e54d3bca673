package matching

import "math/rand/v2"

// Source is the randomness used by the roulette. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// globalSource draws from the top-level math/rand/v2 functions, which are
// safe for concurrent use.
type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Selector picks a random roulette partner.
type Selector struct {
	src Source
}

// NewSelector returns a selector drawing from src. A nil src uses the
// process-wide generator.
func NewSelector(src Source) *Selector {
	if src == nil {
		src = globalSource{}
	}
	return &Selector{src: src}
}

// Select never returns current. Same-stage candidates win when there are
// any; otherwise any remaining candidate can be picked. The bool is false
// when nobody is left.
func (s *Selector) Select(current Profile, pool []Profile) (Profile, bool) {
	candidates := without(current, pool)

	preferred := make([]Profile, 0, len(candidates))
	for _, c := range candidates {
		if c.Stage == current.Stage {
			preferred = append(preferred, c)
		}
	}

	switch {
	case len(preferred) > 0:
		return preferred[s.src.IntN(len(preferred))], true
	case len(candidates) > 0:
		return candidates[s.src.IntN(len(candidates))], true
	default:
		return Profile{}, false
	}
}
