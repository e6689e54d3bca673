package matching

import "sort"

// DefaultSuggestionLimit is how many co-founder suggestions are returned
// unless configured otherwise.
const DefaultSuggestionLimit = 20

// Suggestion is a candidate paired with its compatibility score.
type Suggestion struct {
	Founder Profile
	Score   int
}

// Ranker orders candidates by compatibility with the current founder.
type Ranker struct {
	scorer *Scorer
}

// NewRanker returns a ranker scoring with scorer, or the default weights
// when scorer is nil.
func NewRanker(scorer *Scorer) *Ranker {
	if scorer == nil {
		scorer = defaultScorer
	}
	return &Ranker{scorer: scorer}
}

// Rank scores every candidate except current and returns at most limit
// suggestions, best first. Equal scores keep their pool order.
func (r *Ranker) Rank(current Profile, pool []Profile, limit int) []Suggestion {
	candidates := without(current, pool)

	out := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Suggestion{Founder: c, Score: r.scorer.Score(current, c)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if limit < 0 {
		limit = 0
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
