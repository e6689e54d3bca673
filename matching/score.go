package matching

// Weights are the points awarded by each compatibility term.
type Weights struct {
	SameStage    int `yaml:"same_stage"`
	SameIndustry int `yaml:"same_industry"`
	SkillPerDiff int `yaml:"skill_per_difference"`
	SkillCap     int `yaml:"skill_cap"`
	SameTimezone int `yaml:"same_timezone"`
	Cofounder    int `yaml:"cofounder"`
	Max          int `yaml:"max"`
}

// DefaultWeights sum to exactly 100 at their maxima.
func DefaultWeights() Weights {
	return Weights{
		SameStage:    20,
		SameIndustry: 15,
		SkillPerDiff: 10,
		SkillCap:     30,
		SameTimezone: 20,
		Cofounder:    15,
		Max:          100,
	}
}

// Scorer computes compatibility scores with a fixed set of weights.
type Scorer struct {
	weights Weights
}

// NewScorer returns a scorer using w.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

var defaultScorer = NewScorer(DefaultWeights())

// Score computes the compatibility of a and b with the default weights.
func Score(a, b Profile) int {
	return defaultScorer.Score(a, b)
}

// Weights returns the weights the scorer was built with.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score returns a value in [0, Max]. It is symmetric in a and b.
func (s *Scorer) Score(a, b Profile) int {
	w := s.weights
	score := 0

	if a.Stage == b.Stage {
		score += w.SameStage
	}
	if a.Industry == b.Industry {
		score += w.SameIndustry
	}

	// Complementary skills: what exactly one side brings.
	diff := symmetricDifference(a.Skills, b.Skills)
	score += min(diff*w.SkillPerDiff, w.SkillCap)

	if a.Timezone == b.Timezone {
		score += w.SameTimezone
	}
	if a.LookingFor == LookingForCofounder || b.LookingFor == LookingForCofounder {
		score += w.Cofounder
	}

	return max(0, min(score, w.Max))
}

func symmetricDifference(a, b []string) int {
	setA := skillSet(a)
	setB := skillSet(b)
	n := 0
	for s := range setA {
		if _, ok := setB[s]; !ok {
			n++
		}
	}
	for s := range setB {
		if _, ok := setA[s]; !ok {
			n++
		}
	}
	return n
}
