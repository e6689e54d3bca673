// Package matching scores founder compatibility and picks roulette and
// co-founder candidates from an in-memory candidate pool.
package matching

import (
	"errors"
	"fmt"
)

// Stage is how far along a founder's startup is.
type Stage string

const (
	StageIdea     Stage = "idea"
	StageMVP      Stage = "mvp"
	StageLaunched Stage = "launched"
	StageScaling  Stage = "scaling"
)

// LookingFor is what a founder wants out of the network.
type LookingFor string

const (
	LookingForCofounder  LookingFor = "cofounder"
	LookingForFeedback   LookingFor = "feedback"
	LookingForUsers      LookingFor = "users"
	LookingForNetworking LookingFor = "networking"
)

var (
	ErrInvalidStage      = errors.New("invalid stage")
	ErrInvalidLookingFor = errors.New("invalid looking_for")
	ErrMissingField      = errors.New("missing required field")
)

// Stages lists the accepted stages in display order.
var Stages = []Stage{StageIdea, StageMVP, StageLaunched, StageScaling}

// LookingForOptions lists the accepted looking_for values in display order.
var LookingForOptions = []LookingFor{LookingForCofounder, LookingForFeedback, LookingForUsers, LookingForNetworking}

// ParseStage matches s exactly against the known stages.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
}

// ParseLookingFor matches s exactly against the known looking_for values.
func ParseLookingFor(s string) (LookingFor, error) {
	for _, lf := range LookingForOptions {
		if string(lf) == s {
			return lf, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLookingFor, s)
}

// Profile is the read-only snapshot of a founder used for matching.
// Skills has set semantics: order does not matter and duplicates collapse.
type Profile struct {
	ID         int
	Stage      Stage
	Industry   string
	Skills     []string
	Timezone   string
	LookingFor LookingFor
	IsOnline   bool
}

// Validate reports whether p carries every field the scorer compares.
func (p Profile) Validate() error {
	switch {
	case p.Stage == "":
		return fmt.Errorf("%w: stage", ErrMissingField)
	case p.LookingFor == "":
		return fmt.Errorf("%w: looking_for", ErrMissingField)
	case p.Industry == "":
		return fmt.Errorf("%w: industry", ErrMissingField)
	case p.Timezone == "":
		return fmt.Errorf("%w: timezone", ErrMissingField)
	}
	if _, err := ParseStage(string(p.Stage)); err != nil {
		return err
	}
	if _, err := ParseLookingFor(string(p.LookingFor)); err != nil {
		return err
	}
	return nil
}

func skillSet(skills []string) map[string]struct{} {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		set[s] = struct{}{}
	}
	return set
}

// without returns pool minus every profile sharing current's ID.
func without(current Profile, pool []Profile) []Profile {
	out := make([]Profile, 0, len(pool))
	for _, p := range pool {
		if p.ID == current.ID {
			continue
		}
		out = append(out, p)
	}
	return out
}
