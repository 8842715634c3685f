package dialogue

import (
	"fmt"
	"strings"
)

// PassPolicy decides what a passed image interpretation leads to.
type PassPolicy interface {
	Name() string
	// Complete reports whether passed validated interpretations end the
	// dialogue. When false the loop continues with the next visual step.
	Complete(passed int64) bool
}

const (
	PolicyNextImage = "next_image"
	PolicyThreshold = "threshold"
)

// NextImagePolicy always moves on to the next visual; the dialogue ends only
// through a finish intent and the learner's own synthesis.
type NextImagePolicy struct{}

func (NextImagePolicy) Name() string { return PolicyNextImage }
func (NextImagePolicy) Complete(passed int64) bool { return false }

// ThresholdPolicy ends the dialogue, with an immediate review, once Threshold
// interpretations have passed.
type ThresholdPolicy struct {
	Threshold int64
}

func (ThresholdPolicy) Name() string { return PolicyThreshold }

func (p ThresholdPolicy) Complete(passed int64) bool {
	return p.Threshold > 0 && passed >= p.Threshold
}

func PolicyByName(name string, threshold int) (PassPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyNextImage:
		return NextImagePolicy{}, nil
	case PolicyThreshold:
		if threshold <= 0 {
			threshold = 2
		}
		return ThresholdPolicy{Threshold: int64(threshold)}, nil
	default:
		return nil, fmt.Errorf("unknown pass policy %q", name)
	}
}
