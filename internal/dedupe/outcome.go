// Package dedupe implements the deduplication engine: candidate reduction,
// the ordered strategy chain, cluster create/extend/merge, representative
// selection, and the persisted decision trail.
package dedupe

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the closed set of strategy outcome states. Anything outside the
// set is a programming error, never default-interpreted.
type Status string

const (
	StatusDuplicate Status = "DUPLICATE"
	StatusDistinct  Status = "DISTINCT"
	StatusAbstain   Status = "ABSTAIN"
)

// ErrOutcomeContract marks a strategy result that violates the outcome
// contract. Evaluations fail fast on it without committing.
var ErrOutcomeContract = errors.New("strategy outcome violates contract")

// Outcome is one strategy's verdict on one (item, candidate) pair. Scored
// marks that the strategy actually computed Score; unscored outcomes persist
// a NULL score rather than a fabricated zero.
type Outcome struct {
	Status Status
	Score  float64
	Scored bool
	Reason string
}

func Duplicate(score float64, reason string) Outcome {
	return Outcome{Status: StatusDuplicate, Score: score, Scored: true, Reason: reason}
}

func Distinct(reason string) Outcome {
	return Outcome{Status: StatusDistinct, Reason: reason}
}

func Abstain(reason string) Outcome {
	return Outcome{Status: StatusAbstain, Reason: reason}
}

// Validate enforces the closed contract: a known status and a non-empty
// reason code.
func (o Outcome) Validate() error {
	switch o.Status {
	case StatusDuplicate, StatusDistinct, StatusAbstain:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrOutcomeContract, string(o.Status))
	}
	if strings.TrimSpace(o.Reason) == "" {
		return fmt.Errorf("%w: empty reason for status %q", ErrOutcomeContract, string(o.Status))
	}
	return nil
}
