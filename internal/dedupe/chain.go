package dedupe

import "fmt"

// Attempt is one strategy's recorded verdict on a pair. The engine persists
// every attempt, abstentions included, so a decision trail explains each
// clustering move without re-running the chain.
type Attempt struct {
	Strategy string
	Outcome  Outcome
}

// ExecuteChain runs the strategies in order against one (item, candidate)
// pair. The first DUPLICATE or DISTINCT short-circuits; strategies after it
// never run. When every strategy abstains the chain itself yields DISTINCT
// so an all-abstain pair never merges by default.
func ExecuteChain(chain []Strategy, item, candidate Comparable) (Outcome, []Attempt, error) {
	attempts := make([]Attempt, 0, len(chain)+1)
	for _, strategy := range chain {
		outcome := strategy.Evaluate(item, candidate)
		if err := outcome.Validate(); err != nil {
			return Outcome{}, nil, fmt.Errorf("strategy %s: %w", strategy.Name(), err)
		}
		attempts = append(attempts, Attempt{Strategy: strategy.Name(), Outcome: outcome})
		if outcome.Status != StatusAbstain {
			return outcome, attempts, nil
		}
	}

	fallback := Distinct(ReasonNoStrategyMatch)
	attempts = append(attempts, Attempt{Strategy: StrategyChain, Outcome: fallback})
	return fallback, attempts, nil
}
