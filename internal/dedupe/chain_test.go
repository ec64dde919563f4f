package dedupe

import (
	"errors"
	"testing"

	"horse.fit/collate/internal/normalize"
)

type stubStrategy struct {
	name    string
	outcome Outcome
	calls   *int
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Evaluate(_, _ Comparable) Outcome {
	if s.calls != nil {
		*s.calls++
	}
	return s.outcome
}

func TestExecuteChain_ShortCircuitsOnFirstDecision(t *testing.T) {
	t.Parallel()

	var laterCalls int
	chain := []Strategy{
		stubStrategy{name: "first", outcome: Abstain("first_abstained")},
		stubStrategy{name: "second", outcome: Duplicate(1, "second_matched")},
		stubStrategy{name: "third", outcome: Distinct("never_reached"), calls: &laterCalls},
	}

	outcome, attempts, err := ExecuteChain(chain, Comparable{ItemID: 1}, Comparable{ItemID: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusDuplicate || outcome.Reason != "second_matched" {
		t.Fatalf("unexpected outcome: %s/%s", outcome.Status, outcome.Reason)
	}
	if laterCalls != 0 {
		t.Fatalf("strategy after the decision ran %d times", laterCalls)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", len(attempts))
	}
	if attempts[0].Strategy != "first" || attempts[0].Outcome.Status != StatusAbstain {
		t.Fatalf("abstention was not recorded: %+v", attempts[0])
	}
}

func TestExecuteChain_AllAbstainYieldsDistinct(t *testing.T) {
	t.Parallel()

	chain := []Strategy{
		stubStrategy{name: "a", outcome: Abstain("reason_a")},
		stubStrategy{name: "b", outcome: Abstain("reason_b")},
	}

	outcome, attempts, err := ExecuteChain(chain, Comparable{ItemID: 1}, Comparable{ItemID: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusDistinct || outcome.Reason != ReasonNoStrategyMatch {
		t.Fatalf("expected DISTINCT/no_strategy_match, got %s/%s", outcome.Status, outcome.Reason)
	}
	last := attempts[len(attempts)-1]
	if last.Strategy != StrategyChain || last.Outcome.Reason != ReasonNoStrategyMatch {
		t.Fatalf("expected synthesized chain attempt, got %+v", last)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 2 abstentions plus the chain fallback, got %d attempts", len(attempts))
	}
}

func TestExecuteChain_ContractViolationFailsFast(t *testing.T) {
	t.Parallel()

	cases := []Outcome{
		{Status: "MAYBE", Reason: "r"},
		{Status: StatusDuplicate, Reason: ""},
	}
	for _, bad := range cases {
		chain := []Strategy{stubStrategy{name: "broken", outcome: bad}}
		_, _, err := ExecuteChain(chain, Comparable{ItemID: 1}, Comparable{ItemID: 2})
		if !errors.Is(err, ErrOutcomeContract) {
			t.Fatalf("expected ErrOutcomeContract for %+v, got %v", bad, err)
		}
	}
}

// Same canonical URL decides on the first strategy even when the titles would
// have scored low.
func TestExecuteChain_SameURLDifferentTitles(t *testing.T) {
	t.Parallel()

	chain, err := BuildChain(DefaultStrategyOrder(), DefaultSimilarityThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := urlComparable(1, "https://example.com/story?utm_medium=social", "Storm closes mountain passes", "body a")
	candidate := urlComparable(2, "https://example.com/story", "Live blog: weather chaos continues", "body b")

	outcome, attempts, err := ExecuteChain(chain, item, candidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusDuplicate || outcome.Reason != ReasonExactURLMatch {
		t.Fatalf("unexpected outcome: %s/%s", outcome.Status, outcome.Reason)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(attempts))
	}
}

// No URLs, edited bodies, near-identical titles: the first two strategies
// abstain and title similarity decides.
func TestExecuteChain_FallsThroughToTitles(t *testing.T) {
	t.Parallel()

	chain, err := BuildChain(DefaultStrategyOrder(), DefaultSimilarityThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := Comparable{
		ItemID:      1,
		Title:       "Parliament approves budget after marathon session",
		Body:        "The vote passed late on Tuesday.",
		ContentHash: normalize.ContentHash("Parliament approves budget after marathon session", "The vote passed late on Tuesday."),
	}
	candidate := Comparable{
		ItemID:      2,
		Title:       "Parliament approves budget after marathon session",
		Body:        "The vote passed late on Tuesday, officials said.",
		ContentHash: normalize.ContentHash("Parliament approves budget after marathon session", "The vote passed late on Tuesday, officials said."),
	}

	outcome, attempts, err := ExecuteChain(chain, item, candidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusDuplicate || outcome.Reason != ReasonTitleMatch {
		t.Fatalf("unexpected outcome: %s/%s", outcome.Status, outcome.Reason)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	if attempts[0].Outcome.Reason != ReasonURLMissingBoth {
		t.Fatalf("unexpected first abstention: %+v", attempts[0])
	}
	if attempts[1].Outcome.Reason != ReasonContentHashMismatch {
		t.Fatalf("unexpected second abstention: %+v", attempts[1])
	}
}
