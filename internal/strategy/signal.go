package strategy

// Signal is the aggregated recommendation for one bar.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"

	// Only recognised when ranking; the aggregator never emits them.
	SignalStrongBuy  Signal = "STRONG BUY"
	SignalStrongSell Signal = "STRONG SELL"
)

var priority = map[Signal]int{
	SignalStrongBuy:  5,
	SignalBuy:        4,
	SignalStrongSell: 3,
	SignalSell:       2,
	SignalHold:       1,
}

// Priority is the screening rank of a signal; unknown signals rank 0.
func (s Signal) Priority() int {
	return priority[s]
}

// Action is the direction of an order.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Vote is a single indicator's opinion.
type Vote string

const (
	VoteBuy     Vote = "buy"
	VoteSell    Vote = "sell"
	VoteNeutral Vote = "neutral"
)

// TieBreak selects how the majority compares against neutral votes.
type TieBreak string

const (
	// TieBreakInclusive: buy wins with buy > sell and buy >= neutral.
	TieBreakInclusive TieBreak = "inclusive"
	// TieBreakStrict: buy wins with buy > sell and buy > neutral.
	TieBreakStrict TieBreak = "strict"
)

// Valid reports whether t is a known mode.
func (t TieBreak) Valid() bool {
	return t == TieBreakInclusive || t == TieBreakStrict
}

func (t TieBreak) beats(votes, neutral int) bool {
	if t == TieBreakStrict {
		return votes > neutral
	}
	return votes >= neutral
}
