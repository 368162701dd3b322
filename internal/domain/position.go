package domain

// PositionSide is the direction of an open position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// TriggerablePosition is the in-memory projection of an open position that
// carries at least one of a stop-loss or take-profit level. It is a cache
// entry, not the authoritative position record: the durable store owns the
// full position, this engine only holds what trigger evaluation needs.
type TriggerablePosition struct {
	ID         string
	Symbol     string
	Side       PositionSide
	StopLoss   *float64
	TakeProfit *float64
	EntryPrice float64
	Size       float64
	OwnerID    string
	ContestID  string
	LastEvalMs int64 // Unix ms of the last evaluation, coarse CPU throttle
}

// Triggerable reports whether the position belongs in the trigger index at
// all. Positions with neither level set are removed on upsert.
func (p TriggerablePosition) Triggerable() bool {
	return p.StopLoss != nil || p.TakeProfit != nil
}

// EffectivePrice returns the price a close would execute at: closing a long
// sells at the bid, closing a short buys back at the ask.
func (p TriggerablePosition) EffectivePrice(bid, ask float64) float64 {
	if p.Side == SideLong {
		return bid
	}
	return ask
}
