package domain

// TriggerReason says which level was crossed.
type TriggerReason string

const (
	ReasonTakeProfit TriggerReason = "take_profit"
	ReasonStopLoss   TriggerReason = "stop_loss"
)

// TriggerEvent records a detected TP/SL crossing for one position. It is
// ephemeral: it exists only between evaluation and close dispatch and is
// never persisted.
type TriggerEvent struct {
	PositionID   string
	Symbol       string
	CrossedPrice float64
	Reason       TriggerReason
	DetectedAtMs int64
}
