package models

import "time"

type TradeStatus string

const (
	TradeProposed  TradeStatus = "proposed"
	TradeCountered TradeStatus = "countered"
	TradeAccepted  TradeStatus = "accepted"
	TradeRejected  TradeStatus = "rejected"
	TradeExpired   TradeStatus = "expired"
	TradeCancelled TradeStatus = "cancelled"
)

// TradeSide is what one party puts on the table.
type TradeSide struct {
	Cash       int      `json:"cash"`
	Properties []string `json:"properties"`
}

func (s TradeSide) clone() TradeSide {
	s.Properties = append([]string(nil), s.Properties...)
	return s
}

// Trade is a two-party offer. A counter swaps the acting side and replaces
// both offers wholesale; acceptance settles atomically or not at all.
type Trade struct {
	Id        string      `json:"id"`
	Game_id   string      `json:"game_id"`
	Initiator string      `json:"initiator"`
	Recipient string      `json:"recipient"`
	Offer     TradeSide   `json:"offer"`   // initiator's side
	Request   TradeSide   `json:"request"` // recipient's side
	Status    TradeStatus `json:"status"`
	// AwaitingFrom is the player whose accept/reject/counter is pending.
	AwaitingFrom string    `json:"awaiting_from"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (t *Trade) Clone() *Trade {
	cp := *t
	cp.Offer = t.Offer.clone()
	cp.Request = t.Request.clone()
	return &cp
}

// Open reports whether the trade still awaits a response.
func (t *Trade) Open() bool {
	return t.Status == TradeProposed || t.Status == TradeCountered
}
