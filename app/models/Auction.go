package models

import "time"

type AuctionStatus string

const (
	AuctionOpen      AuctionStatus = "open"
	AuctionSold      AuctionStatus = "sold"
	AuctionUnsold    AuctionStatus = "unsold"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Bid is one accepted bid in an auction's history.
type Bid struct {
	PlayerID string    `json:"player_id"`
	Amount   int       `json:"amount"`
	At       time.Time `json:"at"`
}

// Auction is a timed competitive sale of one bank-held property. At most one
// open auction may exist per property. Deadline extends on every accepted bid
// (anti-snipe) but never past HardCap.
type Auction struct {
	Id         string        `json:"id"`
	Game_id    string        `json:"game_id"`
	PropertyID string        `json:"property_id"`
	StartPrice int           `json:"start_price"`
	HighBid    int           `json:"high_bid"`
	HighBidder string        `json:"high_bidder"`
	Bids       []Bid         `json:"bids"`
	Status     AuctionStatus `json:"status"`
	OpenedAt   time.Time     `json:"opened_at"`
	Deadline   time.Time     `json:"deadline"`
	HardCap    time.Time     `json:"hard_cap"`
}

func (a *Auction) Clone() *Auction {
	cp := *a
	cp.Bids = append([]Bid(nil), a.Bids...)
	return &cp
}
