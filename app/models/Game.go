package models

import "time"

// Game is the lobby row kept in Postgres while players gather. The live
// simulation state is GameState below.
type Game struct {
	Id     string
	Name   string
	Status string
	Type   string
}

type GameCreateDto struct {
	Name string
	Type string
}

type VerifyGameDto struct {
	Code    string
	User_id string
}

// TurnPhase is the turn state machine position for the current player.
type TurnPhase string

const (
	PhaseAwaitingRoll       TurnPhase = "awaiting-roll"
	PhaseMoving             TurnPhase = "moving"
	PhaseResolvingSpace     TurnPhase = "resolving-space"
	PhaseAwaitingPostAction TurnPhase = "awaiting-post-action"
	PhaseTurnComplete       TurnPhase = "turn-complete"
)

// EconomicPhase is the market-wide cycle position.
type EconomicPhase string

const (
	EconRecession EconomicPhase = "recession"
	EconNormal    EconomicPhase = "normal"
	EconGrowth    EconomicPhase = "growth"
	EconBoom      EconomicPhase = "boom"
)

// MarketEvent is a temporary percentage modifier on one property group. Base
// values are never rewritten (the modifier lives beside the group) so expiry
// restores the baseline exactly.
type MarketEvent struct {
	Group       string  `json:"group"`
	Modifier    float64 `json:"modifier"` // signed, e.g. -0.25 for a crash
	RoundsLeft  int     `json:"rounds_left"`
	Description string  `json:"description"`
}

// Economy is the serializable half of the economic cycle manager.
type Economy struct {
	Phase        EconomicPhase  `json:"phase"`
	PhaseRounds  int            `json:"phase_rounds"`
	Inflation    float64        `json:"inflation"`
	BaseInterest float64        `json:"base_interest"`
	Events       []*MarketEvent `json:"events"`
}

func (e *Economy) Clone() *Economy {
	cp := *e
	cp.Events = make([]*MarketEvent, len(e.Events))
	for i, ev := range e.Events {
		c := *ev
		cp.Events[i] = &c
	}
	return &cp
}

// CommunityFund is the shared pool fed by taxes and fines.
type CommunityFund struct {
	Balance int `json:"balance"`
}

// DebtObligation is an unpaid charge blocking the end of a turn. The player
// must raise the cash through side actions or go through bankruptcy.
type DebtObligation struct {
	To        string          `json:"to"` // player id, or bank/fund
	Amount    int             `json:"amount"`
	Type      TransactionType `json:"type"`
	Reference string          `json:"reference"`
}

// GameState is the aggregate root. All mutation goes through the turn state
// machine; everything here is plain data addressed by id.
type GameState struct {
	Id            string                           `json:"id"`
	Active        bool                             `json:"active"`
	CurrentPlayer string                           `json:"current_player"`
	TurnToken     string                           `json:"turn_token"`
	TurnPhase     TurnPhase                        `json:"turn_phase"`
	TurnCount     int                              `json:"turn_count"`
	Order         []string                         `json:"order"` // seat order, player ids
	Players       map[string]*Player               `json:"players"`
	Properties    map[string]*Property             `json:"properties"`
	Loans         map[string]*Loan                 `json:"loans"`
	Deposits      map[string]*CertificateOfDeposit `json:"deposits"`
	Auctions      map[string]*Auction              `json:"auctions"`
	Trades        map[string]*Trade                `json:"trades"`
	Economy       *Economy                         `json:"economy"`
	Fund          *CommunityFund                   `json:"fund"`
	LastRoll      [2]int                           `json:"last_roll"`
	// PendingPurchase holds the property id offered to the current player
	// while ResolvingSpace waits on buy/decline.
	PendingPurchase string          `json:"pending_purchase"`
	PendingDebt     *DebtObligation `json:"pending_debt"`
	Winner          string          `json:"winner"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PropertyAt finds the property occupying a board position.
func (g *GameState) PropertyAt(pos int) *Property {
	for _, p := range g.Properties {
		if p.Position == pos {
			return p
		}
	}
	return nil
}

// SolventPlayers returns the ids of players still in the game, in seat order.
func (g *GameState) SolventPlayers() []string {
	out := make([]string, 0, len(g.Order))
	for _, id := range g.Order {
		if p, ok := g.Players[id]; ok && !p.Bankrupt {
			out = append(out, id)
		}
	}
	return out
}

// Clone deep-copies the aggregate. Snapshots handed to bots and the broadcast
// path come from here so readers never observe a half-applied mutation.
func (g *GameState) Clone() *GameState {
	cp := *g
	cp.Order = append([]string(nil), g.Order...)
	cp.Players = make(map[string]*Player, len(g.Players))
	for id, p := range g.Players {
		cp.Players[id] = p.Clone()
	}
	cp.Properties = make(map[string]*Property, len(g.Properties))
	for id, p := range g.Properties {
		cp.Properties[id] = p.Clone()
	}
	cp.Loans = make(map[string]*Loan, len(g.Loans))
	for id, l := range g.Loans {
		c := *l
		cp.Loans[id] = &c
	}
	cp.Deposits = make(map[string]*CertificateOfDeposit, len(g.Deposits))
	for id, d := range g.Deposits {
		c := *d
		cp.Deposits[id] = &c
	}
	cp.Auctions = make(map[string]*Auction, len(g.Auctions))
	for id, a := range g.Auctions {
		cp.Auctions[id] = a.Clone()
	}
	cp.Trades = make(map[string]*Trade, len(g.Trades))
	for id, t := range g.Trades {
		cp.Trades[id] = t.Clone()
	}
	if g.Economy != nil {
		cp.Economy = g.Economy.Clone()
	}
	if g.Fund != nil {
		f := *g.Fund
		cp.Fund = &f
	}
	if g.PendingDebt != nil {
		d := *g.PendingDebt
		cp.PendingDebt = &d
	}
	return &cp
}
