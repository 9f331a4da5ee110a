package engine

import (
	"sync"
	"time"

	"github.com/propoly/backend/app/models"
	"github.com/sirupsen/logrus"
)

// Event is one entry of the outbound append-only log. Every payload carries
// enough data for the transport layer to rebroadcast without querying the
// engine again.
type Event interface {
	EventType() string
}

type TurnAdvanced struct {
	GameID    string `json:"game_id"`
	PlayerID  string `json:"player_id"`
	TurnToken string `json:"turn_token"`
	TurnCount int    `json:"turn_count"`
}

func (TurnAdvanced) EventType() string { return "turn-advanced" }

type DiceRolled struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Dice     [2]int `json:"dice"`
	NewPos   int    `json:"new_pos"`
	Doubles  bool   `json:"doubles"`
}

func (DiceRolled) EventType() string { return "dice-rolled" }

type PropertyPurchased struct {
	GameID     string `json:"game_id"`
	PlayerID   string `json:"player_id"`
	PropertyID string `json:"property_id"`
	Price      int    `json:"price"`
}

func (PropertyPurchased) EventType() string { return "property-purchased" }

type PurchaseOffered struct {
	GameID     string `json:"game_id"`
	PlayerID   string `json:"player_id"`
	PropertyID string `json:"property_id"`
	Price      int    `json:"price"`
}

func (PurchaseOffered) EventType() string { return "purchase-offered" }

type RentPaid struct {
	GameID     string `json:"game_id"`
	PayerID    string `json:"payer_id"`
	OwnerID    string `json:"owner_id"`
	PropertyID string `json:"property_id"`
	Amount     int    `json:"amount"`
}

func (RentPaid) EventType() string { return "rent-paid" }

type TaxPaid struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Amount   int    `json:"amount"`
}

func (TaxPaid) EventType() string { return "tax-paid" }

type CardDrawn struct {
	GameID   string         `json:"game_id"`
	PlayerID string         `json:"player_id"`
	Deck     string         `json:"deck"`
	Card     models.Special `json:"card"`
}

func (CardDrawn) EventType() string { return "card-drawn" }

type PlayerJailed struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason"`
}

func (PlayerJailed) EventType() string { return "player-jailed" }

type PlayerFreed struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Paid     bool   `json:"paid"`
}

func (PlayerFreed) EventType() string { return "player-freed" }

type PropertyMortgaged struct {
	GameID     string `json:"game_id"`
	PlayerID   string `json:"player_id"`
	PropertyID string `json:"property_id"`
	Value      int    `json:"value"`
}

func (PropertyMortgaged) EventType() string { return "property-mortgaged" }

type PropertyUnmortgaged struct {
	GameID     string `json:"game_id"`
	PlayerID   string `json:"player_id"`
	PropertyID string `json:"property_id"`
	Cost       int    `json:"cost"`
}

func (PropertyUnmortgaged) EventType() string { return "property-unmortgaged" }

type PropertyDeveloped struct {
	GameID     string `json:"game_id"`
	PlayerID   string `json:"player_id"`
	PropertyID string `json:"property_id"`
	Level      int    `json:"level"`
	Cost       int    `json:"cost"`
}

func (PropertyDeveloped) EventType() string { return "property-developed" }

type PropertyDamaged struct {
	GameID     string `json:"game_id"`
	PropertyID string `json:"property_id"`
	Cause      string `json:"cause"`
}

func (PropertyDamaged) EventType() string { return "property-damaged" }

type PropertyRepaired struct {
	GameID     string `json:"game_id"`
	PropertyID string `json:"property_id"`
	Cost       int    `json:"cost"`
}

func (PropertyRepaired) EventType() string { return "property-repaired" }

type LoanIssued struct {
	GameID    string `json:"game_id"`
	PlayerID  string `json:"player_id"`
	LoanID    string `json:"loan_id"`
	Principal int    `json:"principal"`
	HELOC     bool   `json:"heloc"`
}

func (LoanIssued) EventType() string { return "loan-issued" }

type LoanClosed struct {
	GameID    string `json:"game_id"`
	PlayerID  string `json:"player_id"`
	LoanID    string `json:"loan_id"`
	Defaulted bool   `json:"defaulted"`
}

func (LoanClosed) EventType() string { return "loan-closed" }

type DepositAccepted struct {
	GameID    string `json:"game_id"`
	PlayerID  string `json:"player_id"`
	DepositID string `json:"deposit_id"`
	Principal int    `json:"principal"`
}

func (DepositAccepted) EventType() string { return "deposit-accepted" }

type DepositRedeemed struct {
	GameID    string `json:"game_id"`
	PlayerID  string `json:"player_id"`
	DepositID string `json:"deposit_id"`
	Paid      int    `json:"paid"`
	Early     bool   `json:"early"`
}

func (DepositRedeemed) EventType() string { return "deposit-redeemed" }

type AuctionOpened struct {
	GameID     string    `json:"game_id"`
	AuctionID  string    `json:"auction_id"`
	PropertyID string    `json:"property_id"`
	StartPrice int       `json:"start_price"`
	Deadline   time.Time `json:"deadline"`
}

func (AuctionOpened) EventType() string { return "auction-opened" }

type BidPlaced struct {
	GameID    string    `json:"game_id"`
	AuctionID string    `json:"auction_id"`
	PlayerID  string    `json:"player_id"`
	Amount    int       `json:"amount"`
	Deadline  time.Time `json:"deadline"` // post-extension
}

func (BidPlaced) EventType() string { return "bid-placed" }

type AuctionClosed struct {
	GameID     string `json:"game_id"`
	AuctionID  string `json:"auction_id"`
	PropertyID string `json:"property_id"`
	Sold       bool   `json:"sold"`
	WinnerID   string `json:"winner_id"`
	Price      int    `json:"price"`
	Cancelled  bool   `json:"cancelled"`
}

func (AuctionClosed) EventType() string { return "auction-closed" }

type TradeProposed struct {
	GameID  string `json:"game_id"`
	TradeID string `json:"trade_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

func (TradeProposed) EventType() string { return "trade-proposed" }

type TradeCountered struct {
	GameID  string `json:"game_id"`
	TradeID string `json:"trade_id"`
	By      string `json:"by"`
}

func (TradeCountered) EventType() string { return "trade-countered" }

type TradeAccepted struct {
	GameID  string `json:"game_id"`
	TradeID string `json:"trade_id"`
}

func (TradeAccepted) EventType() string { return "trade-accepted" }

type TradeClosed struct {
	GameID  string `json:"game_id"`
	TradeID string `json:"trade_id"`
	Status  string `json:"status"` // rejected / expired / cancelled
}

func (TradeClosed) EventType() string { return "trade-closed" }

type CrimeCommitted struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Crime    string `json:"crime"`
	Success  bool   `json:"success"`
	Amount   int    `json:"amount"` // payout on success, fine on failure
}

func (CrimeCommitted) EventType() string { return "crime-committed" }

type BankruptcyDeclared struct {
	GameID     string   `json:"game_id"`
	PlayerID   string   `json:"player_id"`
	CreditorID string   `json:"creditor_id"` // "" when the bank is the creditor
	Liquidated []string `json:"liquidated"`  // property ids
}

func (BankruptcyDeclared) EventType() string { return "bankruptcy-declared" }

type EconomicPhaseChanged struct {
	GameID string               `json:"game_id"`
	Phase  models.EconomicPhase `json:"phase"`
}

func (EconomicPhaseChanged) EventType() string { return "economic-phase-changed" }

type MarketEventTriggered struct {
	GameID      string  `json:"game_id"`
	Group       string  `json:"group"`
	Modifier    float64 `json:"modifier"`
	Rounds      int     `json:"rounds"`
	Description string  `json:"description"`
}

func (MarketEventTriggered) EventType() string { return "market-event-triggered" }

type MarketEventExpired struct {
	GameID string `json:"game_id"`
	Group  string `json:"group"`
}

func (MarketEventExpired) EventType() string { return "market-event-expired" }

type CommunityFundPaidOut struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Amount   int    `json:"amount"`
}

func (CommunityFundPaidOut) EventType() string { return "community-fund-paid-out" }

type GameEnded struct {
	GameID   string `json:"game_id"`
	WinnerID string `json:"winner_id"`
	Reason   string `json:"reason"`
}

func (GameEnded) EventType() string { return "game-ended" }

type GameFrozen struct {
	GameID string `json:"game_id"`
	Reason string `json:"reason"`
}

func (GameFrozen) EventType() string { return "game-frozen" }

// EventBus keeps the ordered event log and fans events out to subscribers.
// Publish runs inside the game's mutation path, so it must never block:
// subscriber channels are buffered and a full channel drops the event for
// that subscriber with a warning (the log itself is never lossy).
type EventBus struct {
	mu   sync.Mutex
	log  []Event
	subs []chan Event
	lg   *logrus.Entry
}

const subBuffer = 256

func NewEventBus(lg *logrus.Entry) *EventBus {
	return &EventBus{lg: lg}
}

// Subscribe returns a channel receiving every event published after the call.
func (b *EventBus) Subscribe() <-chan Event {
	ch := make(chan Event, subBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	b.log = append(b.log, ev)
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if b.lg != nil {
				b.lg.WithField("event", ev.EventType()).Warn("subscriber buffer full, event dropped")
			}
		}
	}
	b.mu.Unlock()
}

// Log returns a copy of the full ordered event log.
func (b *EventBus) Log() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.log...)
}

// Close closes every subscriber channel. Publish must not be called after.
func (b *EventBus) Close() {
	b.mu.Lock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
