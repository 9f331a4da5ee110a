package engine

import (
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
)

// TradeDesk runs the multi-party offer/counter/accept protocol. Offered
// properties are locked against auctions and other trades for the lifetime of
// the offer; acceptance settles every leg atomically or fails with no effect.
type TradeDesk struct {
	state  *models.GameState
	cfg    config.EngineConfig
	banker *Banker
	props  *PropertyEngine
	bus    *EventBus
	sched  Scheduler
	locks  *commitments
	log    *logrus.Entry

	timers map[string]TimerHandle
	post   func(ActionRequest)
}

func NewTradeDesk(state *models.GameState, cfg config.EngineConfig, banker *Banker, props *PropertyEngine, bus *EventBus, sched Scheduler, locks *commitments, log *logrus.Entry) *TradeDesk {
	return &TradeDesk{
		state:  state,
		cfg:    cfg,
		banker: banker,
		props:  props,
		bus:    bus,
		sched:  sched,
		locks:  locks,
		log:    log,
		timers: make(map[string]TimerHandle),
	}
}

func (d *TradeDesk) SetPoster(post func(ActionRequest)) { d.post = post }

// validateSide checks one party's offer against live state: every property
// owned, unmortgaged, undeveloped enough to move, and cash on hand.
func (d *TradeDesk) validateSide(playerID string, side models.TradeSide, tradeID string) error {
	p, ok := d.state.Players[playerID]
	if !ok {
		return &ValidationError{Field: "player", Reason: "unknown player " + playerID}
	}
	if p.Bankrupt {
		return &RuleViolationError{Rule: "trade-party", Reason: "bankrupt players cannot trade"}
	}
	if side.Cash < 0 {
		return &ValidationError{Field: "cash", Reason: "cannot be negative"}
	}
	if side.Cash > p.Cash {
		return &InsufficientFundsError{PlayerID: playerID, Needed: side.Cash, Available: p.Cash}
	}
	for _, propID := range side.Properties {
		prop, ok := d.state.Properties[propID]
		if !ok {
			return &ValidationError{Field: "property", Reason: "unknown property " + propID}
		}
		if prop.Owner != playerID {
			return &InsufficientAssetError{PlayerID: playerID, AssetID: propID, Reason: "not owned"}
		}
		if prop.Mortgaged {
			return &InsufficientAssetError{PlayerID: playerID, AssetID: propID, Reason: "mortgaged"}
		}
		if prop.DevelopmentLevel > 0 {
			return &InsufficientAssetError{PlayerID: playerID, AssetID: propID, Reason: "developed"}
		}
		if holder, locked := d.locks.Holder(propID); locked && holder != tradeID {
			return &StateConflictError{Reason: "property " + propID + " committed elsewhere"}
		}
	}
	return nil
}

func (d *TradeDesk) lockSides(t *models.Trade) {
	for _, id := range t.Offer.Properties {
		d.locks.Reserve(id, t.Id)
	}
	for _, id := range t.Request.Properties {
		d.locks.Reserve(id, t.Id)
	}
}

func (d *TradeDesk) unlockSides(t *models.Trade) {
	d.locks.ReleaseHolder(t.Id)
}

// Propose opens a trade from initiator to recipient.
func (d *TradeDesk) Propose(initiatorID, recipientID string, offer, request models.TradeSide) (*models.Trade, error) {
	if initiatorID == recipientID {
		return nil, &ValidationError{Field: "target_id", Reason: "cannot trade with yourself"}
	}
	if _, ok := d.state.Players[recipientID]; !ok {
		return nil, &ValidationError{Field: "target_id", Reason: "unknown recipient"}
	}
	t := &models.Trade{
		Id:           uuid.NewV4().String(),
		Game_id:      d.state.Id,
		Initiator:    initiatorID,
		Recipient:    recipientID,
		Offer:        offer,
		Request:      request,
		Status:       models.TradeProposed,
		AwaitingFrom: recipientID,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(d.cfg.TradeExpiry),
	}
	if err := d.validateSide(initiatorID, offer, t.Id); err != nil {
		return nil, err
	}
	if err := d.validateSide(recipientID, request, t.Id); err != nil {
		return nil, err
	}
	d.lockSides(t)
	d.state.Trades[t.Id] = t
	id := t.Id
	d.timers[t.Id] = d.sched.After(d.cfg.TradeExpiry, func() {
		d.post(ActionRequest{Type: actionTradeExpiry, Payload: ActionPayload{TradeID: id}})
	})
	d.bus.Publish(TradeProposed{GameID: d.state.Id, TradeID: t.Id, From: initiatorID, To: recipientID})
	return t, nil
}

func (d *TradeDesk) trade(tradeID string) (*models.Trade, error) {
	t, ok := d.state.Trades[tradeID]
	if !ok {
		return nil, &ValidationError{Field: "trade", Reason: "unknown trade"}
	}
	return t, nil
}

// Counter replaces the entire offer and hands the decision back to the other
// party. Only the player currently awaited may counter.
func (d *TradeDesk) Counter(playerID, tradeID string, offer, request models.TradeSide) error {
	t, err := d.trade(tradeID)
	if err != nil {
		return err
	}
	if !t.Open() {
		return &StateConflictError{Reason: "trade is not open"}
	}
	if t.AwaitingFrom != playerID {
		return &StateConflictError{Reason: "not your decision to make"}
	}
	// the counter is phrased from the initiator's perspective again
	d.unlockSides(t)
	t.Offer = offer
	t.Request = request
	if err := d.validateSide(t.Initiator, offer, t.Id); err != nil {
		d.lockSides(t)
		return err
	}
	if err := d.validateSide(t.Recipient, request, t.Id); err != nil {
		d.lockSides(t)
		return err
	}
	t.Status = models.TradeCountered
	if playerID == t.Recipient {
		t.AwaitingFrom = t.Initiator
	} else {
		t.AwaitingFrom = t.Recipient
	}
	d.lockSides(t)
	d.bus.Publish(TradeCountered{GameID: d.state.Id, TradeID: t.Id, By: playerID})
	return nil
}

// Accept settles the swap. Every leg is revalidated against live state first;
// any stale leg (property mortgaged since the offer, cash spent) fails the
// whole trade with no partial effects.
func (d *TradeDesk) Accept(playerID, tradeID string) error {
	t, err := d.trade(tradeID)
	if err != nil {
		return err
	}
	if !t.Open() {
		return &StateConflictError{Reason: "trade is not open"}
	}
	if t.AwaitingFrom != playerID {
		return &StateConflictError{Reason: "not your decision to make"}
	}
	if err := d.validateSide(t.Initiator, t.Offer, t.Id); err != nil {
		return err
	}
	if err := d.validateSide(t.Recipient, t.Request, t.Id); err != nil {
		return err
	}

	// both sides validated: transfers below cannot fail halfway
	if t.Offer.Cash > 0 {
		if err := d.banker.Transfer(t.Initiator, t.Recipient, t.Offer.Cash, models.TxTrade, t.Id); err != nil {
			return err
		}
	}
	if t.Request.Cash > 0 {
		if err := d.banker.Transfer(t.Recipient, t.Initiator, t.Request.Cash, models.TxTrade, t.Id); err != nil {
			return err
		}
	}
	for _, propID := range t.Offer.Properties {
		if err := d.props.TransferOwnership(propID, t.Initiator, t.Recipient); err != nil {
			return err
		}
	}
	for _, propID := range t.Request.Properties {
		if err := d.props.TransferOwnership(propID, t.Recipient, t.Initiator); err != nil {
			return err
		}
	}
	d.unlockSides(t)
	d.cancelTimer(t.Id)
	t.Status = models.TradeAccepted
	d.bus.Publish(TradeAccepted{GameID: d.state.Id, TradeID: t.Id})
	return nil
}

// Reject closes the trade without effect.
func (d *TradeDesk) Reject(playerID, tradeID string) error {
	t, err := d.trade(tradeID)
	if err != nil {
		return err
	}
	if !t.Open() {
		return &StateConflictError{Reason: "trade is not open"}
	}
	if t.AwaitingFrom != playerID {
		return &StateConflictError{Reason: "not your decision to make"}
	}
	d.close(t, models.TradeRejected)
	return nil
}

// CancelByInitiator withdraws an open offer.
func (d *TradeDesk) CancelByInitiator(playerID, tradeID string) error {
	t, err := d.trade(tradeID)
	if err != nil {
		return err
	}
	if !t.Open() {
		return &StateConflictError{Reason: "trade is not open"}
	}
	if t.Initiator != playerID {
		return &StateConflictError{Reason: "only the initiator may cancel"}
	}
	d.close(t, models.TradeCancelled)
	return nil
}

// Expire fires from the scheduler. No-op when the trade already closed.
func (d *TradeDesk) Expire(tradeID string) {
	t, err := d.trade(tradeID)
	if err != nil || !t.Open() {
		return
	}
	d.close(t, models.TradeExpired)
}

// CancelInvolving closes every open trade touching a player; called from the
// bankruptcy path so the cancellation commits atomically with liquidation.
func (d *TradeDesk) CancelInvolving(playerID string) {
	for _, t := range d.state.Trades {
		if t.Open() && (t.Initiator == playerID || t.Recipient == playerID) {
			d.close(t, models.TradeCancelled)
		}
	}
}

func (d *TradeDesk) close(t *models.Trade, status models.TradeStatus) {
	d.unlockSides(t)
	d.cancelTimer(t.Id)
	t.Status = status
	d.bus.Publish(TradeClosed{GameID: d.state.Id, TradeID: t.Id, Status: string(status)})
}

func (d *TradeDesk) cancelTimer(tradeID string) {
	if h, ok := d.timers[tradeID]; ok {
		d.sched.Cancel(h)
		delete(d.timers, tradeID)
	}
}
