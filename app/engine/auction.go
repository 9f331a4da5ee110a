package engine

import (
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
)

// AuctionHouse runs timed competitive sales of bank-held properties. Deadline
// expiry arrives through the scheduler as a synthetic action on the game's
// serialized mutation path, so closing never races a bid.
type AuctionHouse struct {
	state  *models.GameState
	cfg    config.EngineConfig
	banker *Banker
	props  *PropertyEngine
	bus    *EventBus
	sched  Scheduler
	repo   Repository
	locks  *commitments
	log    *logrus.Entry

	timers map[string]TimerHandle
	now    func() time.Time
	// post funnels the deadline callback back into the game's Apply path.
	post func(ActionRequest)
}

func NewAuctionHouse(state *models.GameState, cfg config.EngineConfig, banker *Banker, props *PropertyEngine, bus *EventBus, sched Scheduler, repo Repository, locks *commitments, log *logrus.Entry) *AuctionHouse {
	return &AuctionHouse{
		state:  state,
		cfg:    cfg,
		banker: banker,
		props:  props,
		bus:    bus,
		sched:  sched,
		repo:   repo,
		locks:  locks,
		log:    log,
		timers: make(map[string]TimerHandle),
		now:    time.Now,
	}
}

// SetPoster wires the game's internal action funnel; must be called before
// any auction opens.
func (h *AuctionHouse) SetPoster(post func(ActionRequest)) { h.post = post }

// SetClock overrides the time source (tests).
func (h *AuctionHouse) SetClock(now func() time.Time) { h.now = now }

func (h *AuctionHouse) openFor(propertyID string) *models.Auction {
	for _, a := range h.state.Auctions {
		if a.PropertyID == propertyID && a.Status == models.AuctionOpen {
			return a
		}
	}
	return nil
}

// Start opens an auction on a bank-held property. At most one open auction
// per property; a second attempt fails with DuplicateAuctionError.
func (h *AuctionHouse) Start(propertyID string, startPrice int) (*models.Auction, error) {
	p, ok := h.state.Properties[propertyID]
	if !ok {
		return nil, &ValidationError{Field: "property", Reason: "unknown property"}
	}
	if !p.Ownable() {
		return nil, &RuleViolationError{Rule: "auction-space", Reason: "space cannot be owned"}
	}
	if p.Owner != "" {
		return nil, &StateConflictError{Reason: "property is not bank-held"}
	}
	if h.openFor(propertyID) != nil {
		return nil, &DuplicateAuctionError{PropertyID: propertyID}
	}
	if startPrice <= 0 {
		return nil, &ValidationError{Field: "start_price", Reason: "must be positive"}
	}
	now := h.now()
	a := &models.Auction{
		Id:         uuid.NewV4().String(),
		Game_id:    h.state.Id,
		PropertyID: propertyID,
		StartPrice: startPrice,
		Status:     models.AuctionOpen,
		OpenedAt:   now,
		Deadline:   now.Add(h.cfg.AuctionRunTime),
		HardCap:    now.Add(h.cfg.AuctionRunTime + h.cfg.AuctionHardCap),
	}
	if !h.locks.Reserve(propertyID, a.Id) {
		return nil, &StateConflictError{Reason: "property committed elsewhere"}
	}
	h.state.Auctions[a.Id] = a
	h.persist(a)
	h.armTimer(a)
	h.bus.Publish(AuctionOpened{GameID: h.state.Id, AuctionID: a.Id, PropertyID: propertyID, StartPrice: startPrice, Deadline: a.Deadline})
	return a, nil
}

func (h *AuctionHouse) armTimer(a *models.Auction) {
	if old, ok := h.timers[a.Id]; ok {
		h.sched.Cancel(old)
	}
	d := a.Deadline.Sub(h.now())
	if d < 0 {
		d = 0
	}
	id := a.Id
	h.timers[a.Id] = h.sched.After(d, func() {
		h.post(ActionRequest{Type: actionAuctionDeadline, Payload: ActionPayload{AuctionID: id}})
	})
}

// RearmTimers re-arms deadline timers for open auctions after a reload.
func (h *AuctionHouse) RearmTimers() {
	for _, a := range h.state.Auctions {
		if a.Status == models.AuctionOpen {
			h.locks.Reserve(a.PropertyID, a.Id)
			h.armTimer(a)
		}
	}
}

// Bid accepts a new high bid. The bid must beat the start price and every
// prior bid, and the bidder must be able to pay right now. An accepted bid
// guarantees at least the anti-snipe grace window remains, up to the hard cap.
func (h *AuctionHouse) Bid(auctionID, playerID string, amount int) error {
	a, ok := h.state.Auctions[auctionID]
	if !ok {
		return &ValidationError{Field: "auction", Reason: "unknown auction"}
	}
	if a.Status != models.AuctionOpen {
		return &StateConflictError{Reason: "auction is not open"}
	}
	p, ok := h.state.Players[playerID]
	if !ok {
		return &ValidationError{Field: "player", Reason: "unknown player"}
	}
	if p.Bankrupt {
		return &RuleViolationError{Rule: "auction-bidder", Reason: "bankrupt players cannot bid"}
	}
	floor := a.StartPrice
	if a.HighBid > floor {
		floor = a.HighBid
	}
	if amount <= floor {
		return &ValidationError{Field: "amount", Reason: "bid must exceed the current price"}
	}
	if p.Cash < amount {
		return &InsufficientFundsError{PlayerID: playerID, Needed: amount, Available: p.Cash}
	}
	a.HighBid = amount
	a.HighBidder = playerID
	a.Bids = append(a.Bids, models.Bid{PlayerID: playerID, Amount: amount, At: h.now()})

	// anti-snipe: top the clock back up to the grace window
	if min := h.now().Add(h.cfg.AntiSnipeGrace); a.Deadline.Before(min) {
		if min.After(a.HardCap) {
			min = a.HardCap
		}
		if min.After(a.Deadline) {
			a.Deadline = min
			h.armTimer(a)
		}
	}
	h.persist(a)
	h.bus.Publish(BidPlaced{GameID: h.state.Id, AuctionID: auctionID, PlayerID: playerID, Amount: amount, Deadline: a.Deadline})
	return nil
}

// Close settles an auction at its deadline. Idempotent: closing a closed
// auction is a no-op. With bids the winner pays and takes ownership; with
// none the property stays bank-held for a later purchase offer.
func (h *AuctionHouse) Close(auctionID string) error {
	a, ok := h.state.Auctions[auctionID]
	if !ok {
		return &ValidationError{Field: "auction", Reason: "unknown auction"}
	}
	if a.Status != models.AuctionOpen {
		return nil
	}
	if t, ok := h.timers[auctionID]; ok {
		h.sched.Cancel(t)
		delete(h.timers, auctionID)
	}
	h.locks.Release(a.PropertyID, a.Id)

	if a.HighBidder == "" {
		a.Status = models.AuctionUnsold
		h.persist(a)
		h.bus.Publish(AuctionClosed{GameID: h.state.Id, AuctionID: a.Id, PropertyID: a.PropertyID, Sold: false})
		return nil
	}

	if err := h.banker.PayToBank(a.HighBidder, a.HighBid, models.TxAuction, a.Id); err != nil {
		// winner can no longer pay (funds moved since the bid): void the sale
		h.log.WithFields(logrus.Fields{"auction": a.Id, "winner": a.HighBidder}).Warn("winning bidder cannot pay, auction voided")
		a.Status = models.AuctionUnsold
		h.persist(a)
		h.bus.Publish(AuctionClosed{GameID: h.state.Id, AuctionID: a.Id, PropertyID: a.PropertyID, Sold: false})
		return nil
	}
	if err := h.props.TransferOwnership(a.PropertyID, "", a.HighBidder); err != nil {
		return err
	}
	a.Status = models.AuctionSold
	h.persist(a)
	h.bus.Publish(AuctionClosed{GameID: h.state.Id, AuctionID: a.Id, PropertyID: a.PropertyID, Sold: true, WinnerID: a.HighBidder, Price: a.HighBid})
	return nil
}

// Cancel aborts an open auction (admin action or owner bankruptcy). The
// caller commits it in the same mutation as whatever caused it.
func (h *AuctionHouse) Cancel(auctionID string) error {
	a, ok := h.state.Auctions[auctionID]
	if !ok {
		return &ValidationError{Field: "auction", Reason: "unknown auction"}
	}
	if a.Status != models.AuctionOpen {
		return nil
	}
	if t, ok := h.timers[auctionID]; ok {
		h.sched.Cancel(t)
		delete(h.timers, auctionID)
	}
	h.locks.Release(a.PropertyID, a.Id)
	a.Status = models.AuctionCancelled
	h.persist(a)
	h.bus.Publish(AuctionClosed{GameID: h.state.Id, AuctionID: a.Id, PropertyID: a.PropertyID, Cancelled: true})
	return nil
}

func (h *AuctionHouse) persist(a *models.Auction) {
	if err := h.repo.SaveAuction(a); err != nil {
		h.log.WithError(err).Warn("auction persist failed")
	}
}
