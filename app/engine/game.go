package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
)

// Game hosts one running game instance. Every mutation (player action, bot
// decision, timer expiry) funnels through Apply under one mutex, so there is
// at most one concurrent mutation of the aggregate at any instant. Reads go
// through Snapshot, which deep-copies under the same mutex.
type Game struct {
	mu    sync.Mutex
	state *models.GameState
	cfg   config.EngineConfig
	repo  Repository
	sched Scheduler
	bus   *EventBus
	rng   *rand.Rand
	log   *logrus.Entry

	banker   *Banker
	props    *PropertyEngine
	econ     *CycleManager
	auctions *AuctionHouse
	trades   *TradeDesk
	crime    *CrimeSystem
	turns    *TurnMachine
	locks    *commitments

	chests  []models.Special
	chances []models.Special

	frozen bool
}

// Deps carries the injected collaborators. Bus and Rng may be nil; defaults
// are created.
type Deps struct {
	Repo  Repository
	Sched Scheduler
	Bus   *EventBus
	Log   *logrus.Entry
	Rng   *rand.Rand
}

// NewGameState assembles the aggregate for a fresh game: seats in the given
// order, starting cash, the board's properties keyed by id, a normal economy
// and an empty community fund.
func NewGameState(gameID string, players []*models.Player, board []models.Property, cfg config.EngineConfig) *models.GameState {
	st := &models.GameState{
		Id:         gameID,
		Active:     true,
		TurnPhase:  models.PhaseAwaitingRoll,
		Players:    make(map[string]*models.Player),
		Properties: make(map[string]*models.Property),
		Loans:      make(map[string]*models.Loan),
		Deposits:   make(map[string]*models.CertificateOfDeposit),
		Auctions:   make(map[string]*models.Auction),
		Trades:     make(map[string]*models.Trade),
		Economy: &models.Economy{
			Phase:        models.EconNormal,
			Inflation:    0.02,
			BaseInterest: 0.03,
		},
		Fund:      &models.CommunityFund{},
		CreatedAt: time.Now().UTC(),
	}
	for _, p := range players {
		p.Game_id = gameID
		p.Cash = cfg.StartingCash
		if p.CreditScore == 0 {
			p.CreditScore = 700
		}
		st.Players[p.Id] = p
		st.Order = append(st.Order, p.Id)
	}
	for i := range board {
		prop := board[i].Clone()
		st.Properties[prop.Id] = prop
	}
	if len(st.Order) > 0 {
		st.CurrentPlayer = st.Order[0]
	}
	return st
}

func NewGame(state *models.GameState, chests, chances []models.Special, cfg config.EngineConfig, deps Deps) *Game {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("game", state.Id)
	bus := deps.Bus
	if bus == nil {
		bus = NewEventBus(log)
	}
	rng := deps.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	g := &Game{
		state:   state,
		cfg:     cfg,
		repo:    deps.Repo,
		sched:   deps.Sched,
		bus:     bus,
		rng:     rng,
		log:     log,
		locks:   newCommitments(),
		chests:  chests,
		chances: chances,
	}
	g.banker = NewBanker(state, cfg, deps.Repo, bus, log)
	g.econ = NewCycleManager(state, cfg, bus, rng, log)
	g.props = NewPropertyEngine(state, cfg, g.banker, g.econ, bus, g.locks, log)
	g.auctions = NewAuctionHouse(state, cfg, g.banker, g.props, bus, deps.Sched, deps.Repo, g.locks, log)
	g.trades = NewTradeDesk(state, cfg, g.banker, g.props, bus, deps.Sched, g.locks, log)
	g.crime = NewCrimeSystem(state, cfg, g.banker, bus, rng, log)
	g.turns = newTurnMachine(g)
	g.auctions.SetPoster(g.postInternal)
	g.trades.SetPoster(g.postInternal)
	return g
}

// Bus exposes the event log/fan-out for subscribers (sockets, bots).
func (g *Game) Bus() *EventBus { return g.bus }

// Start issues the first turn token and announces the first turn. For a
// reloaded game it also re-arms auction deadline timers.
func (g *Game) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.auctions.RearmTimers()
	if g.state.TurnToken == "" {
		g.turns.issueToken()
	}
	g.bus.Publish(TurnAdvanced{
		GameID:    g.state.Id,
		PlayerID:  g.state.CurrentPlayer,
		TurnToken: g.state.TurnToken,
		TurnCount: g.state.TurnCount,
	})
	g.save()
}

// Snapshot returns a consistent deep copy of the aggregate.
func (g *Game) Snapshot() *models.GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Clone()
}

// Apply is the single mutation path for client-submitted actions.
func (g *Game) Apply(req ActionRequest) ActionResult {
	return g.apply(req, false)
}

// postInternal feeds scheduler callbacks back into the serialized path.
func (g *Game) postInternal(req ActionRequest) {
	g.apply(req, true)
}

// sideActions may run during AwaitingPostAction.
var sideActions = map[ActionType]bool{
	ActionMortgage:        true,
	ActionUnmortgage:      true,
	ActionDevelop:         true,
	ActionRepair:          true,
	ActionRequestApproval: true,
	ActionCommissionStudy: true,
	ActionTakeLoan:        true,
	ActionRepayLoan:       true,
	ActionOpenCD:          true,
	ActionRedeemCD:        true,
	ActionTakeHELOC:       true,
	ActionProposeTrade:    true,
	ActionCancelTrade:     true,
	ActionCommitCrime:     true,
}

// liquidationActions are the cash-raising subset permitted while a forced
// charge is pending.
var liquidationActions = map[ActionType]bool{
	ActionMortgage:  true,
	ActionRedeemCD:  true,
	ActionTakeLoan:  true,
	ActionTakeHELOC: true,
}

// outOfTurnActions bypass the turn token: auctions and trade responses are
// open to every solvent player but still serialize through the mutex.
var outOfTurnActions = map[ActionType]bool{
	ActionBid:          true,
	ActionAcceptTrade:  true,
	ActionRejectTrade:  true,
	ActionCounterTrade: true,
}

func (g *Game) apply(req ActionRequest, internal bool) ActionResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return reject(&StateConflictError{Reason: "game frozen after invariant violation"})
	}
	if !g.state.Active {
		return reject(&StateConflictError{Reason: "game is not active"})
	}

	switch req.Type {
	case actionAuctionDeadline, actionTradeExpiry:
		if !internal {
			return reject(&ValidationError{Field: "action_type", Reason: "reserved action"})
		}
	default:
		if _, ok := g.state.Players[req.ActorID]; !ok {
			return reject(&ValidationError{Field: "actor_id", Reason: "unknown player"})
		}
		if !outOfTurnActions[req.Type] {
			if err := g.turns.checkTurn(req); err != nil {
				return reject(err)
			}
		}
		if sideActions[req.Type] {
			if g.state.PendingDebt != nil {
				if !liquidationActions[req.Type] {
					return reject(&StateConflictError{Reason: "settle the outstanding debt first"})
				}
			} else if g.state.TurnPhase != models.PhaseAwaitingPostAction {
				return reject(&StateConflictError{Reason: "side actions are limited to the post-action phase"})
			}
		}
	}

	err := g.dispatch(req, internal)
	if err != nil {
		if _, fatal := err.(*InternalInvariantError); fatal {
			g.fail(err)
		}
		return reject(err)
	}

	if sideActions[req.Type] {
		g.turns.trySettleDebt()
	}
	g.state.UpdatedAt = time.Now().UTC()
	g.save()
	return accept(g.buildDelta(req))
}

func (g *Game) dispatch(req ActionRequest, internal bool) error {
	pl := req.Payload
	switch req.Type {
	case ActionRoll:
		return g.turns.handleRoll()
	case ActionBuyProperty:
		return g.turns.handleBuy()
	case ActionDeclineBuy:
		return g.turns.handleDecline()
	case ActionEndTurn:
		return g.turns.handleEndTurn()
	case ActionPayJailFine:
		return g.turns.handlePayJailFine()

	case ActionMortgage:
		_, err := g.props.MortgageProperty(req.ActorID, pl.PropertyID)
		return err
	case ActionUnmortgage:
		_, err := g.props.UnmortgageProperty(req.ActorID, pl.PropertyID)
		return err
	case ActionDevelop:
		_, err := g.props.Develop(req.ActorID, pl.PropertyID, pl.TargetLevel)
		return err
	case ActionRepair:
		_, err := g.props.Repair(req.ActorID, pl.PropertyID)
		return err
	case ActionRequestApproval:
		return g.props.RequestApproval(req.ActorID, pl.PropertyID)
	case ActionCommissionStudy:
		return g.props.CommissionStudy(req.ActorID, pl.PropertyID)

	case ActionTakeLoan:
		_, err := g.banker.IssueLoan(req.ActorID, pl.Amount, pl.TermTurns)
		return err
	case ActionRepayLoan:
		return g.banker.RepayLoan(req.ActorID, pl.LoanID, pl.Amount)
	case ActionOpenCD:
		_, err := g.banker.AcceptDeposit(req.ActorID, pl.Amount, pl.TermTurns)
		return err
	case ActionRedeemCD:
		_, err := g.banker.RedeemDeposit(req.ActorID, pl.DepositID)
		return err
	case ActionTakeHELOC:
		_, err := g.banker.IssueHELOC(req.ActorID, pl.PropertyID, pl.Amount, pl.TermTurns)
		return err

	case ActionBid:
		return g.auctions.Bid(pl.AuctionID, req.ActorID, pl.Amount)

	case ActionProposeTrade:
		_, err := g.trades.Propose(req.ActorID, pl.TargetID, pl.Offer, pl.Request)
		return err
	case ActionCounterTrade:
		return g.trades.Counter(req.ActorID, pl.TradeID, pl.Offer, pl.Request)
	case ActionAcceptTrade:
		return g.trades.Accept(req.ActorID, pl.TradeID)
	case ActionRejectTrade:
		return g.trades.Reject(req.ActorID, pl.TradeID)
	case ActionCancelTrade:
		return g.trades.CancelByInitiator(req.ActorID, pl.TradeID)

	case ActionCommitCrime:
		_, _, err := g.crime.Attempt(req.ActorID, pl.CrimeType)
		return err

	case actionAuctionDeadline:
		return g.auctions.Close(pl.AuctionID)
	case actionTradeExpiry:
		g.trades.Expire(pl.TradeID)
		return nil
	}
	return &ValidationError{Field: "action_type", Reason: "unknown action"}
}

// buildDelta summarizes what the accepted action may have touched.
func (g *Game) buildDelta(req ActionRequest) *StateDelta {
	d := &StateDelta{
		TurnPhase:     g.state.TurnPhase,
		TurnToken:     g.state.TurnToken,
		CurrentPlayer: g.state.CurrentPlayer,
		Fund:          &models.CommunityFund{Balance: g.state.Fund.Balance},
	}
	if p, ok := g.state.Players[req.ActorID]; ok {
		d.Players = append(d.Players, p.Clone())
	}
	if cur, ok := g.state.Players[g.state.CurrentPlayer]; ok && g.state.CurrentPlayer != req.ActorID {
		d.Players = append(d.Players, cur.Clone())
	}
	if pid := req.Payload.PropertyID; pid != "" {
		if prop, ok := g.state.Properties[pid]; ok {
			d.Properties = append(d.Properties, prop.Clone())
		}
	}
	if aid := req.Payload.AuctionID; aid != "" {
		if a, ok := g.state.Auctions[aid]; ok {
			d.Auction = a.Clone()
		}
	}
	if tid := req.Payload.TradeID; tid != "" {
		if t, ok := g.state.Trades[tid]; ok {
			d.Trade = t.Clone()
		}
	}
	if g.state.Economy != nil {
		d.Economy = g.state.Economy.Clone()
	}
	return d
}

// fail freezes the instance: an internal invariant broke and continuing
// would compound the corruption.
func (g *Game) fail(err error) {
	if g.frozen {
		return
	}
	g.frozen = true
	g.log.WithError(err).Error("invariant violation, freezing game instance")
	g.bus.Publish(GameFrozen{GameID: g.state.Id, Reason: err.Error()})
}

// Frozen reports whether the instance hit an invariant violation.
func (g *Game) Frozen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frozen
}

func (g *Game) save() {
	if err := g.repo.Save(g.state); err != nil {
		g.log.WithError(err).Warn("state save failed")
	}
}
