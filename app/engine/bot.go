package engine

import (
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
)

// strategyProfile tunes a bot's risk appetite. All thresholds act on the
// snapshot the bot took at the start of its decision cycle.
type strategyProfile struct {
	MinCashReserve int     // never spend below this
	BuyThreshold   float64 // minimum score to buy an offered property
	BidValueFactor float64 // fraction of appraised value it will bid up to
	MonopolyWeight float64 // score bonus for completing a color group
	LoanAversion   float64 // 0 = borrows freely, 1 = never borrows
	CrimeRate      float64 // chance per turn of attempting a crime
	TradeMargin    float64 // required value ratio to accept a trade
}

var strategyProfiles = map[models.BotStrategy]strategyProfile{
	models.StrategyConservative: {
		MinCashReserve: 400,
		BuyThreshold:   1.0,
		BidValueFactor: 0.85,
		MonopolyWeight: 0.5,
		LoanAversion:   0.9,
		CrimeRate:      0.0,
		TradeMargin:    1.20,
	},
	models.StrategyAggressive: {
		MinCashReserve: 100,
		BuyThreshold:   0.6,
		BidValueFactor: 1.15,
		MonopolyWeight: 0.8,
		LoanAversion:   0.2,
		CrimeRate:      0.15,
		TradeMargin:    1.05,
	},
	models.StrategyStrategic: {
		MinCashReserve: 250,
		BuyThreshold:   0.8,
		BidValueFactor: 1.0,
		MonopolyWeight: 1.2,
		LoanAversion:   0.5,
		CrimeRate:      0.05,
		TradeMargin:    1.10,
	},
}

// BotEngine drives every bot seat. It subscribes to the event bus and reacts
// to turn changes, auctions and trade offers by submitting the same action
// requests a human client would: through Apply, subject to every rule and
// token check.
type BotEngine struct {
	game *Game
	rng  *rand.Rand
	log  *logrus.Entry

	rmu  sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewBotEngine(game *Game, rng *rand.Rand, log *logrus.Entry) *BotEngine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BotEngine{
		game: game,
		rng:  rng,
		log:  log.WithField("component", "bots"),
		stop: make(chan struct{}),
	}
}

// Run consumes the event stream until Stop or the bus closes.
func (b *BotEngine) Run() {
	ch := b.game.Bus().Subscribe()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.stop:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				b.handle(ev)
			}
		}
	}()
}

func (b *BotEngine) Stop() {
	close(b.stop)
	b.wg.Wait()
}

func (b *BotEngine) handle(ev Event) {
	switch e := ev.(type) {
	case TurnAdvanced:
		snap := b.game.Snapshot()
		if p, ok := snap.Players[e.PlayerID]; ok && p.IsBot && !p.Bankrupt {
			b.playTurn(e.PlayerID)
		}
	case AuctionOpened:
		b.considerBids(e.AuctionID)
	case BidPlaced:
		b.considerBids(e.AuctionID)
	case TradeProposed:
		b.respondToTrade(e.TradeID)
	case TradeCountered:
		b.respondToTrade(e.TradeID)
	}
}

func (b *BotEngine) randFloat() float64 {
	b.rmu.Lock()
	defer b.rmu.Unlock()
	return b.rng.Float64()
}

func (b *BotEngine) submit(req ActionRequest) ActionResult {
	res := b.game.Apply(req)
	if !res.Accepted && res.Kind != KindStateConflict {
		b.log.WithFields(logrus.Fields{
			"actor":  req.ActorID,
			"action": req.Type,
			"reason": res.Message,
		}).Debug("bot action rejected")
	}
	return res
}

// playTurn walks one bot turn to completion: roll (again on doubles), answer
// the purchase offer, raise cash when a debt pends, do post actions, end the
// turn. Bounded so a rejected action can never spin forever.
func (b *BotEngine) playTurn(playerID string) {
	didPostActions := false
	for steps := 0; steps < 32; steps++ {
		snap := b.game.Snapshot()
		if !snap.Active || snap.CurrentPlayer != playerID {
			return
		}
		p := snap.Players[playerID]
		if p == nil || p.Bankrupt {
			return
		}
		prof := profileFor(p)
		token := snap.TurnToken

		if snap.PendingDebt != nil {
			if !b.raiseCash(snap, p, token) {
				return // nothing left to liquidate; bankruptcy already ran or will
			}
			continue
		}

		switch snap.TurnPhase {
		case models.PhaseAwaitingRoll:
			if p.InJail && p.Cash >= b.game.cfg.JailFine+prof.MinCashReserve {
				b.submit(ActionRequest{ActorID: playerID, TurnToken: token, Type: ActionPayJailFine})
			}
			if res := b.submit(ActionRequest{ActorID: playerID, TurnToken: token, Type: ActionRoll}); !res.Accepted {
				return
			}
		case models.PhaseResolvingSpace:
			if snap.PendingPurchase == "" {
				return
			}
			b.decidePurchase(snap, p, prof, token)
		case models.PhaseAwaitingPostAction:
			if !didPostActions {
				b.postActions(snap, p, prof, token)
				didPostActions = true
				continue
			}
			if res := b.submit(ActionRequest{ActorID: playerID, TurnToken: token, Type: ActionEndTurn}); !res.Accepted {
				return
			}
			didPostActions = false
		default:
			return
		}
	}
}

// appraise estimates what a property is worth to one player: base price,
// scaled by the economic phase and by how close it brings them to the group.
func appraise(snap *models.GameState, p *models.Player, prop *models.Property, prof strategyProfile) float64 {
	value := float64(prop.Price)
	switch snap.Economy.Phase {
	case models.EconRecession:
		value *= 1.10 // cheap market, relative bargain
	case models.EconBoom:
		value *= 0.90
	}
	if prop.Group != "" {
		total, mine := 0, 0
		for _, other := range snap.Properties {
			if other.Group != prop.Group || !other.Ownable() {
				continue
			}
			total++
			if other.Owner == p.Id {
				mine++
			}
		}
		if total > 0 && mine == total-1 {
			value *= 1 + prof.MonopolyWeight
		} else if mine > 0 {
			value *= 1 + 0.15*float64(mine)
		}
	}
	return value
}

func (b *BotEngine) decidePurchase(snap *models.GameState, p *models.Player, prof strategyProfile, token string) {
	prop := snap.Properties[snap.PendingPurchase]
	if prop == nil {
		b.submit(ActionRequest{ActorID: p.Id, TurnToken: token, Type: ActionDeclineBuy})
		return
	}
	price := prop.Price
	score := 0.0
	if p.Cash-price >= prof.MinCashReserve {
		score = appraise(snap, p, prop, prof) / float64(price)
	}
	if score >= prof.BuyThreshold {
		if res := b.submit(ActionRequest{ActorID: p.Id, TurnToken: token, Type: ActionBuyProperty}); res.Accepted {
			return
		}
	}
	b.submit(ActionRequest{ActorID: p.Id, TurnToken: token, Type: ActionDeclineBuy})
}

// raiseCash mortgages the least valuable eligible holding, then falls back to
// redeeming deposits and finally a loan if the strategy tolerates one.
// Returns false when no liquidation move is left.
func (b *BotEngine) raiseCash(snap *models.GameState, p *models.Player, token string) bool {
	var cheapest *models.Property
	for _, id := range p.Properties {
		prop := snap.Properties[id]
		if prop == nil || prop.Mortgaged || prop.DevelopmentLevel > 0 {
			continue
		}
		if cheapest == nil || prop.Price < cheapest.Price {
			cheapest = prop
		}
	}
	if cheapest != nil {
		return b.submit(ActionRequest{
			ActorID: p.Id, TurnToken: token, Type: ActionMortgage,
			Payload: ActionPayload{PropertyID: cheapest.Id},
		}).Accepted
	}
	for _, cd := range snap.Deposits {
		if cd.PlayerID == p.Id && cd.Status == models.LoanActive {
			return b.submit(ActionRequest{
				ActorID: p.Id, TurnToken: token, Type: ActionRedeemCD,
				Payload: ActionPayload{DepositID: cd.Id},
			}).Accepted
		}
	}
	if snap.PendingDebt != nil {
		need := snap.PendingDebt.Amount - p.Cash
		if need > 0 {
			return b.submit(ActionRequest{
				ActorID: p.Id, TurnToken: token, Type: ActionTakeLoan,
				Payload: ActionPayload{Amount: need, TermTurns: 10},
			}).Accepted
		}
	}
	return false
}

// postActions spends the post-action phase: repair, unmortgage, develop the
// strongest monopoly, occasionally propose a group-completing trade or try a
// crime, and park spare cash in a CD when very liquid.
func (b *BotEngine) postActions(snap *models.GameState, p *models.Player, prof strategyProfile, token string) {
	for _, id := range p.Properties {
		prop := snap.Properties[id]
		if prop == nil {
			continue
		}
		if prop.Damaged {
			cost := roundHalfUp(float64(prop.Price) * 0.2)
			if p.Cash-cost >= prof.MinCashReserve {
				b.submit(ActionRequest{ActorID: p.Id, TurnToken: token, Type: ActionRepair, Payload: ActionPayload{PropertyID: id}})
			}
		}
		if prop.Mortgaged {
			value := prop.Mortgage
			if value == 0 {
				value = prop.Price / 2
			}
			cost := roundHalfUp(float64(value) * 1.10)
			if p.Cash-cost >= prof.MinCashReserve*2 {
				b.submit(ActionRequest{ActorID: p.Id, TurnToken: token, Type: ActionUnmortgage, Payload: ActionPayload{PropertyID: id}})
			}
		}
	}

	b.developBest(snap, p, prof, token)

	if prof.MonopolyWeight >= 1.0 {
		b.proposeGroupTrade(snap, p, prof, token)
	}
	if prof.CrimeRate > 0 && b.randFloat() < prof.CrimeRate {
		b.submit(ActionRequest{ActorID: p.Id, TurnToken: token, Type: ActionCommitCrime, Payload: ActionPayload{CrimeType: "pickpocket"}})
	}
	if spare := p.Cash - prof.MinCashReserve*4; spare >= 200 && prof.LoanAversion >= 0.5 {
		b.submit(ActionRequest{ActorID: p.Id, TurnToken: token, Type: ActionOpenCD, Payload: ActionPayload{Amount: spare / 2, TermTurns: 8}})
	}
}

func (b *BotEngine) developBest(snap *models.GameState, p *models.Player, prof strategyProfile, token string) {
	var best *models.Property
	for _, id := range p.Properties {
		prop := snap.Properties[id]
		if prop == nil || !prop.Improvable() || prop.Mortgaged || prop.Damaged {
			continue
		}
		if !ownsGroupInSnapshot(snap, p.Id, prop.Group) {
			continue
		}
		if prop.DevelopmentLevel >= ZoningMax(prop.Group) {
			continue
		}
		if prop.DevelopmentLevel >= approvalGateLevel && !prop.Approved {
			continue
		}
		if p.Cash-prop.HouseCost < prof.MinCashReserve {
			continue
		}
		if best == nil || prop.Rent > best.Rent {
			best = prop
		}
	}
	if best != nil {
		b.submit(ActionRequest{
			ActorID: p.Id, TurnToken: token, Type: ActionDevelop,
			Payload: ActionPayload{PropertyID: best.Id, TargetLevel: best.DevelopmentLevel + 1},
		})
	}
}

func ownsGroupInSnapshot(snap *models.GameState, playerID, group string) bool {
	found := false
	for _, prop := range snap.Properties {
		if prop.Group != group || !prop.Ownable() || prop.Group == "" {
			continue
		}
		found = true
		if prop.Owner != playerID {
			return false
		}
	}
	return found
}

// proposeGroupTrade offers cash for the one property missing from a group the
// bot nearly holds.
func (b *BotEngine) proposeGroupTrade(snap *models.GameState, p *models.Player, prof strategyProfile, token string) {
	for _, prop := range snap.Properties {
		if prop.Type != models.SpaceProperty || prop.Group == "" || prop.Owner == "" || prop.Owner == p.Id {
			continue
		}
		if prop.Mortgaged || prop.DevelopmentLevel > 0 {
			continue
		}
		total, mine := 0, 0
		for _, other := range snap.Properties {
			if other.Group != prop.Group || !other.Ownable() {
				continue
			}
			total++
			if other.Owner == p.Id {
				mine++
			}
		}
		if total == 0 || mine != total-1 {
			continue
		}
		offer := roundHalfUp(float64(prop.Price) * 1.3)
		if p.Cash-offer < prof.MinCashReserve {
			continue
		}
		b.submit(ActionRequest{
			ActorID: p.Id, TurnToken: token, Type: ActionProposeTrade,
			Payload: ActionPayload{
				TargetID: prop.Owner,
				Offer:    models.TradeSide{Cash: offer},
				Request:  models.TradeSide{Properties: []string{prop.Id}},
			},
		})
		return
	}
}

// considerBids lets every bot weigh one more bid on a live auction. Each
// accepted bid re-triggers consideration through the BidPlaced event, so
// bidding wars terminate when the price crosses every bot's appraisal.
func (b *BotEngine) considerBids(auctionID string) {
	snap := b.game.Snapshot()
	a := snap.Auctions[auctionID]
	if a == nil || a.Status != models.AuctionOpen {
		return
	}
	prop := snap.Properties[a.PropertyID]
	if prop == nil {
		return
	}
	for _, id := range snap.Order {
		p := snap.Players[id]
		if p == nil || !p.IsBot || p.Bankrupt || a.HighBidder == id {
			continue
		}
		prof := profileFor(p)
		floor := a.StartPrice
		if a.HighBid > floor {
			floor = a.HighBid
		}
		next := floor + bidIncrement(a.StartPrice)
		limit := appraise(snap, p, prop, prof) * prof.BidValueFactor
		if float64(next) > limit {
			continue
		}
		if p.Cash-next < prof.MinCashReserve {
			continue
		}
		if b.submit(ActionRequest{
			ActorID: id, Type: ActionBid,
			Payload: ActionPayload{AuctionID: auctionID, Amount: next},
		}).Accepted {
			return // one bid per event; the next BidPlaced re-runs this
		}
	}
}

func bidIncrement(startPrice int) int {
	inc := startPrice / 10
	if inc < 5 {
		inc = 5
	}
	return inc
}

// respondToTrade scores an incoming offer for the awaited bot and accepts
// when the received value clears the strategy margin.
func (b *BotEngine) respondToTrade(tradeID string) {
	snap := b.game.Snapshot()
	t := snap.Trades[tradeID]
	if t == nil || !t.Open() {
		return
	}
	p := snap.Players[t.AwaitingFrom]
	if p == nil || !p.IsBot || p.Bankrupt {
		return
	}
	prof := profileFor(p)

	give, get := t.Request, t.Offer
	if t.AwaitingFrom == t.Initiator {
		give, get = t.Offer, t.Request
	}
	giveValue := float64(give.Cash)
	for _, id := range give.Properties {
		if prop := snap.Properties[id]; prop != nil {
			giveValue += appraise(snap, p, prop, prof)
		}
	}
	getValue := float64(get.Cash)
	for _, id := range get.Properties {
		if prop := snap.Properties[id]; prop != nil {
			getValue += appraise(snap, p, prop, prof)
		}
	}
	if giveValue == 0 || getValue >= giveValue*prof.TradeMargin {
		if give.Cash <= p.Cash {
			b.submit(ActionRequest{ActorID: p.Id, Type: ActionAcceptTrade, Payload: ActionPayload{TradeID: tradeID}})
			return
		}
	}
	b.submit(ActionRequest{ActorID: p.Id, Type: ActionRejectTrade, Payload: ActionPayload{TradeID: tradeID}})
}

func profileFor(p *models.Player) strategyProfile {
	if prof, ok := strategyProfiles[p.Strategy]; ok {
		return prof
	}
	return strategyProfiles[models.StrategyStrategic]
}
