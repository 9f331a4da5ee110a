package engine

import (
	"math/rand"
	"testing"

	"github.com/propoly/backend/app/models"
)

func newBotFixture(t *testing.T, strategies ...models.BotStrategy) (*Game, *BotEngine) {
	t.Helper()
	ids := []string{"bot1", "bot2"}
	g, _, _ := newTestGame(t, ids...)
	for i, id := range ids {
		p := g.state.Players[id]
		p.IsBot = true
		if i < len(strategies) {
			p.Strategy = strategies[i]
		}
	}
	b := NewBotEngine(g, rand.New(rand.NewSource(11)), testLog())
	return g, b
}

func TestProfileForDefaultsToStrategic(t *testing.T) {
	p := &models.Player{Id: "x"}
	if got := profileFor(p); got != strategyProfiles[models.StrategyStrategic] {
		t.Fatalf("unknown strategy did not fall back to strategic")
	}
	p.Strategy = models.StrategyConservative
	if got := profileFor(p); got.MinCashReserve != 400 {
		t.Fatalf("conservative profile not applied")
	}
}

func TestAppraiseRewardsGroupCompletion(t *testing.T) {
	g, _ := newBotFixture(t)
	give(t, g, "bot1", "gamma", "delta") // one red missing
	snap := g.Snapshot()
	p := snap.Players["bot1"]
	prof := strategyProfiles[models.StrategyStrategic]

	missing := snap.Properties["epsilon"]
	unrelated := snap.Properties["omega"]
	completionValue := appraise(snap, p, missing, prof) / float64(missing.Price)
	baseValue := appraise(snap, p, unrelated, prof) / float64(unrelated.Price)
	if completionValue <= baseValue {
		t.Fatalf("group-completing property not valued higher: %v vs %v", completionValue, baseValue)
	}
}

func TestBotPlaysFullTurn(t *testing.T) {
	g, b := newBotFixture(t, models.StrategyConservative, models.StrategyConservative)
	g.Start()
	if g.state.CurrentPlayer != "bot1" {
		t.Fatalf("unexpected first player")
	}
	b.playTurn("bot1")
	snap := g.Snapshot()
	if snap.CurrentPlayer != "bot2" {
		t.Fatalf("bot did not complete its turn: current=%s phase=%s", snap.CurrentPlayer, snap.TurnPhase)
	}
}

func TestBotsBidWithinAppraisal(t *testing.T) {
	g, b := newBotFixture(t, models.StrategyAggressive, models.StrategyAggressive)
	g.Start()
	auction, err := g.auctions.Start("alpha", 30)
	if err != nil {
		t.Fatalf("auction failed: %v", err)
	}

	// each call is one consideration round, like one BidPlaced event arriving
	for i := 0; i < 100; i++ {
		before := auction.HighBid
		b.considerBids(auction.Id)
		if auction.HighBid == before {
			break // nobody wants to top it: the war terminated
		}
	}
	if auction.HighBidder == "" {
		t.Fatalf("no bot bid on a cheap property")
	}
	prof := strategyProfiles[models.StrategyAggressive]
	snap := g.Snapshot()
	limit := appraise(snap, snap.Players[auction.HighBidder], snap.Properties["alpha"], prof) * prof.BidValueFactor
	if float64(auction.HighBid) > limit {
		t.Fatalf("high bid %d exceeds the winner's appraisal limit %v", auction.HighBid, limit)
	}
}

func TestBotAcceptsFavorableTrade(t *testing.T) {
	g, b := newBotFixture(t, models.StrategyStrategic, models.StrategyStrategic)
	g.Start()
	give(t, g, "bot2", "alpha")

	// bot1 offers far more cash than alpha appraises at
	tr, err := g.trades.Propose("bot1", "bot2", models.TradeSide{Cash: 500}, models.TradeSide{Properties: []string{"alpha"}})
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	b.respondToTrade(tr.Id)
	if tr.Status != models.TradeAccepted {
		t.Fatalf("favorable trade not accepted: %s", tr.Status)
	}
	if g.state.Properties["alpha"].Owner != "bot1" {
		t.Fatalf("trade did not settle")
	}
}

func TestBotRejectsLopsidedTrade(t *testing.T) {
	g, b := newBotFixture(t, models.StrategyStrategic, models.StrategyStrategic)
	g.Start()
	give(t, g, "bot2", "sigma") // worth 400

	tr, err := g.trades.Propose("bot1", "bot2", models.TradeSide{Cash: 10}, models.TradeSide{Properties: []string{"sigma"}})
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	b.respondToTrade(tr.Id)
	if tr.Status != models.TradeRejected {
		t.Fatalf("lopsided trade not rejected: %s", tr.Status)
	}
	if g.state.Properties["sigma"].Owner != "bot2" {
		t.Fatalf("rejected trade moved property")
	}
}

func TestBotRaisesCashUnderDebt(t *testing.T) {
	g, b := newBotFixture(t, models.StrategyStrategic, models.StrategyStrategic)
	g.Start()
	give(t, g, "bot1", "rail-a") // mortgage value 100
	p := g.state.Players["bot1"]
	p.Cash = 20
	g.turns.chargeToPlayer("bot1", "bot2", 100, models.TxRent, "rail-b")
	if g.state.PendingDebt == nil {
		t.Fatalf("debt expected to pend")
	}

	snap := g.Snapshot()
	if !b.raiseCash(snap, snap.Players["bot1"], snap.TurnToken) {
		t.Fatalf("bot found no liquidation move")
	}
	if g.state.PendingDebt != nil {
		t.Fatalf("debt not settled after the bot mortgaged")
	}
	if !g.state.Properties["rail-a"].Mortgaged {
		t.Fatalf("bot did not mortgage its holding")
	}
}
