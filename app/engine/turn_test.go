package engine

import (
	"math/rand"
	"testing"

	"github.com/propoly/backend/app/models"
)

func TestApplyRejectsStaleToken(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	res := g.Apply(ActionRequest{ActorID: "a", TurnToken: "old-token", Type: ActionRoll})
	if res.Accepted {
		t.Fatalf("stale token accepted")
	}
	if res.Kind != KindStateConflict {
		t.Fatalf("kind = %s, want state-conflict", res.Kind)
	}
	if g.state.TurnPhase != models.PhaseAwaitingRoll {
		t.Fatalf("rejected action changed the phase")
	}
}

func TestApplyRejectsOutOfTurnActor(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	res := g.Apply(ActionRequest{ActorID: "b", TurnToken: g.state.TurnToken, Type: ActionRoll})
	if res.Accepted {
		t.Fatalf("out-of-turn roll accepted")
	}
	res = g.Apply(ActionRequest{ActorID: "nobody", TurnToken: g.state.TurnToken, Type: ActionRoll})
	if res.Accepted || res.Kind != KindValidation {
		t.Fatalf("unknown actor not rejected with validation: %+v", res)
	}
}

// playOneTurn drives the current player through a full turn via Apply,
// declining any purchase offer, and returns once the turn has rotated.
func playOneTurn(t *testing.T, g *Game) {
	t.Helper()
	start := g.Snapshot().CurrentPlayer
	for i := 0; i < 30; i++ {
		snap := g.Snapshot()
		if !snap.Active || snap.CurrentPlayer != start {
			return
		}
		token := snap.TurnToken
		switch {
		case snap.PendingPurchase != "":
			mustAccept(t, g, start, token, ActionDeclineBuy, ActionPayload{})
		case snap.TurnPhase == models.PhaseAwaitingRoll:
			mustAccept(t, g, start, token, ActionRoll, ActionPayload{})
		case snap.TurnPhase == models.PhaseAwaitingPostAction:
			mustAccept(t, g, start, token, ActionEndTurn, ActionPayload{})
		default:
			t.Fatalf("stuck in phase %s", snap.TurnPhase)
		}
	}
	t.Fatalf("turn for %s never completed", start)
}

func TestFullTurnRotation(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	firstToken := g.state.TurnToken

	playOneTurn(t, g)

	snap := g.Snapshot()
	if snap.CurrentPlayer != "b" {
		t.Fatalf("turn did not rotate: current = %s", snap.CurrentPlayer)
	}
	if snap.TurnToken == firstToken {
		t.Fatalf("turn token not rotated")
	}
	if snap.TurnPhase != models.PhaseAwaitingRoll {
		t.Fatalf("new turn phase = %s", snap.TurnPhase)
	}
	if snap.Players["a"].HasRolled || snap.Players["a"].DoubleCount != 0 {
		t.Fatalf("per-turn flags not reset")
	}
}

func TestEndTurnRequiresRoll(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	res := g.Apply(ActionRequest{ActorID: "a", TurnToken: g.state.TurnToken, Type: ActionEndTurn})
	if res.Accepted {
		t.Fatalf("end-turn before rolling accepted")
	}
}

func TestSideActionsGatedToPostActionPhase(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	give(t, g, "a", "gamma")
	g.Start()
	// awaiting roll: side actions are premature
	res := g.Apply(ActionRequest{
		ActorID: "a", TurnToken: g.state.TurnToken, Type: ActionMortgage,
		Payload: ActionPayload{PropertyID: "gamma"},
	})
	if res.Accepted {
		t.Fatalf("side action accepted outside the post-action phase")
	}
}

func TestBuyPropertyViaApply(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	// stage the offer directly: player on alpha with the offer pending
	p := g.state.Players["a"]
	p.Position = 1
	p.HasRolled = true
	g.state.TurnPhase = models.PhaseResolvingSpace
	g.state.PendingPurchase = "alpha"

	res := mustAccept(t, g, "a", g.state.TurnToken, ActionBuyProperty, ActionPayload{})
	if g.state.Properties["alpha"].Owner != "a" {
		t.Fatalf("purchase did not assign ownership")
	}
	if p.Cash != 1440 {
		t.Fatalf("cash = %d, want 1440", p.Cash)
	}
	if g.state.PendingPurchase != "" {
		t.Fatalf("purchase offer not cleared")
	}
	if res.Delta == nil || res.Delta.TurnPhase != models.PhaseAwaitingPostAction {
		t.Fatalf("delta missing the phase change")
	}
}

func TestDeclineSendsPropertyToAuction(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	g.state.Players["a"].Position = 1
	g.state.Players["a"].HasRolled = true
	g.state.TurnPhase = models.PhaseResolvingSpace
	g.state.PendingPurchase = "alpha"

	mustAccept(t, g, "a", g.state.TurnToken, ActionDeclineBuy, ActionPayload{})

	var auction *models.Auction
	for _, a := range g.state.Auctions {
		if a.PropertyID == "alpha" {
			auction = a
		}
	}
	if auction == nil || auction.Status != models.AuctionOpen {
		t.Fatalf("decline did not open an auction")
	}
	if auction.StartPrice != 30 { // half the current price
		t.Fatalf("start price = %d, want 30", auction.StartPrice)
	}
}

func TestJailFinePath(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	p := g.state.Players["a"]
	p.InJail = true
	p.JailTurns = 3

	mustAccept(t, g, "a", g.state.TurnToken, ActionPayJailFine, ActionPayload{})
	if p.InJail || p.JailTurns != 0 {
		t.Fatalf("fine did not release the player")
	}
	if p.Cash != 1450 {
		t.Fatalf("cash = %d, want 1450", p.Cash)
	}
	if g.state.Fund.Balance != 50 {
		t.Fatalf("fine did not reach the community fund")
	}
	// paying again is a conflict
	res := g.Apply(ActionRequest{ActorID: "a", TurnToken: g.state.TurnToken, Type: ActionPayJailFine})
	if res.Accepted {
		t.Fatalf("paying the fine while free accepted")
	}
}

// sentenceRollSeed finds a seed whose first throw is not doubles and moves
// past the blue streets, so a served-sentence roll releases without a re-roll
// and the deferred move lands on an empty space.
func sentenceRollSeed(t *testing.T) (int64, int) {
	t.Helper()
	for seed := int64(1); seed < 1000; seed++ {
		r := rand.New(rand.NewSource(seed))
		d1, d2 := r.Intn(6)+1, r.Intn(6)+1
		if d1 != d2 && d1+d2 > 3 {
			return seed, d1 + d2
		}
	}
	t.Fatalf("no usable seed below 1000")
	return 0, 0
}

func TestJailReleaseFineHoldsMoveUntilSettled(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	seed, steps := sentenceRollSeed(t)
	g.rng = rand.New(rand.NewSource(seed))

	give(t, g, "a", "rail-a")
	p := g.state.Players["a"]
	p.InJail = true
	p.JailTurns = 1
	p.Position = 10
	p.Cash = 10

	mustAccept(t, g, "a", g.state.TurnToken, ActionRoll, ActionPayload{})

	if p.InJail {
		t.Fatalf("served sentence did not release the player")
	}
	d := g.state.PendingDebt
	if d == nil || d.To != models.AccountFund || d.Amount != 50 {
		t.Fatalf("release fine not held pending: %+v", d)
	}
	if p.Position != 10 {
		t.Fatalf("player moved to %d while the fine was unpaid", p.Position)
	}
	if res := g.Apply(ActionRequest{ActorID: "a", TurnToken: g.state.TurnToken, Type: ActionEndTurn}); res.Accepted {
		t.Fatalf("end-turn accepted with the fine unpaid")
	}

	// liquidation settles the fund obligation first, then the move runs
	mustAccept(t, g, "a", g.state.TurnToken, ActionMortgage, ActionPayload{PropertyID: "rail-a"})
	if g.state.PendingDebt != nil {
		t.Fatalf("fine still pending after liquidation")
	}
	if g.state.Fund.Balance != 50 {
		t.Fatalf("fund = %d, want the full fine", g.state.Fund.Balance)
	}
	if p.Position != 10+steps {
		t.Fatalf("deferred move landed on %d, want %d", p.Position, 10+steps)
	}
	if p.Cash != 10+100-50 {
		t.Fatalf("cash = %d after fine and mortgage", p.Cash)
	}
	if g.state.TurnPhase != models.PhaseAwaitingPostAction {
		t.Fatalf("phase = %s after the deferred move", g.state.TurnPhase)
	}
}

func TestJailReleaseInsolventResolvesBankruptcy(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	seed, _ := sentenceRollSeed(t)
	g.rng = rand.New(rand.NewSource(seed))

	p := g.state.Players["a"]
	p.InJail = true
	p.JailTurns = 1
	p.Cash = 10

	mustAccept(t, g, "a", g.state.TurnToken, ActionRoll, ActionPayload{})

	if !p.Bankrupt {
		t.Fatalf("unpayable release fine did not bankrupt the player")
	}
	if g.state.Active {
		t.Fatalf("game still active with one solvent player")
	}
	if g.state.Winner != "b" {
		t.Fatalf("winner = %q, want b", g.state.Winner)
	}
}

func TestSendToJailResetsDoubles(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	p := g.state.Players["a"]
	p.DoubleCount = 2
	g.turns.sendToJail(p, "three doubles")
	if !p.InJail || p.JailTurns != 3 || p.DoubleCount != 0 {
		t.Fatalf("jail state wrong: %+v", p)
	}
	if p.Position != 10 {
		t.Fatalf("player not moved to the jail space")
	}
}

func TestShortfallKeepsDebtPendingWhenLiquifiable(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	give(t, g, "a", "beta") // mortgage value 30
	p := g.state.Players["a"]
	p.Cash = 50

	// rent of 70 due: 50 cash + 60 property value covers it, so no bankruptcy
	g.turns.chargeToPlayer("a", "b", 70, models.TxRent, "beta")

	if p.Bankrupt {
		t.Fatalf("liquifiable player declared bankrupt")
	}
	if g.state.PendingDebt == nil || g.state.PendingDebt.Amount != 70 {
		t.Fatalf("debt not held pending: %+v", g.state.PendingDebt)
	}

	// ending the turn is blocked while the debt pends
	p.HasRolled = true
	g.state.TurnPhase = models.PhaseAwaitingPostAction
	if res := g.Apply(ActionRequest{ActorID: "a", TurnToken: g.state.TurnToken, Type: ActionEndTurn}); res.Accepted {
		t.Fatalf("end-turn accepted with pending debt")
	}

	// only liquidation actions pass; then the debt settles automatically
	mustAccept(t, g, "a", g.state.TurnToken, ActionMortgage, ActionPayload{PropertyID: "beta"})
	if g.state.PendingDebt != nil {
		t.Fatalf("debt not settled after liquidation")
	}
	if p.Cash != 50+30-70 {
		t.Fatalf("cash = %d after settlement", p.Cash)
	}
	if g.state.Players["b"].Cash != 1570 {
		t.Fatalf("creditor cash = %d, want 1570", g.state.Players["b"].Cash)
	}
}

func TestShortfallResolvesBankruptcyWhenInsolvent(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	p := g.state.Players["a"]
	p.Cash = 10

	g.turns.chargeToPlayer("a", "b", 500, models.TxRent, "gamma")

	if !p.Bankrupt {
		t.Fatalf("insolvent player not bankrupted")
	}
	if g.state.Players["b"].Cash != 1510 {
		t.Fatalf("creditor did not receive the remaining cash: %d", g.state.Players["b"].Cash)
	}
	if p.Cash != 1500 {
		t.Fatalf("bankrupt cash = %d, want the floor", p.Cash)
	}

	// the rent resolution path then ends the game for the last solvent player
	g.turns.finishResolve()
	if g.state.Active {
		t.Fatalf("game still active with one solvent player")
	}
	if g.state.Winner != "b" {
		t.Fatalf("winner = %q, want b", g.state.Winner)
	}
}

func TestBankruptcyCancelsTradesAndVoidsBids(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b", "c")
	g.Start()
	tr, err := g.trades.Propose("a", "c", models.TradeSide{Cash: 10}, models.TradeSide{})
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	auction, err := g.auctions.Start("alpha", 30)
	if err != nil {
		t.Fatalf("auction failed: %v", err)
	}
	if err := g.auctions.Bid(auction.Id, "a", 40); err != nil {
		t.Fatalf("bid failed: %v", err)
	}

	g.state.Players["a"].Cash = 5
	g.turns.chargeToPlayer("a", "b", 500, models.TxRent, "gamma")

	if !g.state.Players["a"].Bankrupt {
		t.Fatalf("player not bankrupted")
	}
	if tr.Open() {
		t.Fatalf("open trade survived the bankruptcy")
	}
	if auction.HighBidder == "a" || auction.HighBid != 0 {
		t.Fatalf("bankrupt player's standing bid survived: %+v", auction)
	}
	if auction.Status != models.AuctionOpen {
		t.Fatalf("auction itself should stay open for the others")
	}
}

func TestGameFreezesOnInvariantViolation(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	// corrupt the aggregate: holdings list names a property that is not there
	g.state.Players["a"].Properties = append(g.state.Players["a"].Properties, "no-such-property")
	g.state.Players["a"].Cash = 0
	g.turns.chargeToPlayer("a", "b", 500, models.TxRent, "gamma")

	if !g.Frozen() {
		t.Fatalf("invariant violation did not freeze the game")
	}
	res := g.Apply(ActionRequest{ActorID: "a", TurnToken: g.state.TurnToken, Type: ActionRoll})
	if res.Accepted {
		t.Fatalf("frozen game accepted an action")
	}
}

func TestCompleteRoundTicksRunOnWrap(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	g.Start()
	loan, err := g.banker.IssueLoan("a", 100, 5)
	if err != nil {
		t.Fatalf("loan failed: %v", err)
	}
	outstanding := loan.Outstanding

	playOneTurn(t, g) // a -> b
	if loan.Outstanding != outstanding {
		t.Fatalf("amortization ran before the round wrapped")
	}
	playOneTurn(t, g) // b -> a, wraps the table
	if loan.Outstanding >= outstanding {
		t.Fatalf("amortization did not run on the round wrap")
	}
}
