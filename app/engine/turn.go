package engine

import (
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
)

// TurnMachine sequences whose action is legal when. It is the only writer of
// TurnPhase, TurnToken and CurrentPlayer, dispatches space resolution to the
// other services, and owns the bankruptcy-or-debt path for forced charges.
type TurnMachine struct {
	g *Game
	// afterResolve is where the phase goes once ResolvingSpace finishes:
	// AwaitingRoll when doubles earned another throw, else post-action.
	afterResolve models.TurnPhase
	// pendingMove holds a rolled move that may not execute until the debt
	// blocking it is settled.
	pendingMove int
}

func newTurnMachine(g *Game) *TurnMachine {
	return &TurnMachine{g: g, afterResolve: models.PhaseAwaitingPostAction}
}

func (tm *TurnMachine) state() *models.GameState { return tm.g.state }

// issueToken mints the opaque per-turn token.
func (tm *TurnMachine) issueToken() {
	tm.state().TurnToken = uuid.NewV4().String()
}

// checkTurn validates the actor and token for token-gated actions.
func (tm *TurnMachine) checkTurn(req ActionRequest) error {
	st := tm.state()
	if req.ActorID != st.CurrentPlayer {
		return &StateConflictError{Reason: "not your turn"}
	}
	if req.TurnToken != st.TurnToken {
		return &StaleTurnError{Got: req.TurnToken, Want: st.TurnToken}
	}
	return nil
}

func (tm *TurnMachine) currentPlayer() *models.Player {
	return tm.state().Players[tm.state().CurrentPlayer]
}

// handleRoll covers both the jail sub-state and the ordinary move.
func (tm *TurnMachine) handleRoll() error {
	st := tm.state()
	if st.TurnPhase != models.PhaseAwaitingRoll {
		return &StateConflictError{Reason: "not awaiting a roll"}
	}
	p := tm.currentPlayer()
	d1 := tm.g.rng.Intn(6) + 1
	d2 := tm.g.rng.Intn(6) + 1
	doubles := d1 == d2
	st.LastRoll = [2]int{d1, d2}

	if p.InJail {
		p.HasRolled = true
		if doubles {
			p.InJail = false
			p.JailTurns = 0
			tm.g.bus.Publish(PlayerFreed{GameID: st.Id, PlayerID: p.Id, Paid: false})
			// doubles from jail move you but never roll again
			tm.afterResolve = models.PhaseAwaitingPostAction
			tm.move(p, d1+d2)
			return nil
		}
		p.JailTurns--
		if p.JailTurns <= 0 {
			// sentence served: the fine is due before moving on
			p.InJail = false
			tm.g.bus.Publish(PlayerFreed{GameID: st.Id, PlayerID: p.Id, Paid: true})
			tm.chargeToFund(p.Id, tm.g.cfg.JailFine, models.TxFine, "jail-release")
			tm.afterResolve = models.PhaseAwaitingPostAction
			if p.Bankrupt {
				tm.advanceTurn()
				return nil
			}
			if st.PendingDebt != nil {
				// the fine pends; the move waits until it settles so the
				// fund obligation cannot be displaced by a rent shortfall
				tm.pendingMove = d1 + d2
				st.TurnPhase = models.PhaseResolvingSpace
				return nil
			}
			tm.move(p, d1+d2)
			return nil
		}
		tm.g.bus.Publish(DiceRolled{GameID: st.Id, PlayerID: p.Id, Dice: st.LastRoll, NewPos: p.Position, Doubles: doubles})
		st.TurnPhase = models.PhaseAwaitingPostAction
		return nil
	}

	if doubles {
		p.DoubleCount++
		if p.DoubleCount >= 3 {
			tm.g.bus.Publish(DiceRolled{GameID: st.Id, PlayerID: p.Id, Dice: st.LastRoll, NewPos: p.Position, Doubles: true})
			tm.sendToJail(p, "three doubles")
			p.HasRolled = true
			st.TurnPhase = models.PhaseAwaitingPostAction
			return nil
		}
		// extra throw earned: after the space resolves the phase loops back
		tm.afterResolve = models.PhaseAwaitingRoll
	} else {
		p.HasRolled = true
		tm.afterResolve = models.PhaseAwaitingPostAction
	}
	tm.move(p, d1+d2)
	return nil
}

// move advances the piece, pays the Go salary on a lap and resolves the
// landing space. Moving is transient: it always ends the same Apply call in
// ResolvingSpace or beyond.
func (tm *TurnMachine) move(p *models.Player, steps int) {
	st := tm.state()
	st.TurnPhase = models.PhaseMoving
	old := p.Position
	p.Position = (p.Position + steps) % tm.g.cfg.BoardSize
	if p.Position < old {
		if err := tm.g.banker.CollectFromBank(p.Id, tm.g.cfg.GoSalary, models.TxSalary, ""); err != nil {
			tm.g.log.WithError(err).Warn("go salary failed")
		}
	}
	tm.g.bus.Publish(DiceRolled{GameID: st.Id, PlayerID: p.Id, Dice: st.LastRoll, NewPos: p.Position, Doubles: st.LastRoll[0] == st.LastRoll[1]})
	st.TurnPhase = models.PhaseResolvingSpace
	tm.resolveSpace(p, 0)
}

// resolveSpace dispatches to exactly one space handler. depth guards the one
// card-driven re-resolution (a "move" card never chains another card).
func (tm *TurnMachine) resolveSpace(p *models.Player, depth int) {
	st := tm.state()
	prop := st.PropertyAt(p.Position)
	if prop == nil {
		tm.finishResolve()
		return
	}
	switch {
	case prop.Ownable() && prop.Owner == "":
		if _, locked := tm.g.locks.Holder(prop.Id); locked {
			// property mid-auction: nothing to offer
			tm.finishResolve()
			return
		}
		st.PendingPurchase = prop.Id
		tm.g.bus.Publish(PurchaseOffered{GameID: st.Id, PlayerID: p.Id, PropertyID: prop.Id, Price: tm.g.props.CurrentPrice(prop)})
		// stays in ResolvingSpace until buy-property / decline-buy
		return
	case prop.Ownable() && prop.Owner != p.Id:
		rent := tm.g.props.CalculateRent(prop)
		if rent > 0 {
			tm.chargeToPlayer(p.Id, prop.Owner, rent, models.TxRent, prop.Id)
			tm.g.bus.Publish(RentPaid{GameID: st.Id, PayerID: p.Id, OwnerID: prop.Owner, PropertyID: prop.Id, Amount: rent})
		}
	case prop.Type == models.SpaceTax:
		if prop.TaxAmount > 0 {
			tm.chargeToFund(p.Id, prop.TaxAmount, models.TxTax, prop.Id)
			tm.g.bus.Publish(TaxPaid{GameID: st.Id, PlayerID: p.Id, Amount: prop.TaxAmount})
		}
	case prop.Type == models.SpaceChest || prop.Type == models.SpaceChance:
		if depth == 0 {
			tm.drawCard(p, prop.Type)
		}
	case prop.Type == models.SpaceGoToJail:
		tm.sendToJail(p, "go-to-jail space")
		p.HasRolled = true
		tm.afterResolve = models.PhaseAwaitingPostAction
	case prop.Type == models.SpaceParking:
		if tm.g.cfg.FreeParkingPayout && st.Fund.Balance > 0 {
			amount, err := tm.g.banker.PayOutFund(p.Id)
			if err == nil && amount > 0 {
				tm.g.bus.Publish(CommunityFundPaidOut{GameID: st.Id, PlayerID: p.Id, Amount: amount})
			}
		}
	}
	tm.finishResolve()
}

// finishResolve leaves ResolvingSpace unless a debt holds the player there.
func (tm *TurnMachine) finishResolve() {
	st := tm.state()
	p := tm.currentPlayer()
	if p != nil && p.Bankrupt {
		// the charge bankrupted them; their turn is over
		tm.advanceTurn()
		return
	}
	if st.PendingDebt != nil {
		st.TurnPhase = models.PhaseResolvingSpace
		return
	}
	st.TurnPhase = tm.afterResolve
}

func (tm *TurnMachine) drawCard(p *models.Player, deck models.SpaceType) {
	cards := tm.g.chests
	if deck == models.SpaceChance {
		cards = tm.g.chances
	}
	if len(cards) == 0 {
		return
	}
	card := cards[tm.g.rng.Intn(len(cards))]
	tm.g.bus.Publish(CardDrawn{GameID: tm.state().Id, PlayerID: p.Id, Deck: string(deck), Card: card})
	switch card.Action {
	case "change":
		if card.Payload >= 0 {
			if err := tm.g.banker.CollectFromBank(p.Id, card.Payload, models.TxTransfer, "card"); err != nil {
				tm.g.log.WithError(err).Warn("card credit failed")
			}
		} else {
			tm.chargeToFund(p.Id, -card.Payload, models.TxFine, "card")
		}
	case "move":
		target := card.Payload % tm.g.cfg.BoardSize
		if target < p.Position {
			if err := tm.g.banker.CollectFromBank(p.Id, tm.g.cfg.GoSalary, models.TxSalary, "card"); err != nil {
				tm.g.log.WithError(err).Warn("go salary failed")
			}
		}
		p.Position = target
		tm.resolveSpace(p, 1)
	case "jail":
		tm.sendToJail(p, "card")
		p.HasRolled = true
		tm.afterResolve = models.PhaseAwaitingPostAction
	}
}

func (tm *TurnMachine) sendToJail(p *models.Player, reason string) {
	st := tm.state()
	p.InJail = true
	p.JailTurns = tm.g.cfg.MaxJailTurns
	p.DoubleCount = 0
	for _, prop := range st.Properties {
		if prop.Type == models.SpaceJail {
			p.Position = prop.Position
			break
		}
	}
	tm.g.bus.Publish(PlayerJailed{GameID: st.Id, PlayerID: p.Id, Reason: reason})
}

// chargeToPlayer forces a payment to another player, entering the bankruptcy
// path when the cash is not there.
func (tm *TurnMachine) chargeToPlayer(fromID, toID string, amount int, typ models.TransactionType, ref string) {
	err := tm.g.banker.Transfer(fromID, toID, amount, typ, ref)
	if err == nil {
		return
	}
	if _, ok := err.(*InsufficientFundsError); ok {
		tm.handleShortfall(fromID, toID, amount, typ, ref)
		return
	}
	tm.g.log.WithError(err).Warn("forced charge failed")
}

// chargeToFund is chargeToPlayer with the community fund as creditor.
func (tm *TurnMachine) chargeToFund(fromID string, amount int, typ models.TransactionType, ref string) {
	err := tm.g.banker.PayToFund(fromID, amount, typ, ref)
	if err == nil {
		return
	}
	if _, ok := err.(*InsufficientFundsError); ok {
		tm.handleShortfall(fromID, models.AccountFund, amount, typ, ref)
		return
	}
	tm.g.log.WithError(err).Warn("forced charge failed")
}

// handleShortfall is the single gateway into bankruptcy evaluation. A player
// who is merely illiquid keeps the debt pending and must liquidate through
// side actions before the turn may end; a player who is insolvent resolves
// bankruptcy immediately, with any open auctions and trades cancelled in the
// same mutation.
func (tm *TurnMachine) handleShortfall(fromID, toID string, amount int, typ models.TransactionType, ref string) {
	st := tm.state()
	bankrupt, err := tm.g.banker.EvaluateBankruptcy(fromID, amount)
	if err != nil {
		tm.g.fail(err)
		return
	}
	if !bankrupt {
		st.PendingDebt = &models.DebtObligation{To: toID, Amount: amount, Type: typ, Reference: ref}
		tm.g.log.WithFields(logrus.Fields{"player": fromID, "amount": amount}).Info("payment pending, liquidation required")
		return
	}

	// hand over whatever cash remains, then liquidate
	p := st.Players[fromID]
	creditor := ""
	if _, isPlayer := st.Players[toID]; isPlayer {
		creditor = toID
	}
	if p.Cash > 0 {
		if creditor != "" {
			if err := tm.g.banker.Transfer(fromID, creditor, p.Cash, typ, ref); err != nil {
				tm.g.log.WithError(err).Warn("partial payment failed")
			}
		} else if err := tm.g.banker.PayToBank(fromID, p.Cash, typ, ref); err != nil {
			tm.g.log.WithError(err).Warn("partial payment failed")
		}
	}
	tm.g.trades.CancelInvolving(fromID)
	for _, a := range st.Auctions {
		if a.Status == models.AuctionOpen && a.HighBidder == fromID {
			// their standing bid dies with them; restart the clock for others
			a.HighBidder = ""
			a.HighBid = 0
		}
	}
	if _, err := tm.g.banker.ResolveBankruptcy(fromID, creditor); err != nil {
		tm.g.fail(err)
	}
}

// trySettleDebt retries the pending obligation after a side action raised
// cash. Clears the hold as soon as the debt is covered.
func (tm *TurnMachine) trySettleDebt() {
	st := tm.state()
	d := st.PendingDebt
	if d == nil {
		return
	}
	p := tm.currentPlayer()
	if p == nil || p.Cash < d.Amount {
		return
	}
	var err error
	switch d.To {
	case models.AccountFund:
		err = tm.g.banker.PayToFund(p.Id, d.Amount, d.Type, d.Reference)
	case models.AccountBank:
		err = tm.g.banker.PayToBank(p.Id, d.Amount, d.Type, d.Reference)
	default:
		err = tm.g.banker.Transfer(p.Id, d.To, d.Amount, d.Type, d.Reference)
	}
	if err != nil {
		tm.g.log.WithError(err).Warn("debt settlement failed")
		return
	}
	if d.Type == models.TxRent {
		tm.g.bus.Publish(RentPaid{GameID: st.Id, PayerID: p.Id, OwnerID: d.To, PropertyID: d.Reference, Amount: d.Amount})
	}
	st.PendingDebt = nil
	if tm.pendingMove > 0 {
		steps := tm.pendingMove
		tm.pendingMove = 0
		tm.move(p, steps)
		return
	}
	if st.TurnPhase == models.PhaseResolvingSpace && st.PendingPurchase == "" {
		st.TurnPhase = tm.afterResolve
	}
}

// handleBuy accepts the standing purchase offer.
func (tm *TurnMachine) handleBuy() error {
	st := tm.state()
	if st.PendingPurchase == "" {
		return &StateConflictError{Reason: "no purchase offer pending"}
	}
	p := tm.currentPlayer()
	if _, err := tm.g.props.Purchase(p.Id, st.PendingPurchase); err != nil {
		return err
	}
	st.PendingPurchase = ""
	st.TurnPhase = tm.afterResolve
	return nil
}

// handleDecline refuses the offer and sends the property to auction at half
// its current price.
func (tm *TurnMachine) handleDecline() error {
	st := tm.state()
	if st.PendingPurchase == "" {
		return &StateConflictError{Reason: "no purchase offer pending"}
	}
	prop := st.Properties[st.PendingPurchase]
	start := tm.g.props.CurrentPrice(prop) / 2
	if start < 1 {
		start = 1
	}
	if _, err := tm.g.auctions.Start(prop.Id, start); err != nil {
		if !IsStateConflict(err) {
			return err
		}
	}
	st.PendingPurchase = ""
	st.TurnPhase = tm.afterResolve
	return nil
}

// handlePayJailFine buys out of jail before rolling.
func (tm *TurnMachine) handlePayJailFine() error {
	st := tm.state()
	p := tm.currentPlayer()
	if !p.InJail {
		return &StateConflictError{Reason: "not in jail"}
	}
	if st.TurnPhase != models.PhaseAwaitingRoll || p.HasRolled {
		return &StateConflictError{Reason: "can only pay before rolling"}
	}
	if err := tm.g.banker.PayToFund(p.Id, tm.g.cfg.JailFine, models.TxFine, "jail-fine"); err != nil {
		return err
	}
	p.InJail = false
	p.JailTurns = 0
	tm.g.bus.Publish(PlayerFreed{GameID: st.Id, PlayerID: p.Id, Paid: true})
	return nil
}

// handleEndTurn closes the turn and rotates to the next solvent player.
func (tm *TurnMachine) handleEndTurn() error {
	st := tm.state()
	p := tm.currentPlayer()
	if st.PendingPurchase != "" {
		return &StateConflictError{Reason: "respond to the purchase offer first"}
	}
	if st.PendingDebt != nil {
		return &StateConflictError{Reason: "outstanding debt must be settled first"}
	}
	if !p.HasRolled {
		return &StateConflictError{Reason: "roll the dice first"}
	}
	if st.TurnPhase != models.PhaseAwaitingPostAction {
		return &StateConflictError{Reason: "turn is not in its post-action phase"}
	}
	st.TurnPhase = models.PhaseTurnComplete
	tm.advanceTurn()
	return nil
}

// advanceTurn rotates CurrentPlayer through solvent players in seat order,
// running the once-per-round ticks whenever the rotation wraps the table.
func (tm *TurnMachine) advanceTurn() {
	st := tm.state()
	p := tm.currentPlayer()
	if p != nil {
		p.HasRolled = false
		p.DoubleCount = 0
	}
	tm.afterResolve = models.PhaseAwaitingPostAction
	tm.pendingMove = 0
	st.PendingPurchase = ""
	st.PendingDebt = nil

	solvent := st.SolventPlayers()
	if len(solvent) <= 1 {
		st.Active = false
		if len(solvent) == 1 {
			st.Winner = solvent[0]
		}
		tm.g.bus.Publish(GameEnded{GameID: st.Id, WinnerID: st.Winner, Reason: "last solvent player"})
		return
	}

	cur := -1
	for i, id := range st.Order {
		if id == st.CurrentPlayer {
			cur = i
			break
		}
	}
	if cur < 0 {
		tm.g.fail(&InternalInvariantError{Invariant: "current-player", Detail: "current player not in seat order"})
		return
	}
	wrapped := false
	next := ""
	for i := 1; i <= len(st.Order); i++ {
		idx := (cur + i) % len(st.Order)
		if idx <= cur {
			wrapped = true
		}
		cand := st.Order[idx]
		if pl, ok := st.Players[cand]; ok && !pl.Bankrupt {
			next = cand
			break
		}
	}
	if next == "" {
		tm.g.fail(&InternalInvariantError{Invariant: "rotation", Detail: "no solvent player found"})
		return
	}
	if wrapped {
		tm.completeRound()
	}

	st.TurnCount++
	st.CurrentPlayer = next
	st.TurnPhase = models.PhaseAwaitingRoll
	tm.issueToken()
	tm.g.bus.Publish(TurnAdvanced{GameID: st.Id, PlayerID: next, TurnToken: st.TurnToken, TurnCount: st.TurnCount})
}

// completeRound runs the per-round ticks: amortization, the economic cycle,
// and possibly a market event.
func (tm *TurnMachine) completeRound() {
	tm.g.banker.TickAmortization()
	tm.g.econ.TickEvents()
	tm.g.econ.AdvancePhase()
	tm.g.econ.TriggerEvent(tm.g.props.Groups())
}
