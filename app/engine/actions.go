package engine

import "github.com/propoly/backend/app/models"

// ActionType enumerates every request a client (human or bot) may submit.
type ActionType string

const (
	ActionRoll        ActionType = "roll"
	ActionBuyProperty ActionType = "buy-property"
	ActionDeclineBuy  ActionType = "decline-buy"
	ActionEndTurn     ActionType = "end-turn"
	ActionPayJailFine ActionType = "pay-jail-fine"

	ActionMortgage   ActionType = "mortgage"
	ActionUnmortgage ActionType = "unmortgage"
	ActionDevelop    ActionType = "develop"
	ActionRepair     ActionType = "repair"

	ActionRequestApproval ActionType = "request-approval"
	ActionCommissionStudy ActionType = "commission-study"

	ActionTakeLoan  ActionType = "take-loan"
	ActionRepayLoan ActionType = "repay-loan"
	ActionOpenCD    ActionType = "open-cd"
	ActionRedeemCD  ActionType = "redeem-cd"
	ActionTakeHELOC ActionType = "take-heloc"

	ActionBid ActionType = "bid"

	ActionProposeTrade ActionType = "propose-trade"
	ActionCounterTrade ActionType = "counter-trade"
	ActionAcceptTrade  ActionType = "accept-trade"
	ActionRejectTrade  ActionType = "reject-trade"
	ActionCancelTrade  ActionType = "cancel-trade"

	ActionCommitCrime ActionType = "commit-crime"

	// Internal actions posted by the scheduler; clients never submit these.
	actionAuctionDeadline ActionType = "auction-deadline"
	actionTradeExpiry     ActionType = "trade-expiry"
)

// ActionPayload carries the per-action parameters. Fields irrelevant to the
// action type stay zero.
type ActionPayload struct {
	PropertyID  string           `json:"property_id,omitempty"`
	Amount      int              `json:"amount,omitempty"`
	TargetLevel int              `json:"target_level,omitempty"`
	LoanID      string           `json:"loan_id,omitempty"`
	DepositID   string           `json:"deposit_id,omitempty"`
	TermTurns   int              `json:"term_turns,omitempty"`
	AuctionID   string           `json:"auction_id,omitempty"`
	TradeID     string           `json:"trade_id,omitempty"`
	TargetID    string           `json:"target_id,omitempty"` // trade recipient
	Offer       models.TradeSide `json:"offer,omitempty"`
	Request     models.TradeSide `json:"request,omitempty"`
	CrimeType   string           `json:"crime_type,omitempty"`
}

// ActionRequest is the single inbound contract: every mutation, from a human
// click to a bot decision to a timer firing, arrives as one of these.
type ActionRequest struct {
	ActorID   string        `json:"actor_id"`
	TurnToken string        `json:"turn_token"`
	Type      ActionType    `json:"action_type"`
	Payload   ActionPayload `json:"action_payload"`
}

// StateDelta is the broadcastable summary of what one accepted action changed.
type StateDelta struct {
	Players       []*models.Player      `json:"players,omitempty"`
	Properties    []*models.Property    `json:"properties,omitempty"`
	Auction       *models.Auction       `json:"auction,omitempty"`
	Trade         *models.Trade         `json:"trade,omitempty"`
	Economy       *models.Economy       `json:"economy,omitempty"`
	Fund          *models.CommunityFund `json:"fund,omitempty"`
	TurnPhase     models.TurnPhase      `json:"turn_phase,omitempty"`
	TurnToken     string                `json:"turn_token,omitempty"`
	CurrentPlayer string                `json:"current_player,omitempty"`
}

// ActionResult is the single outbound contract for a mutation attempt.
type ActionResult struct {
	Accepted bool        `json:"accepted"`
	Kind     ErrorKind   `json:"error,omitempty"`
	Message  string      `json:"message,omitempty"`
	Delta    *StateDelta `json:"state_delta,omitempty"`
	Err      error       `json:"-"`
}

func accept(delta *StateDelta) ActionResult {
	return ActionResult{Accepted: true, Delta: delta}
}

func reject(err error) ActionResult {
	return ActionResult{Accepted: false, Kind: KindOf(err), Message: err.Error(), Err: err}
}
