package engine

import (
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
)

// Banker is the financial ledger: money movement, credit products and
// bankruptcy. Every successful movement appends exactly one Transaction to
// the repository. The banker never allows a negative balance except on the
// bankruptcy evaluation path.
type Banker struct {
	state *models.GameState
	cfg   config.EngineConfig
	repo  Repository
	bus   *EventBus
	log   *logrus.Entry

	// valuer prices a property for bankruptcy math; wired to the property
	// engine's current-price computation at game construction.
	valuer func(*models.Property) int
}

func NewBanker(state *models.GameState, cfg config.EngineConfig, repo Repository, bus *EventBus, log *logrus.Entry) *Banker {
	return &Banker{
		state:  state,
		cfg:    cfg,
		repo:   repo,
		bus:    bus,
		log:    log,
		valuer: func(p *models.Property) int { return p.Price },
	}
}

// SetValuer overrides the property valuation used in bankruptcy math.
func (b *Banker) SetValuer(fn func(*models.Property) int) {
	b.valuer = fn
}

func (b *Banker) record(from, to string, amount int, typ models.TransactionType, ref string) {
	tx := &models.Transaction{
		Id:        uuid.NewV4().String(),
		Game_id:   b.state.Id,
		From:      from,
		To:        to,
		Amount:    amount,
		Type:      typ,
		Reference: ref,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.repo.AppendTransaction(tx); err != nil {
		b.log.WithError(err).Warn("transaction append failed")
	}
}

func (b *Banker) player(id string) (*models.Player, error) {
	p, ok := b.state.Players[id]
	if !ok {
		return nil, &ValidationError{Field: "player", Reason: "unknown player " + id}
	}
	return p, nil
}

// Transfer moves cash between two players. Fails with InsufficientFundsError
// rather than going negative.
func (b *Banker) Transfer(fromID, toID string, amount int, typ models.TransactionType, ref string) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	from, err := b.player(fromID)
	if err != nil {
		return err
	}
	to, err := b.player(toID)
	if err != nil {
		return err
	}
	if from.Cash < amount {
		return &InsufficientFundsError{PlayerID: fromID, Needed: amount, Available: from.Cash}
	}
	from.Cash -= amount
	to.Cash += amount
	b.record(fromID, toID, amount, typ, ref)
	return nil
}

// CollectFromBank credits a player from the bank's bottomless pocket.
func (b *Banker) CollectFromBank(playerID string, amount int, typ models.TransactionType, ref string) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	p, err := b.player(playerID)
	if err != nil {
		return err
	}
	p.Cash += amount
	b.record(models.AccountBank, playerID, amount, typ, ref)
	return nil
}

// PayToBank debits a player. Same no-negative rule as Transfer.
func (b *Banker) PayToBank(playerID string, amount int, typ models.TransactionType, ref string) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	p, err := b.player(playerID)
	if err != nil {
		return err
	}
	if p.Cash < amount {
		return &InsufficientFundsError{PlayerID: playerID, Needed: amount, Available: p.Cash}
	}
	p.Cash -= amount
	b.record(playerID, models.AccountBank, amount, typ, ref)
	return nil
}

// PayToFund routes taxes and fines into the community pool.
func (b *Banker) PayToFund(playerID string, amount int, typ models.TransactionType, ref string) error {
	p, err := b.player(playerID)
	if err != nil {
		return err
	}
	if p.Cash < amount {
		return &InsufficientFundsError{PlayerID: playerID, Needed: amount, Available: p.Cash}
	}
	p.Cash -= amount
	b.state.Fund.Balance += amount
	b.record(playerID, models.AccountFund, amount, typ, ref)
	return nil
}

// PayOutFund empties the community pool to a player (Free Parking variant).
func (b *Banker) PayOutFund(playerID string) (int, error) {
	p, err := b.player(playerID)
	if err != nil {
		return 0, err
	}
	amount := b.state.Fund.Balance
	if amount == 0 {
		return 0, nil
	}
	b.state.Fund.Balance = 0
	p.Cash += amount
	b.record(models.AccountFund, playerID, amount, models.TxFundPayout, "")
	return amount, nil
}

// creditRate bumps the base rate for weak credit scores. 700+ gets the base
// rate, each 50 points under that adds half a percent.
func (b *Banker) creditRate(base float64, score int) float64 {
	if score >= 700 {
		return base
	}
	steps := (700 - score + 49) / 50
	return base + float64(steps)*0.005
}

// IssueLoan grants an unsecured loan.
func (b *Banker) IssueLoan(playerID string, principal, termTurns int) (*models.Loan, error) {
	p, err := b.player(playerID)
	if err != nil {
		return nil, err
	}
	if principal <= 0 || termTurns <= 0 {
		return nil, &ValidationError{Field: "loan", Reason: "principal and term must be positive"}
	}
	rate := b.creditRate(b.cfg.LoanRateBase, p.CreditScore) + b.state.Economy.BaseInterest
	loan := &models.Loan{
		Id:          uuid.NewV4().String(),
		PlayerID:    playerID,
		Principal:   principal,
		Rate:        rate,
		TermTurns:   termTurns,
		Remaining:   termTurns,
		Outstanding: principal + roundHalfUp(float64(principal)*rate),
		Status:      models.LoanActive,
		CreatedAt:   time.Now().UTC(),
	}
	b.state.Loans[loan.Id] = loan
	p.Cash += principal
	b.record(models.AccountBank, playerID, principal, models.TxLoanOut, loan.Id)
	b.bus.Publish(LoanIssued{GameID: b.state.Id, PlayerID: playerID, LoanID: loan.Id, Principal: principal})
	return loan, nil
}

// IssueHELOC grants a loan collateralized by a specific unmortgaged property
// the player owns, capped at a ratio of its current value.
func (b *Banker) IssueHELOC(playerID, propertyID string, principal, termTurns int) (*models.Loan, error) {
	p, err := b.player(playerID)
	if err != nil {
		return nil, err
	}
	prop, ok := b.state.Properties[propertyID]
	if !ok {
		return nil, &ValidationError{Field: "property", Reason: "unknown property"}
	}
	if prop.Owner != playerID {
		return nil, &RuleViolationError{Rule: "heloc-ownership", Reason: "collateral must be owned by the borrower"}
	}
	if prop.Mortgaged {
		return nil, &RuleViolationError{Rule: "heloc-collateral", Reason: "mortgaged property cannot back a HELOC"}
	}
	for _, l := range b.state.Loans {
		if l.Status == models.LoanActive && l.PropertyID == propertyID {
			return nil, &RuleViolationError{Rule: "heloc-collateral", Reason: "property already backs an active HELOC"}
		}
	}
	max := roundHalfUp(float64(b.valuer(prop)) * b.cfg.HELOCMaxRatio)
	if principal <= 0 || principal > max {
		return nil, &ValidationError{Field: "principal", Reason: "must be positive and within the collateral limit"}
	}
	loan := &models.Loan{
		Id:          uuid.NewV4().String(),
		PlayerID:    playerID,
		PropertyID:  propertyID,
		Principal:   principal,
		Rate:        b.cfg.HELOCRate,
		TermTurns:   termTurns,
		Remaining:   termTurns,
		Outstanding: principal + roundHalfUp(float64(principal)*b.cfg.HELOCRate),
		Status:      models.LoanActive,
		CreatedAt:   time.Now().UTC(),
	}
	b.state.Loans[loan.Id] = loan
	p.Cash += principal
	b.record(models.AccountBank, playerID, principal, models.TxLoanOut, loan.Id)
	b.bus.Publish(LoanIssued{GameID: b.state.Id, PlayerID: playerID, LoanID: loan.Id, Principal: principal, HELOC: true})
	return loan, nil
}

// RepayLoan pays a loan down by amount, closing it when fully covered.
func (b *Banker) RepayLoan(playerID, loanID string, amount int) error {
	loan, ok := b.state.Loans[loanID]
	if !ok || loan.PlayerID != playerID {
		return &ValidationError{Field: "loan", Reason: "unknown loan"}
	}
	if loan.Status != models.LoanActive {
		return &StateConflictError{Reason: "loan is not active"}
	}
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if amount > loan.Outstanding {
		amount = loan.Outstanding
	}
	if err := b.PayToBank(playerID, amount, models.TxLoanPayment, loanID); err != nil {
		return err
	}
	loan.Outstanding -= amount
	if loan.Outstanding == 0 {
		loan.Status = models.LoanClosed
		b.bus.Publish(LoanClosed{GameID: b.state.Id, PlayerID: playerID, LoanID: loanID})
	}
	return nil
}

// AcceptDeposit opens a certificate of deposit.
func (b *Banker) AcceptDeposit(playerID string, principal, termTurns int) (*models.CertificateOfDeposit, error) {
	if principal <= 0 || termTurns <= 0 {
		return nil, &ValidationError{Field: "deposit", Reason: "principal and term must be positive"}
	}
	if err := b.PayToBank(playerID, principal, models.TxDeposit, ""); err != nil {
		return nil, err
	}
	cd := &models.CertificateOfDeposit{
		Id:        uuid.NewV4().String(),
		PlayerID:  playerID,
		Principal: principal,
		Rate:      b.cfg.CDRateBase + b.state.Economy.BaseInterest,
		TermTurns: termTurns,
		Remaining: termTurns,
		Status:    models.LoanActive,
		CreatedAt: time.Now().UTC(),
	}
	b.state.Deposits[cd.Id] = cd
	b.bus.Publish(DepositAccepted{GameID: b.state.Id, PlayerID: playerID, DepositID: cd.Id, Principal: principal})
	return cd, nil
}

// RedeemDeposit cashes out a CD. Before maturity only the principal comes
// back; at maturity principal plus accrued interest.
func (b *Banker) RedeemDeposit(playerID, depositID string) (int, error) {
	cd, ok := b.state.Deposits[depositID]
	if !ok || cd.PlayerID != playerID {
		return 0, &ValidationError{Field: "deposit", Reason: "unknown deposit"}
	}
	if cd.Status != models.LoanActive {
		return 0, &StateConflictError{Reason: "deposit is not active"}
	}
	early := cd.Remaining > 0
	paid := cd.Principal
	if !early {
		paid += cd.Accrued
	}
	cd.Status = models.LoanClosed
	if err := b.CollectFromBank(playerID, paid, models.TxRedemption, depositID); err != nil {
		return 0, err
	}
	b.bus.Publish(DepositRedeemed{GameID: b.state.Id, PlayerID: playerID, DepositID: depositID, Paid: paid, Early: early})
	return paid, nil
}

// TickAmortization runs once per completed turn cycle: every active loan owes
// one installment, every active CD accrues one slice of interest and matured
// CDs pay out. A missed installment dents the borrower's credit score and
// rolls into the outstanding balance instead of defaulting immediately.
func (b *Banker) TickAmortization() {
	for _, loan := range b.state.Loans {
		if loan.Status != models.LoanActive {
			continue
		}
		installment := loan.Outstanding / loan.Remaining
		if installment*loan.Remaining < loan.Outstanding {
			installment++ // remainder lands on the early installments
		}
		p, err := b.player(loan.PlayerID)
		if err != nil {
			continue
		}
		if p.Bankrupt {
			continue
		}
		if err := b.PayToBank(loan.PlayerID, installment, models.TxLoanPayment, loan.Id); err != nil {
			p.CreditScore -= 25
			loan.Outstanding += roundHalfUp(float64(loan.Outstanding) * loan.Rate / float64(loan.TermTurns))
			b.log.WithFields(logrus.Fields{"player": loan.PlayerID, "loan": loan.Id}).Info("missed loan installment")
			continue
		}
		loan.Outstanding -= installment
		loan.Remaining--
		if loan.Outstanding <= 0 {
			loan.Status = models.LoanClosed
			b.bus.Publish(LoanClosed{GameID: b.state.Id, PlayerID: loan.PlayerID, LoanID: loan.Id})
		} else if loan.Remaining == 0 {
			// term over with a balance left: one balloon attempt next tick
			loan.Remaining = 1
		}
	}
	for _, cd := range b.state.Deposits {
		if cd.Status != models.LoanActive {
			continue
		}
		cd.Accrued += roundHalfUp(float64(cd.Principal) * cd.Rate / float64(cd.TermTurns))
		if cd.Remaining > 0 {
			cd.Remaining--
		}
		if cd.Remaining == 0 {
			if _, err := b.RedeemDeposit(cd.PlayerID, cd.Id); err != nil {
				b.log.WithError(err).Warn("cd maturity payout failed")
			}
		}
	}
}

// Debt sums a player's outstanding obligations.
func (b *Banker) Debt(playerID string) int {
	total := 0
	for _, loan := range b.state.Loans {
		if loan.PlayerID == playerID && loan.Status == models.LoanActive {
			total += loan.Outstanding
		}
	}
	return total
}

// liquidAssets is cash plus the redeemable (principal) value of active CDs.
func (b *Banker) liquidAssets(p *models.Player) int {
	total := p.Cash
	for _, cd := range b.state.Deposits {
		if cd.PlayerID == p.Id && cd.Status == models.LoanActive {
			total += cd.Principal
		}
	}
	return total
}

// EvaluateBankruptcy applies the solvency test: liquid assets plus unmortgaged
// property value against outstanding debt plus any immediate obligation. This
// is the single code path where a transiently negative balance is tolerated.
func (b *Banker) EvaluateBankruptcy(playerID string, obligation int) (bool, error) {
	p, err := b.player(playerID)
	if err != nil {
		return false, err
	}
	assets := b.liquidAssets(p)
	for _, id := range p.Properties {
		prop, ok := b.state.Properties[id]
		if !ok {
			return false, &InternalInvariantError{Invariant: "ownership", Detail: "player holds unknown property " + id}
		}
		if !prop.Mortgaged {
			assets += b.valuer(prop)
		}
	}
	return assets < b.Debt(playerID)+obligation, nil
}

// ResolveBankruptcy liquidates the player. Properties go to the creditor when
// the debt is owed to another player, otherwise back to the bank for
// re-auction. Remaining debt is forgiven and cash resets to the floor. The
// caller (turn machine) commits auction/trade cancellations in the same
// mutation so observers see one atomic event.
func (b *Banker) ResolveBankruptcy(playerID, creditorID string) ([]string, error) {
	p, err := b.player(playerID)
	if err != nil {
		return nil, err
	}
	liquidated := append([]string(nil), p.Properties...)
	for _, id := range p.Properties {
		prop, ok := b.state.Properties[id]
		if !ok {
			continue
		}
		prop.Mortgaged = false
		prop.DevelopmentLevel = 0
		if creditorID != "" {
			prop.Owner = creditorID
			if c, ok := b.state.Players[creditorID]; ok {
				c.Properties = append(c.Properties, id)
			}
		} else {
			prop.Owner = ""
		}
	}
	p.Properties = nil
	for _, cd := range b.state.Deposits {
		if cd.PlayerID == playerID && cd.Status == models.LoanActive {
			cd.Status = models.LoanClosed
		}
	}
	for _, loan := range b.state.Loans {
		if loan.PlayerID == playerID && loan.Status == models.LoanActive {
			loan.Status = models.LoanDefaulted
			b.record(models.AccountBank, playerID, loan.Outstanding, models.TxWriteOff, loan.Id)
			loan.Outstanding = 0
			b.bus.Publish(LoanClosed{GameID: b.state.Id, PlayerID: playerID, LoanID: loan.Id, Defaulted: true})
		}
	}
	p.Bankrupt = true
	p.Cash = b.cfg.StartingCash
	p.CreditScore -= 150
	b.bus.Publish(BankruptcyDeclared{GameID: b.state.Id, PlayerID: playerID, CreditorID: creditorID, Liquidated: liquidated})
	b.log.WithFields(logrus.Fields{"player": playerID, "creditor": creditorID}).Info("bankruptcy resolved")
	return liquidated, nil
}
