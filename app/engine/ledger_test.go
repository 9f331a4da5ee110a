package engine

import (
	"testing"

	"github.com/propoly/backend/app/models"
)

func TestTransferRefusesOverdraft(t *testing.T) {
	g, _, repo := newTestGame(t, "a", "b")
	err := g.banker.Transfer("a", "b", 2000, models.TxRent, "")
	if _, ok := err.(*InsufficientFundsError); !ok {
		t.Fatalf("want InsufficientFundsError, got %v", err)
	}
	if g.state.Players["a"].Cash != 1500 || g.state.Players["b"].Cash != 1500 {
		t.Fatalf("balances changed on a rejected transfer")
	}
	if len(repo.Transactions) != 0 {
		t.Fatalf("rejected transfer recorded a transaction")
	}
}

func TestTransferRecordsTransaction(t *testing.T) {
	g, _, repo := newTestGame(t, "a", "b")
	if err := g.banker.Transfer("a", "b", 300, models.TxRent, "alpha"); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if g.state.Players["a"].Cash != 1200 || g.state.Players["b"].Cash != 1800 {
		t.Fatalf("balances wrong after transfer: %d / %d", g.state.Players["a"].Cash, g.state.Players["b"].Cash)
	}
	if len(repo.Transactions) != 1 {
		t.Fatalf("want 1 transaction, got %d", len(repo.Transactions))
	}
	tx := repo.Transactions[0]
	if tx.From != "a" || tx.To != "b" || tx.Amount != 300 || tx.Type != models.TxRent || tx.Reference != "alpha" {
		t.Fatalf("transaction fields wrong: %+v", tx)
	}
}

func TestLoanRateUsesCreditScore(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	// base 0.10 + economy base interest 0.03, score 700 gets no surcharge
	loan, err := g.banker.IssueLoan("a", 100, 5)
	if err != nil {
		t.Fatalf("loan failed: %v", err)
	}
	if loan.Outstanding != 113 {
		t.Fatalf("outstanding = %d, want 113", loan.Outstanding)
	}
	if g.state.Players["a"].Cash != 1600 {
		t.Fatalf("principal not credited")
	}

	// 600 is two 50-point steps below 700: +1% on the rate
	g.state.Players["b"].CreditScore = 600
	loan2, err := g.banker.IssueLoan("b", 100, 5)
	if err != nil {
		t.Fatalf("loan failed: %v", err)
	}
	if loan2.Outstanding != 114 {
		t.Fatalf("outstanding = %d, want 114", loan2.Outstanding)
	}
}

func TestRepayLoanClosesAtZero(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	loan, err := g.banker.IssueLoan("a", 100, 5)
	if err != nil {
		t.Fatalf("loan failed: %v", err)
	}
	// overpayment clamps to the outstanding balance
	if err := g.banker.RepayLoan("a", loan.Id, 500); err != nil {
		t.Fatalf("repay failed: %v", err)
	}
	if loan.Outstanding != 0 || loan.Status != models.LoanClosed {
		t.Fatalf("loan not closed: outstanding=%d status=%s", loan.Outstanding, loan.Status)
	}
	if g.state.Players["a"].Cash != 1500+100-113 {
		t.Fatalf("cash = %d after full repayment", g.state.Players["a"].Cash)
	}
}

func TestCDEarlyRedemptionForfeitsInterest(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	cd, err := g.banker.AcceptDeposit("a", 100, 4)
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if g.state.Players["a"].Cash != 1400 {
		t.Fatalf("principal not debited")
	}
	g.banker.TickAmortization() // one slice of interest accrues
	if cd.Accrued == 0 {
		t.Fatalf("no interest accrued after a tick")
	}
	paid, err := g.banker.RedeemDeposit("a", cd.Id)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if paid != 100 {
		t.Fatalf("early redemption paid %d, want principal only", paid)
	}
	if cd.Status != models.LoanClosed {
		t.Fatalf("deposit still active after redemption")
	}
}

func TestCDMaturityPaysPrincipalPlusInterest(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	// rate 0.04 + base interest 0.03 = 0.07; 2 per tick on 100 over 4 turns
	if _, err := g.banker.AcceptDeposit("a", 100, 4); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		g.banker.TickAmortization()
	}
	if got := g.state.Players["a"].Cash; got != 1500-100+108 {
		t.Fatalf("cash after maturity = %d, want %d", got, 1500-100+108)
	}
}

func TestAmortizationMissedInstallmentDentsCredit(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	loan, err := g.banker.IssueLoan("a", 100, 5)
	if err != nil {
		t.Fatalf("loan failed: %v", err)
	}
	p := g.state.Players["a"]
	p.Cash = 0
	before := loan.Outstanding
	g.banker.TickAmortization()
	if p.CreditScore != 700-25 {
		t.Fatalf("credit score = %d after missed installment", p.CreditScore)
	}
	if loan.Outstanding <= before {
		t.Fatalf("missed interest did not roll into the balance")
	}
	if loan.Status != models.LoanActive {
		t.Fatalf("one missed installment must not default the loan")
	}
}

func TestHELOCRequiresCleanCollateral(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	give(t, g, "a", "gamma")

	if _, err := g.banker.IssueHELOC("b", "gamma", 50, 5); err == nil {
		t.Fatalf("HELOC against someone else's property must fail")
	}

	// cap is 80% of current value (220 in a normal economy)
	if _, err := g.banker.IssueHELOC("a", "gamma", 200, 5); err == nil {
		t.Fatalf("HELOC above the collateral cap must fail")
	}
	loan, err := g.banker.IssueHELOC("a", "gamma", 176, 5)
	if err != nil {
		t.Fatalf("HELOC at the cap failed: %v", err)
	}
	if loan.PropertyID != "gamma" {
		t.Fatalf("HELOC not linked to its collateral")
	}

	// one HELOC per property
	if _, err := g.banker.IssueHELOC("a", "gamma", 10, 5); err == nil {
		t.Fatalf("second HELOC on the same collateral must fail")
	}

	g.state.Properties["gamma"].Mortgaged = true
	g.state.Loans = map[string]*models.Loan{}
	if _, err := g.banker.IssueHELOC("a", "gamma", 50, 5); err == nil {
		t.Fatalf("HELOC against mortgaged collateral must fail")
	}
}

func TestBankruptcyEvaluationCountsPropertyValue(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	give(t, g, "a", "gamma") // worth 220
	p := g.state.Players["a"]
	p.Cash = 50

	bankrupt, err := g.banker.EvaluateBankruptcy("a", 200)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if bankrupt {
		t.Fatalf("50 cash + 220 property should cover 200")
	}

	bankrupt, err = g.banker.EvaluateBankruptcy("a", 500)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !bankrupt {
		t.Fatalf("270 in assets cannot cover 500")
	}
}

func TestResolveBankruptcyLiquidatesToCreditor(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	give(t, g, "a", "gamma", "delta")
	g.state.Properties["gamma"].Mortgaged = true
	g.state.Properties["delta"].DevelopmentLevel = 2
	loan, _ := g.banker.IssueLoan("a", 100, 5)
	cd, _ := g.banker.AcceptDeposit("a", 50, 4)

	liquidated, err := g.banker.ResolveBankruptcy("a", "b")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(liquidated) != 2 {
		t.Fatalf("liquidated %d properties, want 2", len(liquidated))
	}
	p := g.state.Players["a"]
	if !p.Bankrupt {
		t.Fatalf("player not marked bankrupt")
	}
	if p.Cash != 1500 {
		t.Fatalf("cash = %d, want the starting-cash floor", p.Cash)
	}
	if p.CreditScore != 700-150 {
		t.Fatalf("credit score = %d after bankruptcy", p.CreditScore)
	}
	if len(p.Properties) != 0 {
		t.Fatalf("bankrupt player still holds properties")
	}
	for _, id := range []string{"gamma", "delta"} {
		prop := g.state.Properties[id]
		if prop.Owner != "b" {
			t.Fatalf("property %s went to %q, want creditor", id, prop.Owner)
		}
		if prop.Mortgaged || prop.DevelopmentLevel != 0 {
			t.Fatalf("property %s not reset on transfer", id)
		}
	}
	if !g.state.Players["b"].OwnsProperty("gamma") {
		t.Fatalf("creditor holdings list not updated")
	}
	if loan.Status != models.LoanDefaulted || loan.Outstanding != 0 {
		t.Fatalf("loan not written off: %s / %d", loan.Status, loan.Outstanding)
	}
	if cd.Status != models.LoanClosed {
		t.Fatalf("deposit still active after bankruptcy")
	}
}

func TestResolveBankruptcyToBankReleasesProperties(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	give(t, g, "a", "gamma")
	if _, err := g.banker.ResolveBankruptcy("a", ""); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if owner := g.state.Properties["gamma"].Owner; owner != "" {
		t.Fatalf("property went to %q, want bank", owner)
	}
}

func TestFundPayout(t *testing.T) {
	g, _, _ := newTestGame(t, "a", "b")
	if err := g.banker.PayToFund("a", 120, models.TxTax, ""); err != nil {
		t.Fatalf("fund payment failed: %v", err)
	}
	if g.state.Fund.Balance != 120 {
		t.Fatalf("fund balance = %d", g.state.Fund.Balance)
	}
	amount, err := g.banker.PayOutFund("b")
	if err != nil || amount != 120 {
		t.Fatalf("payout = %d, %v", amount, err)
	}
	if g.state.Fund.Balance != 0 || g.state.Players["b"].Cash != 1620 {
		t.Fatalf("fund payout did not move the pool")
	}
}
