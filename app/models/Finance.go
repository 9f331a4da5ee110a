package models

import "time"

// LoanStatus covers loans, CDs and HELOCs alike.
type LoanStatus string

const (
	LoanActive    LoanStatus = "active"
	LoanClosed    LoanStatus = "closed"
	LoanDefaulted LoanStatus = "defaulted"
)

// Loan is an unsecured bank loan or, when PropertyID is set, a HELOC backed
// by that property. Amortized once per full turn cycle.
type Loan struct {
	Id         string     `json:"id"`
	PlayerID   string     `json:"player_id"`
	PropertyID string     `json:"property_id"` // non-empty for HELOCs
	Principal  int        `json:"principal"`
	Rate       float64    `json:"rate"`
	TermTurns  int        `json:"term_turns"`
	Remaining  int        `json:"remaining"` // turns left
	Outstanding int       `json:"outstanding"`
	Status     LoanStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CertificateOfDeposit locks cash with the bank for a term. Redeemable early
// at principal only (accrued interest is forfeit).
type CertificateOfDeposit struct {
	Id        string     `json:"id"`
	PlayerID  string     `json:"player_id"`
	Principal int        `json:"principal"`
	Rate      float64    `json:"rate"`
	TermTurns int        `json:"term_turns"`
	Remaining int        `json:"remaining"`
	Accrued   int        `json:"accrued"`
	Status    LoanStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// TransactionType labels a ledger entry.
type TransactionType string

const (
	TxTransfer    TransactionType = "transfer"
	TxPurchase    TransactionType = "purchase"
	TxRent        TransactionType = "rent"
	TxTax         TransactionType = "tax"
	TxSalary      TransactionType = "salary"
	TxMortgage    TransactionType = "mortgage"
	TxUnmortgage  TransactionType = "unmortgage"
	TxDevelopment TransactionType = "development"
	TxLoanOut     TransactionType = "loan-out"
	TxLoanPayment TransactionType = "loan-payment"
	TxDeposit     TransactionType = "cd-deposit"
	TxRedemption  TransactionType = "cd-redemption"
	TxAuction     TransactionType = "auction"
	TxTrade       TransactionType = "trade"
	TxFine        TransactionType = "fine"
	TxCrime       TransactionType = "crime-payout"
	TxFundPayout  TransactionType = "fund-payout"
	TxWriteOff    TransactionType = "write-off"
)

// Transaction is one immutable money movement. From/To are player ids, with
// "bank" and "fund" as the two reserved counterparties. Never mutated after
// creation; the audit trail for everything the banker does.
type Transaction struct {
	Id        string          `json:"id"`
	Game_id   string          `json:"game_id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    int             `json:"amount"`
	Type      TransactionType `json:"type"`
	Reference string          `json:"reference"` // property/loan/auction/trade id
	CreatedAt time.Time       `json:"created_at"`
}

// Reserved counterparty ids on Transaction records.
const (
	AccountBank = "bank"
	AccountFund = "fund"
)
