package engine

import (
	"github.com/propoly/backend/app/models"
)

// Repository is the persistence boundary. The engine saves through it and
// never learns what storage sits behind; platform/repository wires Postgres
// and Redis in production, tests use MemRepository.
type Repository interface {
	Load(gameID string) (*models.GameState, error)
	Save(state *models.GameState) error
	AppendTransaction(tx *models.Transaction) error
	// Auctions persist as first-class entities so an in-flight auction
	// survives a process restart and its deadline can be re-armed.
	SaveAuction(a *models.Auction) error
}

// MemRepository keeps everything in memory. Used by tests and as a fallback
// when no database is configured.
type MemRepository struct {
	States       map[string]*models.GameState
	Transactions []*models.Transaction
	Auctions     map[string]*models.Auction
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		States:   make(map[string]*models.GameState),
		Auctions: make(map[string]*models.Auction),
	}
}

func (r *MemRepository) Load(gameID string) (*models.GameState, error) {
	st, ok := r.States[gameID]
	if !ok {
		return nil, &ValidationError{Field: "game_id", Reason: "unknown game"}
	}
	return st.Clone(), nil
}

func (r *MemRepository) Save(state *models.GameState) error {
	r.States[state.Id] = state.Clone()
	return nil
}

func (r *MemRepository) AppendTransaction(tx *models.Transaction) error {
	r.Transactions = append(r.Transactions, tx)
	return nil
}

func (r *MemRepository) SaveAuction(a *models.Auction) error {
	r.Auctions[a.Id] = a.Clone()
	return nil
}
