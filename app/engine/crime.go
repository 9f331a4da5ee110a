package engine

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
)

// CrimeSpec parameterizes one risk/payout action.
type CrimeSpec struct {
	Name        string
	SuccessRate float64
	PayoutMin   int
	PayoutMax   int
	Fine        int
	JailTime    int
}

// crimeTable: higher payouts come with worse odds and harsher consequences.
var crimeTable = map[string]CrimeSpec{
	"pickpocket": {Name: "pickpocket", SuccessRate: 0.65, PayoutMin: 20, PayoutMax: 60, Fine: 50, JailTime: 1},
	"burglary":   {Name: "burglary", SuccessRate: 0.45, PayoutMin: 80, PayoutMax: 200, Fine: 150, JailTime: 2},
	"heist":      {Name: "heist", SuccessRate: 0.25, PayoutMin: 250, PayoutMax: 600, Fine: 400, JailTime: 3},
}

// CrimeSystem resolves risk actions. Fines feed the community fund; a failed
// attempt also sends the player to jail.
type CrimeSystem struct {
	state  *models.GameState
	cfg    config.EngineConfig
	banker *Banker
	bus    *EventBus
	rng    *rand.Rand
	log    *logrus.Entry
}

func NewCrimeSystem(state *models.GameState, cfg config.EngineConfig, banker *Banker, bus *EventBus, rng *rand.Rand, log *logrus.Entry) *CrimeSystem {
	return &CrimeSystem{state: state, cfg: cfg, banker: banker, bus: bus, rng: rng, log: log}
}

// Attempt runs one crime. On success the bank pays out inside the configured
// band; on failure the player pays the fine into the community fund (as much
// of it as they hold) and goes to jail.
func (c *CrimeSystem) Attempt(playerID, crimeType string) (bool, int, error) {
	spec, ok := crimeTable[crimeType]
	if !ok {
		return false, 0, &ValidationError{Field: "crime_type", Reason: "unknown crime"}
	}
	p, ok := c.state.Players[playerID]
	if !ok {
		return false, 0, &ValidationError{Field: "player", Reason: "unknown player"}
	}
	if p.InJail {
		return false, 0, &StateConflictError{Reason: "already in jail"}
	}

	if c.rng.Float64() < spec.SuccessRate {
		payout := spec.PayoutMin
		if spread := spec.PayoutMax - spec.PayoutMin; spread > 0 {
			payout += c.rng.Intn(spread + 1)
		}
		if err := c.banker.CollectFromBank(playerID, payout, models.TxCrime, crimeType); err != nil {
			return false, 0, err
		}
		c.bus.Publish(CrimeCommitted{GameID: c.state.Id, PlayerID: playerID, Crime: crimeType, Success: true, Amount: payout})
		return true, payout, nil
	}

	fine := spec.Fine
	if fine > p.Cash {
		fine = p.Cash
	}
	if fine > 0 {
		if err := c.banker.PayToFund(playerID, fine, models.TxFine, crimeType); err != nil {
			return false, 0, err
		}
	}
	p.InJail = true
	p.JailTurns = spec.JailTime
	c.bus.Publish(CrimeCommitted{GameID: c.state.Id, PlayerID: playerID, Crime: crimeType, Success: false, Amount: fine})
	c.bus.Publish(PlayerJailed{GameID: c.state.Id, PlayerID: playerID, Reason: "caught: " + crimeType})
	c.log.WithFields(logrus.Fields{"player": playerID, "crime": crimeType}).Info("crime failed, player jailed")
	return false, fine, nil
}

// Crimes lists the available crime types (bots iterate this).
func Crimes() []CrimeSpec {
	out := make([]CrimeSpec, 0, len(crimeTable))
	for _, s := range crimeTable {
		out = append(out, s)
	}
	return out
}

// CrimeByName exposes one table row.
func CrimeByName(name string) (CrimeSpec, bool) {
	s, ok := crimeTable[name]
	return s, ok
}
