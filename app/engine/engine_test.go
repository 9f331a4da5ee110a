package engine

import (
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// testBoard is a compact board: two full color groups, two railroads, one
// utility, tax, jail and parking. Positions are sparse; empty positions
// resolve as no-ops.
func testBoard() []models.Property {
	return []models.Property{
		{Id: "go", Name: "Go", Type: models.SpaceGo, Position: 0},
		{Id: "alpha", Name: "Alpha Lane", Type: models.SpaceProperty, Group: "brown", Position: 1, Price: 60, Rent: 2, RentTiers: []int{10, 30, 90}, Mortgage: 30, HouseCost: 50},
		{Id: "beta", Name: "Beta Row", Type: models.SpaceProperty, Group: "brown", Position: 2, Price: 60, Rent: 4, RentTiers: []int{20, 60, 180}, Mortgage: 30, HouseCost: 50},
		{Id: "gamma", Name: "Gamma Ave", Type: models.SpaceProperty, Group: "red", Position: 3, Price: 220, Rent: 18, RentTiers: []int{90, 250, 700, 875}, Mortgage: 110, HouseCost: 150},
		{Id: "delta", Name: "Delta Cross", Type: models.SpaceProperty, Group: "red", Position: 4, Price: 220, Rent: 18, RentTiers: []int{90, 250, 700, 875}, Mortgage: 110, HouseCost: 150},
		{Id: "epsilon", Name: "Epsilon Sq", Type: models.SpaceProperty, Group: "red", Position: 5, Price: 240, Rent: 20, RentTiers: []int{100, 300, 750, 925}, Mortgage: 120, HouseCost: 150},
		{Id: "rail-a", Name: "North Rail", Type: models.SpaceRailroad, Position: 6, Price: 200, Rent: 25, Mortgage: 100},
		{Id: "rail-b", Name: "South Rail", Type: models.SpaceRailroad, Position: 7, Price: 200, Rent: 25, Mortgage: 100},
		{Id: "util-a", Name: "Power", Type: models.SpaceUtility, Position: 8, Price: 150, Rent: 28, Mortgage: 75},
		{Id: "tax", Name: "Tax", Type: models.SpaceTax, Position: 9, TaxAmount: 200},
		{Id: "jail", Name: "Jail", Type: models.SpaceJail, Position: 10},
		{Id: "parking", Name: "Parking", Type: models.SpaceParking, Position: 11},
		{Id: "omega", Name: "Omega Hts", Type: models.SpaceProperty, Group: "blue", Position: 12, Price: 350, Rent: 35, RentTiers: []int{175, 500, 1100, 1300, 1500}, Mortgage: 175, HouseCost: 200},
		{Id: "sigma", Name: "Sigma Pt", Type: models.SpaceProperty, Group: "blue", Position: 13, Price: 400, Rent: 50, RentTiers: []int{200, 600, 1400, 1700, 2000}, Mortgage: 200, HouseCost: 200},
	}
}

func newTestGame(t *testing.T, ids ...string) (*Game, *FakeScheduler, *MemRepository) {
	t.Helper()
	players := make([]*models.Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, &models.Player{Id: id, User_id: id, Username: id})
	}
	cfg := config.Default()
	state := NewGameState("test-game", players, testBoard(), cfg)
	sched := NewFakeScheduler()
	repo := NewMemRepository()
	g := NewGame(state, nil, nil, cfg, Deps{
		Repo:  repo,
		Sched: sched,
		Log:   testLog(),
		Rng:   rand.New(rand.NewSource(7)),
	})
	return g, sched, repo
}

// give hands a bank-held property to a player outside of any money movement.
func give(t *testing.T, g *Game, playerID string, propertyIDs ...string) {
	t.Helper()
	for _, id := range propertyIDs {
		prop, ok := g.state.Properties[id]
		if !ok {
			t.Fatalf("unknown test property %s", id)
		}
		if prop.Owner != "" {
			t.Fatalf("property %s already owned by %s", id, prop.Owner)
		}
		prop.Owner = playerID
		g.state.Players[playerID].Properties = append(g.state.Players[playerID].Properties, id)
	}
}

func mustAccept(t *testing.T, g *Game, actorID, token string, typ ActionType, pl ActionPayload) ActionResult {
	t.Helper()
	res := g.Apply(ActionRequest{ActorID: actorID, TurnToken: token, Type: typ, Payload: pl})
	if !res.Accepted {
		t.Fatalf("action %s by %s rejected: %s", typ, actorID, res.Message)
	}
	return res
}

func totalCash(g *Game) int {
	total := g.state.Fund.Balance
	for _, p := range g.state.Players {
		total += p.Cash
	}
	return total
}
