package engine

import (
	"math/rand"
	"testing"

	"github.com/propoly/backend/app/models"
)

func TestPhaseMultipliers(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	cases := map[models.EconomicPhase]float64{
		models.EconRecession: 0.80,
		models.EconNormal:    1.00,
		models.EconGrowth:    1.15,
		models.EconBoom:      1.30,
	}
	for phase, want := range cases {
		g.state.Economy.Phase = phase
		if got := g.econ.PhaseMultiplier(); got != want {
			t.Fatalf("multiplier for %s = %v, want %v", phase, got, want)
		}
	}
}

func TestDriftMovesTowardPhaseTargets(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	econ := g.state.Economy
	econ.Phase = models.EconBoom
	econ.Inflation = 0.0
	econ.BaseInterest = 0.0
	g.econ.drift()
	if econ.Inflation <= 0 || econ.Inflation > 0.05 {
		t.Fatalf("inflation drifted to %v, want a step toward 0.05", econ.Inflation)
	}
	if econ.BaseInterest <= 0 || econ.BaseInterest > 0.06 {
		t.Fatalf("base interest drifted to %v, want a step toward 0.06", econ.BaseInterest)
	}
}

func TestAdvancePhaseStaysInRange(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	seen := make(map[models.EconomicPhase]bool)
	for i := 0; i < 500; i++ {
		g.econ.AdvancePhase()
		phase := g.state.Economy.Phase
		seen[phase] = true
		if _, ok := phaseMultiplier[phase]; !ok {
			t.Fatalf("walked into unknown phase %q", phase)
		}
	}
	if len(seen) < 2 {
		t.Fatalf("phase never moved in 500 rounds")
	}
}

func TestGroupModifierRestoresBaselineOnExpiry(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	g.state.Economy.Events = append(g.state.Economy.Events, &models.MarketEvent{
		Group: "red", Modifier: -0.25, RoundsLeft: 2, Description: "market crash",
	})
	if got := g.econ.GroupModifier("red"); got != 0.75 {
		t.Fatalf("modifier = %v, want 0.75", got)
	}
	if got := g.econ.GroupModifier("brown"); got != 1.0 {
		t.Fatalf("unrelated group modifier = %v, want 1.0", got)
	}
	g.econ.TickEvents()
	if got := g.econ.GroupModifier("red"); got != 0.75 {
		t.Fatalf("event expired a round early")
	}
	g.econ.TickEvents()
	if got := g.econ.GroupModifier("red"); got != 1.0 {
		t.Fatalf("baseline not restored after expiry: %v", got)
	}
	if len(g.state.Economy.Events) != 0 {
		t.Fatalf("expired event still listed")
	}
}

func TestTriggerEventOnePerGroup(t *testing.T) {
	g, _, _ := newTestGame(t, "a")
	g.cfg.MarketEventProb = 1.0
	g.econ.cfg.MarketEventProb = 1.0
	g.econ.rng = rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		g.econ.TriggerEvent([]string{"red"})
	}
	if n := len(g.state.Economy.Events); n != 1 {
		t.Fatalf("%d live events on one group, want 1", n)
	}
	ev := g.state.Economy.Events[0]
	if ev.Modifier == 0 || ev.Modifier < -0.40 || ev.Modifier > 0.40 {
		t.Fatalf("modifier %v out of band", ev.Modifier)
	}
	if ev.RoundsLeft != g.cfg.MarketEventTurns {
		t.Fatalf("event rounds = %d", ev.RoundsLeft)
	}
}
