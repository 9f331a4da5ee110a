package engine

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
)

// phaseOrder indexes the cycle for the random walk.
var phaseOrder = []models.EconomicPhase{
	models.EconRecession,
	models.EconNormal,
	models.EconGrowth,
	models.EconBoom,
}

// phaseMultiplier scales property prices and rents market-wide.
var phaseMultiplier = map[models.EconomicPhase]float64{
	models.EconRecession: 0.80,
	models.EconNormal:    1.00,
	models.EconGrowth:    1.15,
	models.EconBoom:      1.30,
}

// CycleManager drives the economic phase and temporary market events. It owns
// no references to other services; the property engine and banker read it.
type CycleManager struct {
	state *models.GameState
	cfg   config.EngineConfig
	bus   *EventBus
	rng   *rand.Rand
	log   *logrus.Entry
}

func NewCycleManager(state *models.GameState, cfg config.EngineConfig, bus *EventBus, rng *rand.Rand, log *logrus.Entry) *CycleManager {
	return &CycleManager{state: state, cfg: cfg, bus: bus, rng: rng, log: log}
}

func phaseIndex(p models.EconomicPhase) int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return 1
}

// AdvancePhase runs once per full round. The walk is biased by the inflation
// trend: rising inflation pushes the cycle up, falling pulls it down, and the
// longer a phase has run past its target length the likelier it rolls over.
func (m *CycleManager) AdvancePhase() {
	econ := m.state.Economy
	econ.PhaseRounds++

	bias := 0.0
	if econ.Inflation > 0.03 {
		bias += 0.15
	} else if econ.Inflation < 0.01 {
		bias -= 0.15
	}
	overstay := float64(econ.PhaseRounds-m.cfg.PhaseLength) * 0.1
	moveProb := 0.25 + overstay
	if moveProb < 0.1 {
		moveProb = 0.1
	}
	if moveProb > 0.9 {
		moveProb = 0.9
	}
	if m.rng.Float64() >= moveProb {
		m.drift()
		return
	}

	idx := phaseIndex(econ.Phase)
	step := -1
	if m.rng.Float64() < 0.5+bias {
		step = 1
	}
	idx += step
	if idx < 0 {
		idx = 0
	}
	if idx > len(phaseOrder)-1 {
		idx = len(phaseOrder) - 1
	}
	next := phaseOrder[idx]
	if next == econ.Phase {
		m.drift()
		return
	}
	econ.Phase = next
	econ.PhaseRounds = 0
	m.drift()
	m.bus.Publish(EconomicPhaseChanged{GameID: m.state.Id, Phase: next})
	m.log.WithField("phase", next).Info("economic phase changed")
}

// drift nudges inflation and base interest toward phase-typical values.
func (m *CycleManager) drift() {
	econ := m.state.Economy
	var targetInfl, targetRate float64
	switch econ.Phase {
	case models.EconRecession:
		targetInfl, targetRate = 0.005, 0.01
	case models.EconNormal:
		targetInfl, targetRate = 0.02, 0.03
	case models.EconGrowth:
		targetInfl, targetRate = 0.035, 0.045
	case models.EconBoom:
		targetInfl, targetRate = 0.05, 0.06
	}
	econ.Inflation += (targetInfl - econ.Inflation) * 0.3
	econ.BaseInterest += (targetRate - econ.BaseInterest) * 0.3
}

// TriggerEvent may, with configured probability, fire a market crash or boom
// on one property group. Base values are never touched: the modifier sits in
// the event list and expires through TickEvents, so restoration is exact.
func (m *CycleManager) TriggerEvent(groups []string) {
	if len(groups) == 0 || m.rng.Float64() >= m.cfg.MarketEventProb {
		return
	}
	group := groups[m.rng.Intn(len(groups))]
	for _, ev := range m.state.Economy.Events {
		if ev.Group == group {
			return // one live event per group
		}
	}
	mod := 0.10 + m.rng.Float64()*0.30
	desc := "local boom"
	if m.rng.Float64() < 0.5 {
		mod = -mod
		desc = "market crash"
	}
	ev := &models.MarketEvent{
		Group:       group,
		Modifier:    mod,
		RoundsLeft:  m.cfg.MarketEventTurns,
		Description: desc,
	}
	m.state.Economy.Events = append(m.state.Economy.Events, ev)
	m.bus.Publish(MarketEventTriggered{
		GameID:      m.state.Id,
		Group:       group,
		Modifier:    mod,
		Rounds:      ev.RoundsLeft,
		Description: desc,
	})
}

// TickEvents ages live market events and drops the expired ones.
func (m *CycleManager) TickEvents() {
	kept := m.state.Economy.Events[:0]
	for _, ev := range m.state.Economy.Events {
		ev.RoundsLeft--
		if ev.RoundsLeft > 0 {
			kept = append(kept, ev)
			continue
		}
		m.bus.Publish(MarketEventExpired{GameID: m.state.Id, Group: ev.Group})
	}
	m.state.Economy.Events = kept
}

// PhaseMultiplier is the market-wide price/rent factor for the current phase.
func (m *CycleManager) PhaseMultiplier() float64 {
	return phaseMultiplier[m.state.Economy.Phase]
}

// GroupModifier composes the live market-event modifiers for one group into
// a multiplicative factor (1.0 when no event is live).
func (m *CycleManager) GroupModifier(group string) float64 {
	f := 1.0
	for _, ev := range m.state.Economy.Events {
		if ev.Group == group {
			f *= 1.0 + ev.Modifier
		}
	}
	return f
}
