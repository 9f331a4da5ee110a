package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
)

// groupZoningMax caps development per color group. Outer groups zone low,
// the premium strip zones high.
var groupZoningMax = map[string]int{
	"brown":  3,
	"cyan":   3,
	"pink":   4,
	"orange": 4,
	"red":    4,
	"yellow": 4,
	"green":  5,
	"blue":   5,
}

const defaultZoningMax = 4

// Development gates: past these levels the owner needs paperwork.
const (
	approvalGateLevel = 2 // zoning approval required to build past this
	studyGateLevel    = 4 // impact study required to build past this
)

// PropertyEngine owns rent math, purchase, mortgage and development. It pays
// and collects through the banker and prices against the economic cycle.
type PropertyEngine struct {
	state  *models.GameState
	cfg    config.EngineConfig
	banker *Banker
	econ   *CycleManager
	bus    *EventBus
	locks  *commitments
	log    *logrus.Entry
}

func NewPropertyEngine(state *models.GameState, cfg config.EngineConfig, banker *Banker, econ *CycleManager, bus *EventBus, locks *commitments, log *logrus.Entry) *PropertyEngine {
	pe := &PropertyEngine{state: state, cfg: cfg, banker: banker, econ: econ, bus: bus, locks: locks, log: log}
	banker.SetValuer(pe.CurrentPrice)
	return pe
}

func (pe *PropertyEngine) property(id string) (*models.Property, error) {
	p, ok := pe.state.Properties[id]
	if !ok {
		return nil, &ValidationError{Field: "property", Reason: "unknown property " + id}
	}
	return p, nil
}

// ZoningMax is the development ceiling for a property's group.
func ZoningMax(group string) int {
	if max, ok := groupZoningMax[group]; ok {
		return max
	}
	return defaultZoningMax
}

// CurrentPrice is the base price adjusted by the economic phase and any live
// market event on the group. Pure function of current state.
func (pe *PropertyEngine) CurrentPrice(p *models.Property) int {
	return roundHalfUp(float64(p.Price) * pe.econ.PhaseMultiplier() * pe.econ.GroupModifier(p.Group))
}

// OwnsGroup reports whether one player holds every property in the group.
func (pe *PropertyEngine) OwnsGroup(playerID, group string) bool {
	found := false
	for _, p := range pe.state.Properties {
		if p.Group != group || !p.Ownable() || p.Group == "" {
			continue
		}
		found = true
		if p.Owner != playerID {
			return false
		}
	}
	return found
}

func (pe *PropertyEngine) countOwnedOfType(playerID string, t models.SpaceType) int {
	n := 0
	for _, p := range pe.state.Properties {
		if p.Type == t && p.Owner == playerID {
			n++
		}
	}
	return n
}

// CalculateRent composes base rent, development tier, group monopoly and the
// economic cycle into the collectible rent. Damage halves it. One rounding,
// half-up, at the very end; the property itself is never mutated here.
func (pe *PropertyEngine) CalculateRent(p *models.Property) int {
	if p.Owner == "" || p.Mortgaged {
		return 0
	}
	var base float64
	switch p.Type {
	case models.SpaceRailroad:
		// doubles per additional railroad in the same hands
		n := pe.countOwnedOfType(p.Owner, models.SpaceRailroad)
		base = float64(p.Rent)
		for i := 1; i < n; i++ {
			base *= 2
		}
	case models.SpaceUtility:
		n := pe.countOwnedOfType(p.Owner, models.SpaceUtility)
		base = float64(p.Rent * n)
	default:
		base = float64(p.Rent)
		if p.DevelopmentLevel > 0 && p.DevelopmentLevel <= len(p.RentTiers) {
			base = float64(p.RentTiers[p.DevelopmentLevel-1])
		} else if pe.OwnsGroup(p.Owner, p.Group) {
			base *= 2 // undeveloped monopoly doubles rent
		}
	}
	rent := base * pe.econ.PhaseMultiplier() * pe.econ.GroupModifier(p.Group)
	if p.Damaged {
		rent *= 0.5
	}
	return roundHalfUp(rent)
}

// Purchase sells a bank-held property to the player at the current price.
func (pe *PropertyEngine) Purchase(playerID, propertyID string) (int, error) {
	p, err := pe.property(propertyID)
	if err != nil {
		return 0, err
	}
	if !p.Ownable() {
		return 0, &RuleViolationError{Rule: "purchase", Reason: "space cannot be owned"}
	}
	if p.Owner != "" {
		return 0, &StateConflictError{Reason: "property already owned"}
	}
	if holder, locked := pe.locks.Holder(propertyID); locked {
		return 0, &StateConflictError{Reason: "property committed to " + holder}
	}
	price := pe.CurrentPrice(p)
	if err := pe.banker.PayToBank(playerID, price, models.TxPurchase, propertyID); err != nil {
		return 0, err
	}
	p.Owner = playerID
	pe.state.Players[playerID].Properties = append(pe.state.Players[playerID].Properties, propertyID)
	pe.bus.Publish(PropertyPurchased{GameID: pe.state.Id, PlayerID: playerID, PropertyID: propertyID, Price: price})
	return price, nil
}

// TransferOwnership moves a property between players without payment.
// Auctions and trades handle the money themselves.
func (pe *PropertyEngine) TransferOwnership(propertyID, fromID, toID string) error {
	p, err := pe.property(propertyID)
	if err != nil {
		return err
	}
	if p.Owner != fromID {
		return &InternalInvariantError{Invariant: "ownership", Detail: "transfer from non-owner of " + propertyID}
	}
	if fromID != "" {
		pe.state.Players[fromID].RemoveProperty(propertyID)
	}
	p.Owner = toID
	if toID != "" {
		pe.state.Players[toID].Properties = append(pe.state.Players[toID].Properties, propertyID)
	}
	return nil
}

// MortgageProperty pays the owner the mortgage value. Development must be
// cleared first and the property must not be locked into a trade or auction.
func (pe *PropertyEngine) MortgageProperty(playerID, propertyID string) (int, error) {
	p, err := pe.property(propertyID)
	if err != nil {
		return 0, err
	}
	if p.Owner != playerID {
		return 0, &RuleViolationError{Rule: "mortgage-ownership", Reason: "not the owner"}
	}
	if p.Mortgaged {
		return 0, &StateConflictError{Reason: "already mortgaged"}
	}
	if p.DevelopmentLevel > 0 {
		return 0, &RuleViolationError{Rule: "mortgage-development", Reason: "developed property cannot be mortgaged"}
	}
	if holder, locked := pe.locks.Holder(propertyID); locked {
		return 0, &StateConflictError{Reason: "property committed to " + holder}
	}
	value := p.Mortgage
	if value == 0 {
		value = p.Price / 2
	}
	if err := pe.banker.CollectFromBank(playerID, value, models.TxMortgage, propertyID); err != nil {
		return 0, err
	}
	p.Mortgaged = true
	pe.bus.Publish(PropertyMortgaged{GameID: pe.state.Id, PlayerID: playerID, PropertyID: propertyID, Value: value})
	return value, nil
}

// UnmortgageProperty lifts the mortgage for the mortgage value plus a fixed
// 10% interest charge.
func (pe *PropertyEngine) UnmortgageProperty(playerID, propertyID string) (int, error) {
	p, err := pe.property(propertyID)
	if err != nil {
		return 0, err
	}
	if p.Owner != playerID {
		return 0, &RuleViolationError{Rule: "mortgage-ownership", Reason: "not the owner"}
	}
	if !p.Mortgaged {
		return 0, &StateConflictError{Reason: "not mortgaged"}
	}
	value := p.Mortgage
	if value == 0 {
		value = p.Price / 2
	}
	cost := roundHalfUp(float64(value) * 1.10)
	if err := pe.banker.PayToBank(playerID, cost, models.TxUnmortgage, propertyID); err != nil {
		return 0, err
	}
	p.Mortgaged = false
	pe.bus.Publish(PropertyUnmortgaged{GameID: pe.state.Id, PlayerID: playerID, PropertyID: propertyID, Cost: cost})
	return cost, nil
}

// Develop raises the development level to targetLevel. Preconditions check in
// a fixed order (ownership, improvability, mortgage/damage, group
// completeness, zoning ceiling, approval and study gates, then funds) and
// each failure names its rule.
func (pe *PropertyEngine) Develop(playerID, propertyID string, targetLevel int) (int, error) {
	p, err := pe.property(propertyID)
	if err != nil {
		return 0, err
	}
	if p.Owner != playerID {
		return 0, &RuleViolationError{Rule: "develop-ownership", Reason: "not the owner"}
	}
	if !p.Improvable() {
		return 0, &RuleViolationError{Rule: "develop-space", Reason: "space type cannot be developed"}
	}
	if p.Mortgaged {
		return 0, &RuleViolationError{Rule: "develop-mortgage", Reason: "mortgaged property cannot be developed"}
	}
	if p.Damaged {
		return 0, &RuleViolationError{Rule: "develop-damage", Reason: "damaged property must be repaired first"}
	}
	if targetLevel <= p.DevelopmentLevel {
		return 0, &ValidationError{Field: "target_level", Reason: "must exceed current level"}
	}
	if !pe.OwnsGroup(playerID, p.Group) {
		return 0, &RuleViolationError{Rule: "develop-monopoly", Reason: "owner must hold the full color group"}
	}
	if max := ZoningMax(p.Group); targetLevel > max {
		return 0, &RuleViolationError{Rule: "develop-zoning", Reason: "target exceeds the group zoning ceiling"}
	}
	if targetLevel > approvalGateLevel && !pe.approvalValid(p) {
		return 0, &RuleViolationError{Rule: "develop-approval", Reason: "zoning approval required"}
	}
	if targetLevel > studyGateLevel && !p.StudyDone {
		return 0, &RuleViolationError{Rule: "develop-study", Reason: "impact study required"}
	}
	cost := p.HouseCost * (targetLevel - p.DevelopmentLevel)
	if err := pe.banker.PayToBank(playerID, cost, models.TxDevelopment, propertyID); err != nil {
		return 0, err
	}
	p.DevelopmentLevel = targetLevel
	pe.bus.Publish(PropertyDeveloped{GameID: pe.state.Id, PlayerID: playerID, PropertyID: propertyID, Level: targetLevel, Cost: cost})
	return cost, nil
}

func (pe *PropertyEngine) approvalValid(p *models.Property) bool {
	if !p.Approved {
		return false
	}
	return p.ApprovalExpires == 0 || pe.state.TurnCount <= p.ApprovalExpires
}

// approvalFee and studyFee are flat permit costs scaled off the house cost.
func (pe *PropertyEngine) approvalFee(p *models.Property) int {
	return roundHalfUp(float64(p.HouseCost) * 0.5)
}

func (pe *PropertyEngine) studyFee(p *models.Property) int {
	return p.HouseCost
}

// RequestApproval buys a zoning approval valid for twenty turns.
func (pe *PropertyEngine) RequestApproval(playerID, propertyID string) error {
	p, err := pe.property(propertyID)
	if err != nil {
		return err
	}
	if p.Owner != playerID {
		return &RuleViolationError{Rule: "approval-ownership", Reason: "not the owner"}
	}
	if pe.approvalValid(p) {
		return &StateConflictError{Reason: "approval already granted"}
	}
	if err := pe.banker.PayToFund(playerID, pe.approvalFee(p), models.TxFine, propertyID); err != nil {
		return err
	}
	p.Approved = true
	p.ApprovalExpires = pe.state.TurnCount + 20
	return nil
}

// CommissionStudy buys the impact study; it never expires.
func (pe *PropertyEngine) CommissionStudy(playerID, propertyID string) error {
	p, err := pe.property(propertyID)
	if err != nil {
		return err
	}
	if p.Owner != playerID {
		return &RuleViolationError{Rule: "study-ownership", Reason: "not the owner"}
	}
	if p.StudyDone {
		return &StateConflictError{Reason: "study already done"}
	}
	if err := pe.banker.PayToFund(playerID, pe.studyFee(p), models.TxFine, propertyID); err != nil {
		return err
	}
	p.StudyDone = true
	return nil
}

// Damage marks a property damaged: development freezes and rent halves until
// repaired.
func (pe *PropertyEngine) Damage(propertyID, cause string) error {
	p, err := pe.property(propertyID)
	if err != nil {
		return err
	}
	if p.Damaged {
		return nil
	}
	p.Damaged = true
	pe.bus.Publish(PropertyDamaged{GameID: pe.state.Id, PropertyID: propertyID, Cause: cause})
	return nil
}

// Repair clears damage for a fee proportional to the property value.
func (pe *PropertyEngine) Repair(playerID, propertyID string) (int, error) {
	p, err := pe.property(propertyID)
	if err != nil {
		return 0, err
	}
	if p.Owner != playerID {
		return 0, &RuleViolationError{Rule: "repair-ownership", Reason: "not the owner"}
	}
	if !p.Damaged {
		return 0, &StateConflictError{Reason: "property is not damaged"}
	}
	cost := roundHalfUp(float64(p.Price) * 0.2)
	if err := pe.banker.PayToBank(playerID, cost, models.TxDevelopment, propertyID); err != nil {
		return 0, err
	}
	p.Damaged = false
	pe.bus.Publish(PropertyRepaired{GameID: pe.state.Id, PropertyID: propertyID, Cost: cost})
	return cost, nil
}

// Groups lists the distinct color groups on the board.
func (pe *PropertyEngine) Groups() []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, p := range pe.state.Properties {
		if p.Type == models.SpaceProperty && p.Group != "" && !seen[p.Group] {
			seen[p.Group] = true
			out = append(out, p.Group)
		}
	}
	return out
}
