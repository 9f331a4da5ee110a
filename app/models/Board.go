package models

// SpaceType discriminates what landing on a board space does.
type SpaceType string

const (
	SpaceProperty SpaceType = "property"
	SpaceRailroad SpaceType = "railroad"
	SpaceUtility  SpaceType = "utility"
	SpaceTax      SpaceType = "tax"
	SpaceChest    SpaceType = "chest"
	SpaceChance   SpaceType = "chance"
	SpaceGo       SpaceType = "go"
	SpaceJail     SpaceType = "jail"
	SpaceGoToJail SpaceType = "go-to-jail"
	SpaceParking  SpaceType = "parking"
)

// Property is a board space plus its live ownership/development state. The
// static half (name, group, base price/rent) comes from the board JSON; the
// rest mutates during play. Owner is a player id, never a pointer; a property
// does not own a player.
type Property struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Type      SpaceType `json:"type"`
	Group     string    `json:"group"`
	Position  int       `json:"position"`
	Price     int       `json:"price"`
	Rent      int       `json:"rent"`
	RentTiers []int     `json:"rent_tiers"` // indexed by development level, 1..
	Mortgage  int       `json:"mortgage"`   // mortgage value paid out by the bank
	HouseCost int       `json:"housecost"`
	TaxAmount int       `json:"tax"` // only for tax spaces

	Owner            string `json:"owner"` // "" while bank-owned
	Mortgaged        bool   `json:"mortgaged"`
	DevelopmentLevel int    `json:"development_level"`
	Damaged          bool   `json:"damaged"`
	Approved         bool   `json:"approved"`         // zoning approval granted
	ApprovalExpires  int    `json:"approval_expires"` // turn count, 0 = never
	StudyDone        bool   `json:"study_done"`       // impact study completed
}

// Improvable reports whether the space can carry development at all.
// Railroads and utilities are ownable but never develop.
func (p *Property) Improvable() bool {
	return p.Type == SpaceProperty
}

func (p *Property) Ownable() bool {
	switch p.Type {
	case SpaceProperty, SpaceRailroad, SpaceUtility:
		return true
	}
	return false
}

func (p *Property) Clone() *Property {
	cp := *p
	if p.RentTiers != nil {
		cp.RentTiers = append([]int(nil), p.RentTiers...)
	}
	return &cp
}

// Special is one chance / community chest card.
type Special struct {
	Info    string `json:"info"`
	Action  string `json:"action"` // "change" - balance update, "move" - move to position, "jail" - go to jail
	Payload int    `json:"payload"`
}
