package models

// BotStrategy tags how a bot weighs risk. Human players carry an empty tag.
type BotStrategy string

const (
	StrategyConservative BotStrategy = "conservative"
	StrategyAggressive   BotStrategy = "aggressive"
	StrategyStrategic    BotStrategy = "strategic"
)

// Player is one seat at the table, human or bot. Properties holds property
// ids; the Property entities themselves live on the GameState aggregate.
type Player struct {
	Id          string      `json:"id"`
	User_id     string      `json:"user_id"`
	Game_id     string      `json:"game_id"`
	Username    string      `json:"username"`
	Position    int         `json:"position"`
	Cash        int         `json:"cash"`
	InJail      bool        `json:"in_jail"`
	JailTurns   int         `json:"jail_turns"`
	Properties  []string    `json:"properties"`
	IsBot       bool        `json:"is_bot"`
	Strategy    BotStrategy `json:"strategy"`
	CreditScore int         `json:"credit_score"`
	Bankrupt    bool        `json:"bankrupt"`
	DoubleCount int         `json:"double_count"`
	HasRolled   bool        `json:"has_rolled"`
}

func (p *Player) Clone() *Player {
	cp := *p
	cp.Properties = append([]string(nil), p.Properties...)
	return &cp
}

// OwnsProperty reports membership in the player's holdings list.
func (p *Player) OwnsProperty(propertyID string) bool {
	for _, id := range p.Properties {
		if id == propertyID {
			return true
		}
	}
	return false
}

// RemoveProperty drops a holding; no-op if absent.
func (p *Player) RemoveProperty(propertyID string) {
	for i, id := range p.Properties {
		if id == propertyID {
			p.Properties = append(p.Properties[:i], p.Properties[i+1:]...)
			return
		}
	}
}

type PlayerDto struct {
	Username   string
	Balance    int
	Pos        int
	Color      string
	Properties []string
	Jail       bool
	Bot        bool
}
