package board

import (
	"os"
	"testing"

	"github.com/propoly/backend/app/models"
)

// tests run from the package directory, so point the loaders at the local
// files instead of the repo-root defaults
func loadTestBoard(t *testing.T) []models.Property {
	t.Helper()
	os.Setenv("BOARD_FILE", "properties.json")
	t.Cleanup(func() { os.Unsetenv("BOARD_FILE") })
	properties, err := LoadProperties()
	if err != nil {
		t.Fatalf("LoadProperties failed: %v", err)
	}
	return properties
}

func TestBoardLayout(t *testing.T) {
	properties := loadTestBoard(t)
	if len(properties) != 40 {
		t.Fatalf("board has %d spaces, want 40", len(properties))
	}

	positions := make(map[int]string)
	ids := make(map[string]bool)
	for _, p := range properties {
		if p.Position < 0 || p.Position > 39 {
			t.Fatalf("space %s at position %d out of range", p.Id, p.Position)
		}
		if prev, dup := positions[p.Position]; dup {
			t.Fatalf("position %d claimed by both %s and %s", p.Position, prev, p.Id)
		}
		positions[p.Position] = p.Id
		if ids[p.Id] {
			t.Fatalf("duplicate space id %s", p.Id)
		}
		ids[p.Id] = true
		if p.Ownable() && p.Price <= 0 {
			t.Fatalf("ownable space %s has no price", p.Id)
		}
		if p.Type == models.SpaceProperty && len(p.RentTiers) == 0 {
			t.Fatalf("street %s has no rent tiers", p.Id)
		}
	}
}

func TestBoardGroupSizes(t *testing.T) {
	properties := loadTestBoard(t)
	groups := make(map[string]int)
	railroads, utilities := 0, 0
	for _, p := range properties {
		switch p.Type {
		case models.SpaceProperty:
			groups[p.Group]++
		case models.SpaceRailroad:
			railroads++
		case models.SpaceUtility:
			utilities++
		}
	}
	want := map[string]int{
		"brown": 2, "cyan": 3, "pink": 3, "orange": 3,
		"red": 3, "yellow": 3, "green": 3, "blue": 2,
	}
	for group, n := range want {
		if groups[group] != n {
			t.Fatalf("group %s has %d streets, want %d", group, groups[group], n)
		}
	}
	if railroads != 4 || utilities != 2 {
		t.Fatalf("railroads=%d utilities=%d, want 4 and 2", railroads, utilities)
	}
}

func TestBoardLookups(t *testing.T) {
	properties := loadTestBoard(t)

	corner, err := GetByPos(39, &properties)
	if err != nil {
		t.Fatalf("GetByPos failed: %v", err)
	}
	if corner.Id != "vantage-point" {
		t.Fatalf("position 39 = %s", corner.Id)
	}
	if _, err := GetByPos(99, &properties); err == nil {
		t.Fatalf("out-of-board position must fail")
	}

	station, err := GetById("north-station", &properties)
	if err != nil {
		t.Fatalf("GetById failed: %v", err)
	}
	if station.Type != models.SpaceRailroad || station.Position != 5 {
		t.Fatalf("north-station wrong: %+v", station)
	}
	if _, err := GetById("nowhere", &properties); err == nil {
		t.Fatalf("unknown id must fail")
	}
}

func TestSpecialDecks(t *testing.T) {
	os.Setenv("SPECIALS_FILE", "specials.json")
	t.Cleanup(func() { os.Unsetenv("SPECIALS_FILE") })
	decks, err := LoadSpecial()
	if err != nil {
		t.Fatalf("LoadSpecial failed: %v", err)
	}
	for _, name := range []string{"chance", "chest"} {
		deck := decks[name]
		if len(deck) == 0 {
			t.Fatalf("deck %s is empty", name)
		}
		for _, card := range deck {
			switch card.Action {
			case "change", "jail":
			case "move":
				if card.Payload < 0 || card.Payload > 39 {
					t.Fatalf("%s card moves off the board: %+v", name, card)
				}
			default:
				t.Fatalf("%s card has unknown action %q", name, card.Action)
			}
		}
	}
}
