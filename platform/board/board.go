package board

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/propoly/backend/app/models"
)

func fileFor(envKey, fallback string) string {
	if path := os.Getenv(envKey); path != "" {
		return path
	}
	return fallback
}

// LoadProperties reads the board definition. Every space is a Property row;
// non-ownable spaces simply carry no price.
func LoadProperties() ([]models.Property, error) {
	data, err := os.ReadFile(fileFor("BOARD_FILE", "platform/board/properties.json"))
	if err != nil {
		return nil, err
	}
	var properties []models.Property
	if err := json.Unmarshal(data, &properties); err != nil {
		return nil, err
	}
	return properties, nil
}

// LoadSpecial reads the chance / community chest decks, keyed "chance" and
// "chest".
func LoadSpecial() (map[string][]models.Special, error) {
	data, err := os.ReadFile(fileFor("SPECIALS_FILE", "platform/board/specials.json"))
	if err != nil {
		return nil, err
	}
	var decks map[string][]models.Special
	if err := json.Unmarshal(data, &decks); err != nil {
		return nil, err
	}
	return decks, nil
}

func GetByPos(pos int, properties *[]models.Property) (models.Property, error) { // O(N) time complexity
	for _, property := range *properties {
		if property.Position == pos {
			return property, nil
		}
	}
	return models.Property{}, errors.New("not found")
}

func GetById(id string, properties *[]models.Property) (models.Property, error) { // O(N) time complexity
	for _, property := range *properties {
		if property.Id == id {
			return property, nil
		}
	}
	return models.Property{}, errors.New("not found")
}
