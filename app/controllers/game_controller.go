package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg"
	"github.com/propoly/backend/platform/database"
	"github.com/propoly/backend/platform/logging"
)

func CreateGame(c *fiber.Ctx) error {
	db := database.PostgreSQLConnection()
	defer db.Close()

	gameCreateDto := new(models.GameCreateDto)
	if err := c.BodyParser(gameCreateDto); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	game := &models.Game{
		Id:     pkg.RandString(8),
		Name:   gameCreateDto.Name,
		Type:   gameCreateDto.Type,
		Status: "waiting",
	}

	if _, err := db.Model(game).Insert(); err != nil {
		logging.For("game").WithError(err).Warn("lobby insert failed")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(fiber.Map{"id": game.Id})
}

func GetAllAvailGames(c *fiber.Ctx) error {
	db := database.PostgreSQLConnection()
	defer db.Close()

	var games []models.Game
	if err := db.Model(&games).Where("status = ?", "waiting").Select(); err != nil {
		logging.For("game").WithError(err).Warn("lobby listing failed")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(games)
}

// FindAvailGame picks one joinable lobby for quick-play.
func FindAvailGame(c *fiber.Ctx) error {
	db := database.PostgreSQLConnection()
	defer db.Close()

	game := new(models.Game)
	err := db.Model(game).Where("status = ?", "waiting").Limit(1).Select()
	if err != nil {
		return c.JSON(fiber.Map{"status": false})
	}
	return c.JSON(fiber.Map{"status": true, "id": game.Id})
}

func VerifyGame(c *fiber.Ctx) error {
	db := database.PostgreSQLConnection()
	defer db.Close()

	verifyGameDto := new(models.VerifyGameDto)
	if err := c.QueryParser(verifyGameDto); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	game := &models.Game{Id: verifyGameDto.Code}
	if err := db.Model(game).WherePK().Select(); err != nil {
		return c.JSON(fiber.Map{"status": false})
	}
	return c.JSON(fiber.Map{"status": game.Status == "waiting"})
}
