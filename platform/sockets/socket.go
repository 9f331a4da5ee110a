package socket

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-pg/pg/v10"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/cors"

	"github.com/propoly/backend/app/engine"
	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
	"github.com/propoly/backend/platform/cache"
	"github.com/propoly/backend/platform/database"
	"github.com/propoly/backend/platform/logging"
	"github.com/propoly/backend/platform/repository"
)

// TODO add chat

func CreateSocketIOServer() {
	log := logging.For("socket")

	server, err := socketio.NewServer(nil)
	if err != nil {
		panic(err)
	}
	db := database.PostgreSQLConnection()
	defer db.Close()

	pool := cache.CreateRedisPool()
	defer pool.Close()

	repo := repository.NewPgRepository(db, pool)
	if err := repo.EnsureSchema(); err != nil {
		log.WithError(err).Fatal("schema setup failed")
	}

	hub := NewHub(repo, pool, config.FromEnv())
	hub.SetBroadcast(func(room, event, data string) {
		server.BroadcastToRoom("/", room, event, data)
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		return nil
	})

	server.OnEvent("/", "join-game", func(s socketio.Conn, jsonStr string) {
		var result map[string]string
		json.Unmarshal([]byte(jsonStr), &result)

		id, ok := result["game_id"]
		if !ok {
			log.Warn("game_id not passed")
			return
		}
		status, found := lobbyStatus(id, db)
		if !found || (status != "waiting" && status != "running") {
			s.Emit("error-message", "Invalid game")
			s.Emit("failed")
			return
		}
		user_id, ok := result["user_id"]
		if !ok {
			s.Emit("error-message", "User not authenticated")
			s.Emit("failed")
			return
		}
		user := &models.User{Id: user_id}
		if err := db.Model(user).WherePK().Select(); err != nil {
			s.Emit("error-message", "User retrieval failed")
			s.Emit("failed")
			return
		}

		// a running game is rejoined, not re-lobbied: reload it into this
		// process if it is not already here
		if status == "running" {
			if !hub.Running(id) {
				if _, err := hub.ResumeGame(id); err != nil {
					s.Emit("error-message", "Unable to resume game")
					log.WithError(err).Warn("resume failed")
					return
				}
			}
			s.Join(id)
			if state, ok := hub.Snapshot(id); ok {
				stateJson, _ := json.Marshal(state)
				s.Emit("game-state", string(stateJson))
			}
			log.Infof("%s rejoined room %s", s.ID(), id)
			return
		}

		players := hub.Join(id, &models.Player{
			Id:       user_id,
			User_id:  user_id,
			Game_id:  id,
			Username: user.Email,
		})

		server.BroadcastToRoom("/", id, "player-join")
		s.Join(id)
		s.Emit("joined-game", strconv.Itoa(players))
		log.Infof("%s joined room %s", s.ID(), id)
	})

	server.OnEvent("/", "leave-game", func(s socketio.Conn, jsonStr string) {
		var result map[string]string
		json.Unmarshal([]byte(jsonStr), &result)

		s.Leave(result["game_id"])
		hub.Leave(result["game_id"], result["user_id"])
		server.BroadcastToRoom("/", result["game_id"], "player-left")
	})

	server.OnEvent("/", "add-bot", func(s socketio.Conn, jsonStr string) {
		var result map[string]string
		json.Unmarshal([]byte(jsonStr), &result)

		id := result["game_id"]
		if status, found := lobbyStatus(id, db); !found || status != "waiting" {
			s.Emit("error-message", "Invalid game")
			return
		}
		bot := hub.AddBot(id, models.BotStrategy(result["strategy"]))
		botJson, _ := json.Marshal(bot)
		server.BroadcastToRoom("/", id, "player-join", string(botJson))
	})

	server.OnEvent("/", "start-game", func(s socketio.Conn, game_id string) {
		game, err := hub.StartGame(game_id)
		if err != nil {
			s.Emit("error-message", "Unable to start game: "+err.Error())
			log.WithError(err).Warn("failed to start game")
			return
		}
		if _, err := db.Model(&models.Game{Id: game_id}).WherePK().Set("status = ?", "running").Update(); err != nil {
			log.WithError(err).Warn("lobby status update failed")
		}
		stateJson, err := json.Marshal(game.Snapshot())
		if err != nil {
			log.WithError(err).Error("snapshot marshal failed")
			return
		}
		server.BroadcastToRoom("/", game_id, "game-start", string(stateJson))
	})

	server.OnEvent("/", "get-state", func(s socketio.Conn, game_id string) {
		if state, ok := hub.Snapshot(game_id); ok {
			stateJson, _ := json.Marshal(state)
			s.Emit("game-state", string(stateJson))
			return
		}
		// not hosted here: serve the mirrored snapshot before waking the
		// engine for a spectator
		if raw, ok := hub.CachedState(game_id); ok {
			s.Emit("game-state", string(raw))
			return
		}
		if _, err := hub.ResumeGame(game_id); err != nil {
			s.Emit("error-message", "Game not running")
			return
		}
		state, ok := hub.Snapshot(game_id)
		if !ok {
			s.Emit("error-message", "Game not running")
			return
		}
		stateJson, _ := json.Marshal(state)
		s.Emit("game-state", string(stateJson))
	})

	// Generic action channel: the payload is a full engine.ActionRequest
	// plus the game id.
	server.OnEvent("/", "action", func(s socketio.Conn, jsonStr string) {
		var wrapper struct {
			Game_id string               `json:"game_id"`
			Request engine.ActionRequest `json:"request"`
		}
		if err := json.Unmarshal([]byte(jsonStr), &wrapper); err != nil {
			s.Emit("error-message", "Malformed action")
			return
		}
		emitResult(s, hub, wrapper.Game_id, wrapper.Request)
	})

	// Named shortcuts for the common turn actions, kept for older clients.
	simple := map[string]engine.ActionType{
		"roll-dice":    engine.ActionRoll,
		"request-buy":  engine.ActionBuyProperty,
		"decline-buy":  engine.ActionDeclineBuy,
		"end-turn":     engine.ActionEndTurn,
		"pay-out-jail": engine.ActionPayJailFine,
	}
	for event, action := range simple {
		action := action
		server.OnEvent("/", event, func(s socketio.Conn, jsonStr string) {
			var result map[string]string
			json.Unmarshal([]byte(jsonStr), &result)
			emitResult(s, hub, result["game_id"], engine.ActionRequest{
				ActorID:   result["user_id"],
				TurnToken: result["turn_token"],
				Type:      action,
			})
		})
	}

	server.OnError("/", func(s socketio.Conn, e error) {
		log.WithError(e).Warn("socket error")
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		rooms := s.Rooms()
		for _, room := range rooms {
			server.BroadcastToRoom("/", room, "player-left")
		}
		s.LeaveAll()
	})

	go server.Serve()
	defer server.Close()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
	})

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	http.ListenAndServe(":8000", c.Handler(mux))
}

func emitResult(s socketio.Conn, hub *Hub, gameID string, req engine.ActionRequest) {
	result, ok := hub.Apply(gameID, req)
	if !ok {
		s.Emit("error-message", "Game not running")
		return
	}
	resultJson, _ := json.Marshal(result)
	s.Emit("action-result", string(resultJson))
	if !result.Accepted {
		s.Emit("error-message", result.Message)
	}
}

func lobbyStatus(id string, db *pg.DB) (string, bool) {
	game := &models.Game{Id: id}
	if err := db.Model(game).WherePK().Select(); err != nil {
		return "", false
	}
	return game.Status, true
}
