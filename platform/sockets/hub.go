package socket

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/engine"
	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/pkg/config"
	"github.com/propoly/backend/platform/board"
	"github.com/propoly/backend/platform/cache"
	"github.com/propoly/backend/platform/logging"
)

// gameStore is what the hub needs from persistence: the engine repository
// plus the restart queries. *repository.PgRepository satisfies it.
type gameStore interface {
	engine.Repository
	OpenAuctions(gameID string) ([]*models.Auction, error)
	CachedSnapshot(gameID string) ([]byte, error)
}

// lobbyTTL keeps abandoned lobby rosters from lingering in Redis forever.
const lobbyTTL = 3600

type runningGame struct {
	game *engine.Game
	bots *engine.BotEngine
}

// Hub owns the lobby rosters and the running game instances for this process.
// The socket layer talks to games only through the hub.
type Hub struct {
	mu      sync.Mutex
	lobbies map[string][]*models.Player
	games   map[string]*runningGame
	repo    gameStore
	pool    *redis.Pool
	cfg     config.EngineConfig
	log     *logrus.Entry

	// broadcast pushes an event into a socket.io room. Set once by the
	// socket server before any game starts.
	broadcast func(room, event, data string)
}

func NewHub(repo gameStore, pool *redis.Pool, cfg config.EngineConfig) *Hub {
	return &Hub{
		lobbies: make(map[string][]*models.Player),
		games:   make(map[string]*runningGame),
		repo:    repo,
		pool:    pool,
		cfg:     cfg,
		log:     logging.For("hub"),
	}
}

func (h *Hub) SetBroadcast(fn func(room, event, data string)) {
	h.broadcast = fn
}

// Join seats a player in a lobby. Returns the lobby size.
func (h *Hub) Join(gameID string, p *models.Player) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restoreLobby(gameID)
	for _, seated := range h.lobbies[gameID] {
		if seated.User_id == p.User_id {
			return len(h.lobbies[gameID])
		}
	}
	h.lobbies[gameID] = append(h.lobbies[gameID], p)
	h.mirrorSeat(gameID, p)
	return len(h.lobbies[gameID])
}

func (h *Hub) Leave(gameID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roster := h.lobbies[gameID]
	for i, seated := range roster {
		if seated.User_id == userID {
			h.lobbies[gameID] = append(roster[:i], roster[i+1:]...)
			h.mirrorUnseat(gameID, seated)
			return
		}
	}
}

// AddBot seats a bot in the lobby before the game starts.
func (h *Hub) AddBot(gameID string, strategy models.BotStrategy) *models.Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	bot := &models.Player{
		Id:       "bot-" + string(strategy) + "-" + time.Now().UTC().Format("150405.000"),
		Game_id:  gameID,
		Username: string(strategy) + " bot",
		IsBot:    true,
		Strategy: strategy,
	}
	bot.User_id = bot.Id
	h.restoreLobby(gameID)
	h.lobbies[gameID] = append(h.lobbies[gameID], bot)
	h.mirrorSeat(gameID, bot)
	return bot
}

// Lobby rosters are mirrored to a Redis list so another process (or a
// restarted one) can pick a lobby back up. Mirror failures only warn; the
// in-memory roster stays authoritative.

func lobbyKey(gameID string) string { return "lobby:" + gameID + ":players" }

func (h *Hub) mirrorSeat(gameID string, p *models.Player) {
	if h.pool == nil {
		return
	}
	conn := h.pool.Get()
	defer conn.Close()
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := cache.RPUSH(lobbyKey(gameID), []interface{}{data}, &conn); err != nil {
		h.log.WithError(err).Warn("lobby mirror failed")
		return
	}
	_ = cache.Expire(lobbyKey(gameID), lobbyTTL, &conn)
}

func (h *Hub) mirrorUnseat(gameID string, p *models.Player) {
	if h.pool == nil {
		return
	}
	conn := h.pool.Get()
	defer conn.Close()
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := cache.LREM(lobbyKey(gameID), string(data), &conn); err != nil {
		h.log.WithError(err).Warn("lobby mirror failed")
	}
}

func (h *Hub) dropLobbyMirror(gameID string) {
	if h.pool == nil {
		return
	}
	conn := h.pool.Get()
	defer conn.Close()
	_ = cache.Del(lobbyKey(gameID), &conn)
}

// restoreLobby pulls a mirrored roster when this process has none. Caller
// holds the mutex.
func (h *Hub) restoreLobby(gameID string) {
	if _, ok := h.lobbies[gameID]; ok {
		return
	}
	h.lobbies[gameID] = []*models.Player{}
	if h.pool == nil {
		return
	}
	conn := h.pool.Get()
	defer conn.Close()
	rows, err := cache.LGET(lobbyKey(gameID), &conn)
	if err != nil {
		return
	}
	for _, row := range rows {
		var p models.Player
		if err := json.Unmarshal([]byte(row), &p); err != nil {
			continue
		}
		h.lobbies[gameID] = append(h.lobbies[gameID], &p)
	}
}

// StartGame turns a lobby into a running engine instance: loads the board,
// seats the roster, wires bots, and pumps engine events into the room.
func (h *Hub) StartGame(gameID string) (*engine.Game, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if running, ok := h.games[gameID]; ok {
		return running.game, nil
	}
	h.restoreLobby(gameID)
	roster := h.lobbies[gameID]
	if len(roster) < 2 {
		return nil, &engine.ValidationError{Field: "players", Reason: "need at least two players"}
	}

	properties, err := board.LoadProperties()
	if err != nil {
		return nil, err
	}
	decks, err := board.LoadSpecial()
	if err != nil {
		return nil, err
	}

	for _, p := range roster {
		if p.Id == "" {
			p.Id = p.User_id
		}
	}
	state := engine.NewGameState(gameID, roster, properties, h.cfg)
	game := engine.NewGame(state, decks["chest"], decks["chance"], h.cfg, engine.Deps{
		Repo:  h.repo,
		Sched: engine.NewClockScheduler(),
		Log:   logging.For("engine"),
	})

	running := &runningGame{game: game}
	if hasBots(roster) {
		running.bots = engine.NewBotEngine(game, rand.New(rand.NewSource(time.Now().UnixNano())), logging.For("bots"))
	}
	h.games[gameID] = running
	delete(h.lobbies, gameID)
	h.dropLobbyMirror(gameID)

	// subscribe before Start so the opening turn event reaches the room
	go h.pump(gameID, game.Bus().Subscribe())
	if running.bots != nil {
		running.bots.Run()
	}
	game.Start()
	return game, nil
}

// ResumeGame reloads a persisted game after a restart and re-arms its
// auction deadlines.
func (h *Hub) ResumeGame(gameID string) (*engine.Game, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if running, ok := h.games[gameID]; ok {
		return running.game, nil
	}
	state, err := h.repo.Load(gameID)
	if err != nil {
		return nil, err
	}
	if !state.Active {
		return nil, &engine.StateConflictError{Reason: "game already finished"}
	}
	// auction rows are written on every bid, so they can be fresher than the
	// last full snapshot
	if open, err := h.repo.OpenAuctions(gameID); err != nil {
		h.log.WithError(err).Warn("auction reload failed")
	} else {
		for _, a := range open {
			state.Auctions[a.Id] = a
		}
	}
	decks, err := board.LoadSpecial()
	if err != nil {
		return nil, err
	}
	game := engine.NewGame(state, decks["chest"], decks["chance"], h.cfg, engine.Deps{
		Repo:  h.repo,
		Sched: engine.NewClockScheduler(),
		Log:   logging.For("engine"),
	})
	running := &runningGame{game: game}
	if stateHasBots(state) {
		running.bots = engine.NewBotEngine(game, rand.New(rand.NewSource(time.Now().UnixNano())), logging.For("bots"))
	}
	h.games[gameID] = running
	go h.pump(gameID, game.Bus().Subscribe())
	if running.bots != nil {
		running.bots.Run()
	}
	game.Start()
	return game, nil
}

// Apply forwards an action to the running game.
func (h *Hub) Apply(gameID string, req engine.ActionRequest) (engine.ActionResult, bool) {
	h.mu.Lock()
	running, ok := h.games[gameID]
	h.mu.Unlock()
	if !ok {
		return engine.ActionResult{}, false
	}
	return running.game.Apply(req), true
}

// Snapshot returns the current state of a running game.
func (h *Hub) Snapshot(gameID string) (*models.GameState, bool) {
	h.mu.Lock()
	running, ok := h.games[gameID]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	return running.game.Snapshot(), true
}

// CachedState reads the mirrored snapshot for a game this process is not
// hosting, so spectators get a board without waking the engine.
func (h *Hub) CachedState(gameID string) ([]byte, bool) {
	raw, err := h.repo.CachedSnapshot(gameID)
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

func (h *Hub) Running(gameID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.games[gameID]
	return ok
}

// pump relays engine events into the room until the game ends. The caller
// subscribes before starting the game so no opening event slips past.
func (h *Hub) pump(gameID string, ch <-chan engine.Event) {
	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			h.log.WithError(err).Warn("event marshal failed")
			continue
		}
		envelope, _ := json.Marshal(map[string]json.RawMessage{
			"type": json.RawMessage(`"` + ev.EventType() + `"`),
			"data": data,
		})
		if h.broadcast != nil {
			h.broadcast(gameID, "game-event", string(envelope))
		}
		if ev.EventType() == "game-ended" {
			h.retire(gameID)
			return
		}
	}
}

func (h *Hub) retire(gameID string) {
	h.mu.Lock()
	running, ok := h.games[gameID]
	delete(h.games, gameID)
	h.mu.Unlock()
	if ok && running.bots != nil {
		running.bots.Stop()
	}
}

func hasBots(roster []*models.Player) bool {
	for _, p := range roster {
		if p.IsBot {
			return true
		}
	}
	return false
}

func stateHasBots(state *models.GameState) bool {
	for _, p := range state.Players {
		if p.IsBot && !p.Bankrupt {
			return true
		}
	}
	return false
}
