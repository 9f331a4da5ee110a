package repository

import (
	"encoding/json"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"github.com/propoly/backend/app/engine"
	"github.com/propoly/backend/app/models"
	"github.com/propoly/backend/platform/cache"
	"github.com/propoly/backend/platform/logging"
)

// snapshot TTL in seconds; clients polling a finished lobby should not see
// a stale board forever.
const snapshotTTL = 3600

type gameStateRow struct {
	tableName struct{} `pg:"game_states"` //nolint:structcheck,unused
	Id        string   `pg:",pk"`
	Data      []byte
	TurnToken string
	Active    bool
}

type transactionRow struct {
	tableName struct{} `pg:"transactions"` //nolint:structcheck,unused
	Id        string   `pg:",pk"`
	Game_id   string
	Data      []byte
}

type auctionRow struct {
	tableName struct{} `pg:"auctions"` //nolint:structcheck,unused
	Id        string   `pg:",pk"`
	Game_id   string
	Status    string
	Data      []byte
}

// PgRepository persists full game states as JSON rows in Postgres and mirrors
// the latest snapshot into Redis for cheap reads by the socket layer.
type PgRepository struct {
	db   *pg.DB
	pool *redis.Pool
	log  *logrus.Entry
}

func NewPgRepository(db *pg.DB, pool *redis.Pool) *PgRepository {
	return &PgRepository{db: db, pool: pool, log: logging.For("repository")}
}

// EnsureSchema creates the tables if they do not exist yet.
func (r *PgRepository) EnsureSchema() error {
	for _, model := range []interface{}{
		(*models.User)(nil), (*models.Game)(nil),
		(*gameStateRow)(nil), (*transactionRow)(nil), (*auctionRow)(nil),
	} {
		err := r.db.Model(model).CreateTable(&orm.CreateTableOptions{IfNotExists: true})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PgRepository) Load(gameID string) (*models.GameState, error) {
	row := &gameStateRow{Id: gameID}
	if err := r.db.Model(row).WherePK().Select(); err != nil {
		if err == pg.ErrNoRows {
			return nil, &engine.ValidationError{Field: "game_id", Reason: "unknown game"}
		}
		return nil, err
	}
	var state models.GameState
	if err := json.Unmarshal(row.Data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *PgRepository) Save(state *models.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	row := &gameStateRow{Id: state.Id, Data: data, TurnToken: state.TurnToken, Active: state.Active}
	_, err = r.db.Model(row).OnConflict("(id) DO UPDATE").
		Set("data = EXCLUDED.data, turn_token = EXCLUDED.turn_token, active = EXCLUDED.active").
		Insert()
	if err != nil {
		return err
	}
	r.mirror(state.Id, data, state.TurnToken)
	return nil
}

func (r *PgRepository) AppendTransaction(tx *models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	row := &transactionRow{Id: tx.Id, Game_id: tx.Game_id, Data: data}
	_, err = r.db.Model(row).Insert()
	return err
}

func (r *PgRepository) SaveAuction(a *models.Auction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	row := &auctionRow{Id: a.Id, Game_id: a.Game_id, Status: string(a.Status), Data: data}
	_, err = r.db.Model(row).OnConflict("(id) DO UPDATE").
		Set("status = EXCLUDED.status, data = EXCLUDED.data").
		Insert()
	return err
}

// OpenAuctions returns the auctions still running for a game, for deadline
// re-arming after a restart.
func (r *PgRepository) OpenAuctions(gameID string) ([]*models.Auction, error) {
	var rows []auctionRow
	err := r.db.Model(&rows).
		Where("game_id = ?", gameID).
		Where("status = ?", string(models.AuctionOpen)).
		Select()
	if err != nil {
		return nil, err
	}
	auctions := make([]*models.Auction, 0, len(rows))
	for _, row := range rows {
		var a models.Auction
		if err := json.Unmarshal(row.Data, &a); err != nil {
			return nil, err
		}
		auctions = append(auctions, &a)
	}
	return auctions, nil
}

// mirror writes the snapshot into Redis. Failures are logged, not fatal;
// Postgres stays the source of truth.
func (r *PgRepository) mirror(gameID string, data []byte, token string) {
	if r.pool == nil {
		return
	}
	conn := r.pool.Get()
	defer conn.Close()
	if err := cache.Set("game:"+gameID+":snapshot", data, &conn); err != nil {
		r.log.WithError(err).Warn("snapshot mirror failed")
		return
	}
	_ = cache.Set("game:"+gameID+":turn", token, &conn)
	_ = cache.Expire("game:"+gameID+":snapshot", snapshotTTL, &conn)
	_ = cache.Expire("game:"+gameID+":turn", snapshotTTL, &conn)
}

// CachedSnapshot reads the mirrored snapshot, bypassing Postgres. Returns
// redis.ErrNil-wrapped error when nothing is cached.
func (r *PgRepository) CachedSnapshot(gameID string) ([]byte, error) {
	if r.pool == nil {
		return nil, redis.ErrNil
	}
	conn := r.pool.Get()
	defer conn.Close()
	raw, err := cache.Get("game:"+gameID+":snapshot", &conn)
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}
