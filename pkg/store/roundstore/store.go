package roundstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/fystack/plinko-engine/pkg/kvstore"
)

var ErrRoundNotFound = errors.New("round not found")

// Round is a per-user fairness session. Seed stays empty until the round is over.
type Round struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Game        enum.Game  `json:"game"`
	Hash        string     `json:"hash"`
	Seed        string     `json:"seed,omitempty"`
	Nonce       uint64     `json:"nonce"`
	RoundOver   bool       `json:"round_over"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func roundKey(game enum.Game, id string) string {
	return fmt.Sprintf("%s/%s/%s", constant.KVPrefixRounds, game, id)
}

func openKey(game enum.Game, userID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", constant.KVPrefixRounds, game, constant.KVKeyOpen, userID)
}

type Store interface {
	Get(game enum.Game, id string) (*Round, error)
	// Open returns the user's open round, or nil when there is none.
	Open(game enum.Game, userID string) (*Round, error)
	Save(r *Round) error
}

type roundStore struct {
	store infra.KVStore
}

func NewRoundStore(store infra.KVStore) Store {
	return &roundStore{store: store}
}

func (s *roundStore) Get(game enum.Game, id string) (*Round, error) {
	if id == "" {
		return nil, errors.New("round id is required")
	}
	var r Round
	found, err := s.store.GetAny(roundKey(game, id), &r)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrRoundNotFound, game, id)
	}
	return &r, nil
}

func (s *roundStore) Open(game enum.Game, userID string) (*Round, error) {
	id, err := s.store.Get(openKey(game, userID))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	r, err := s.Get(game, id)
	if err != nil {
		return nil, err
	}
	if r.RoundOver {
		return nil, nil
	}
	return r, nil
}

// Save writes the round and keeps the user's open-round pointer in step with it.
func (s *roundStore) Save(r *Round) error {
	if r == nil || r.ID == "" || r.UserID == "" {
		return errors.New("round id and user id are required")
	}
	if err := s.store.SetAny(roundKey(r.Game, r.ID), r); err != nil {
		return err
	}
	if r.RoundOver {
		return s.store.Delete(openKey(r.Game, r.UserID))
	}
	return s.store.Set(openKey(r.Game, r.UserID), r.ID)
}
