package chainstore

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/fystack/plinko-engine/pkg/kvstore"
)

var ErrLinkNotFound = errors.New("chain link not found")

// Link is one entry of a board epoch hash chain.
type Link struct {
	Index        int64  `json:"index"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
}

func linksPrefix(game enum.Game) string {
	return fmt.Sprintf("%s/%s/links/", constant.KVPrefixChain, game)
}

// indexes are zero padded so prefix listing returns links in order
func linkKey(game enum.Game, index int64) string {
	return fmt.Sprintf("%s%012d", linksPrefix(game), index)
}

func headKey(game enum.Game) string {
	return fmt.Sprintf("%s/%s/%s", constant.KVPrefixChain, game, constant.KVKeyHead)
}

type Store interface {
	// Head returns the highest persisted index; ok is false for an empty chain.
	Head(game enum.Game) (index int64, ok bool, err error)
	Get(game enum.Game, index int64) (Link, error)
	// SaveBatch persists links and then advances the head to the last one.
	SaveBatch(game enum.Game, links []Link) error
	List(game enum.Game) ([]Link, error)
	Close() error
}

type chainStore struct {
	store infra.KVStore
}

func NewChainStore(store infra.KVStore) Store {
	return &chainStore{store: store}
}

func (s *chainStore) Head(game enum.Game) (int64, bool, error) {
	v, err := s.store.Get(headKey(game))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	index, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt chain head %q: %w", v, err)
	}
	return index, true, nil
}

func (s *chainStore) Get(game enum.Game, index int64) (Link, error) {
	var link Link
	found, err := s.store.GetAny(linkKey(game, index), &link)
	if err != nil {
		return Link{}, err
	}
	if !found {
		return Link{}, fmt.Errorf("%w: %s index %d", ErrLinkNotFound, game, index)
	}
	return link, nil
}

func (s *chainStore) SaveBatch(game enum.Game, links []Link) error {
	if len(links) == 0 {
		return nil
	}
	values := make(map[string]any, len(links))
	for _, l := range links {
		values[linkKey(game, l.Index)] = l
	}
	if err := s.store.SetBatch(values); err != nil {
		return err
	}
	return s.store.Set(headKey(game), strconv.FormatInt(links[len(links)-1].Index, 10))
}

func (s *chainStore) List(game enum.Game) ([]Link, error) {
	pairs, err := s.store.List(linksPrefix(game))
	if err != nil {
		return nil, err
	}
	links := make([]Link, 0, len(pairs))
	for _, p := range pairs {
		var l Link
		if err := infra.JSON.Unmarshal(p.Value, &l); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p.Key, err)
		}
		links = append(links, l)
	}
	return links, nil
}

func (s *chainStore) Close() error {
	return s.store.Close()
}
