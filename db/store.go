package db

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/sirupsen/logrus"
)

const (
	tokenPrefix   = "token/"
	receiptPrefix = "receipt/"
)

// Store keeps vault token ids and a journal of submitted operations. It
// satisfies buyout.TokenCache.
type Store struct {
	db  DB
	log *logrus.Logger
}

// NewStore wraps db. log may be nil.
func NewStore(db DB, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{db: db, log: log}
}

// Open opens the LevelDB at path as a Store.
func Open(path string, log *logrus.Logger) (*Store, error) {
	l, err := NewLevelDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache at %s: %w", path, err)
	}
	return NewStore(l, log), nil
}

func (s *Store) Close() error { return s.db.Close() }

func tokenKey(chainID uint64, vault common.Address) []byte {
	return []byte(fmt.Sprintf("%s%d/%s", tokenPrefix, chainID, vault.Hex()))
}

// Token returns the cached token of vault. Read failures count as misses.
func (s *Store) Token(chainID uint64, vault common.Address) (types.TokenInfo, bool) {
	data, err := s.db.Get(tokenKey(chainID, vault))
	if err != nil {
		s.log.Warnf("Failed to read cached token of vault %s: %v", vault.Hex(), err)
		return types.TokenInfo{}, false
	}
	if data == nil {
		return types.TokenInfo{}, false
	}
	var info types.TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		s.log.Warnf("Dropping corrupt token entry of vault %s: %v", vault.Hex(), err)
		return types.TokenInfo{}, false
	}
	return info, true
}

func (s *Store) PutToken(chainID uint64, vault common.Address, info types.TokenInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.db.Put(tokenKey(chainID, vault), data)
}

// Entry is one journaled operation.
type Entry struct {
	ChainID uint64         `json:"chainId"`
	Op      string         `json:"op"`
	Vault   common.Address `json:"vault"`
	Receipt *types.Receipt `json:"receipt"`
	Time    time.Time      `json:"time"`
}

func receiptKey(chainID uint64, hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%d/%s", receiptPrefix, chainID, hash.Hex()))
}

// Record journals the receipt of an operation.
func (s *Store) Record(e Entry) error {
	if e.Receipt == nil {
		return fmt.Errorf("no receipt to record for %s", e.Op)
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.db.Put(receiptKey(e.ChainID, e.Receipt.TxHash), data); err != nil {
		return err
	}
	s.log.Debugf("Journaled %s tx=%s", e.Op, e.Receipt.TxHash.Hex())
	return nil
}

// Receipt looks up one journaled operation.
func (s *Store) Receipt(chainID uint64, hash common.Hash) (*Entry, error) {
	data, err := s.db.Get(receiptKey(chainID, hash))
	if err != nil || data == nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Journal returns the operations recorded on chainID, oldest first. A zero
// vault matches every vault.
func (s *Store) Journal(chainID uint64, vault common.Address) ([]Entry, error) {
	var out []Entry
	prefix := []byte(fmt.Sprintf("%s%d/", receiptPrefix, chainID))
	err := s.db.Iterate(prefix, func(_, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return err
		}
		if vault == (common.Address{}) || e.Vault == vault {
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
