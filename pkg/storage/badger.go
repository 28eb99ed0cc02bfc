package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	pkgerrors "github.com/edgechain/edgechain/pkg/errors"
	"github.com/edgechain/edgechain/pkg/fl"
)

const (
	typeGlobalModel       = "global_model"
	typeAggregationResult = "aggregation_result"
	typeRoundCounters     = "round_counters"
	typeString            = "string"
	typeRaw               = "raw"
)

type storedValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type badgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens, or creates, a Badger-backed Storage under
// dataDir. Values are stored as typed JSON envelopes so reads return the
// same concrete Go types that were written.
func NewBadgerStorage(dataDir string) (Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger.db"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &badgerStorage{db: db}, nil
}

func (s *badgerStorage) Close() error {
	return s.db.Close()
}

func (s *badgerStorage) Create(_ context.Context, key string, value any) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return pkgerrors.ErrEntityExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check key existence: %w", err)
		}

		return writeValue(txn, key, value)
	})
}

func (s *badgerStorage) Get(_ context.Context, key string) (any, error) {
	if key == "" {
		return nil, pkgerrors.ErrEmptyKey
	}

	var result any
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return pkgerrors.ErrNotFound
			}

			return fmt.Errorf("failed to get key: %w", err)
		}

		return item.Value(func(val []byte) error {
			result, err = unmarshalValue(val)

			return err
		})
	})

	return result, err
}

func (s *badgerStorage) Update(_ context.Context, key string, value any) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return pkgerrors.ErrNotFound
			}

			return fmt.Errorf("failed to check key existence: %w", err)
		}

		return writeValue(txn, key, value)
	})
}

func (s *badgerStorage) Upsert(_ context.Context, key string, value any) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return writeValue(txn, key, value)
	})
}

func (s *badgerStorage) List(_ context.Context, prefix string, offset, limit uint64) ([]any, uint64, error) {
	var result []any
	var total uint64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var idx uint64
		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			total++
			if idx < offset || uint64(len(result)) >= limit {
				idx++

				continue
			}
			idx++

			err := it.Item().Value(func(val []byte) error {
				v, err := unmarshalValue(val)
				if err != nil {
					return err
				}
				result = append(result, v)

				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (s *badgerStorage) Delete(_ context.Context, key string) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func writeValue(txn *badger.Txn, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	env := storedValue{Type: typeName(value), Value: data}
	envData, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return txn.Set([]byte(key), envData)
}

func typeName(value any) string {
	switch value.(type) {
	case fl.GlobalModel, *fl.GlobalModel:
		return typeGlobalModel
	case fl.AggregationResult, *fl.AggregationResult:
		return typeAggregationResult
	case fl.RoundCounters, *fl.RoundCounters:
		return typeRoundCounters
	case string:
		return typeString
	default:
		return typeRaw
	}
}

func unmarshalValue(data []byte) (any, error) {
	var env storedValue
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	switch env.Type {
	case typeGlobalModel:
		var v fl.GlobalModel
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}

		return v, nil
	case typeAggregationResult:
		var v fl.AggregationResult
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}

		return v, nil
	case typeRoundCounters:
		var v fl.RoundCounters
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}

		return v, nil
	case typeString:
		var v string
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}

		return v, nil
	default:
		var v map[string]any
		if err := json.Unmarshal(env.Value, &v); err != nil {
			return nil, err
		}

		return v, nil
	}
}
