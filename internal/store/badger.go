package store

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// Key layout:
//
//	r:<id>  CBOR-encoded Record
//	d:<id>  raw content
const (
	prefixRecord = "r:"
	prefixData   = "d:"
)

var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.CanonicalEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	recordEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	recordDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

// BadgerOptions configures the badger backend.
type BadgerOptions struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// BadgerStore keeps records and content in an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadger opens (or creates) the database.
func NewBadger(opts BadgerOptions) (*BadgerStore, error) {
	var bopts badger.Options
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case opts.Path != "":
		bopts = badger.DefaultOptions(opts.Path)
	default:
		return nil, fmt.Errorf("badger store: path is required")
	}
	bopts = bopts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", opts.Path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Put(ctx context.Context, rec Record, data []byte) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err := complete(rec, data)
	if err != nil {
		return Record{}, err
	}
	encoded, err := recordEncMode.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixData+rec.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixRecord+rec.ID), encoded)
	})
	if err != nil {
		return Record{}, fmt.Errorf("store %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (s *BadgerStore) Get(ctx context.Context, id string) (Record, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, nil, err
	}
	var (
		rec  Record
		data []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRecord + id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return recordDecMode.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		item, err = txn.Get([]byte(prefixData + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, nil, ErrNotFound
	}
	if err != nil {
		return Record{}, nil, fmt.Errorf("load %s: %w", id, err)
	}
	return rec, data, nil
}

func (s *BadgerStore) List(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRecord)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return recordDecMode.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(recs)
	return recs, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
