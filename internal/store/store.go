// Package store persists file content fetched from a device together with
// a metadata record.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/tturner/mcgw/internal/config"
)

// ErrNotFound is returned by Get for an unknown record ID.
var ErrNotFound = errors.New("store: record not found")

// Record describes one stored file.
type Record struct {
	ID        string    `cbor:"1,keyasint" json:"id" yaml:"id"`
	Drive     uint16    `cbor:"2,keyasint" json:"drive" yaml:"drive"`
	Filename  string    `cbor:"3,keyasint" json:"filename" yaml:"filename"`
	Size      int64     `cbor:"4,keyasint" json:"size" yaml:"size"`
	SHA256    string    `cbor:"5,keyasint" json:"sha256" yaml:"sha256"`
	Source    string    `cbor:"6,keyasint,omitempty" json:"source,omitempty" yaml:"source,omitempty"`
	Modified  time.Time `cbor:"7,keyasint" json:"modified,omitzero" yaml:"modified,omitempty"`
	FetchedAt time.Time `cbor:"8,keyasint" json:"fetched_at" yaml:"fetched_at"`
}

// Store persists records and their content.
type Store interface {
	// Put stores data under rec. Missing ID, size, digest and fetch time are
	// filled in; the stored record is returned.
	Put(ctx context.Context, rec Record, data []byte) (Record, error)
	Get(ctx context.Context, id string) (Record, []byte, error)
	// List returns every record, oldest fetch first.
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// complete fills the derived fields of rec for data.
func complete(rec Record, data []byte) (Record, error) {
	if rec.Filename == "" {
		return Record{}, fmt.Errorf("store: filename is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	} else if _, err := uuid.Parse(rec.ID); err != nil {
		return Record{}, fmt.Errorf("store: invalid record id %q: %w", rec.ID, err)
	}
	sum := sha256.Sum256(data)
	rec.SHA256 = hex.EncodeToString(sum[:])
	rec.Size = int64(len(data))
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now()
	}
	rec.FetchedAt = rec.FetchedAt.UTC()
	if !rec.Modified.IsZero() {
		rec.Modified = rec.Modified.UTC()
	}
	return rec, nil
}

func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].FetchedAt.Equal(recs[j].FetchedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].FetchedAt.Before(recs[j].FetchedAt)
	})
}

// New creates a store of the given type from its options map.
//
// Supported types:
//   - "badger": options path, in_memory
//   - "fs": options path
//   - "s3": options bucket, region, key_prefix, endpoint, access_key_id,
//     secret_access_key, max_retries
func New(ctx context.Context, storeType string, options map[string]any) (Store, error) {
	switch storeType {
	case "badger":
		var opts BadgerOptions
		if err := mapstructure.Decode(options, &opts); err != nil {
			return nil, fmt.Errorf("decode badger store options: %w", err)
		}
		return NewBadger(opts)
	case "fs":
		var opts FSOptions
		if err := mapstructure.Decode(options, &opts); err != nil {
			return nil, fmt.Errorf("decode fs store options: %w", err)
		}
		return NewFS(opts)
	case "s3":
		var opts S3Options
		if err := mapstructure.Decode(options, &opts); err != nil {
			return nil, fmt.Errorf("decode s3 store options: %w", err)
		}
		return NewS3(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown store type: %q", storeType)
	}
}

// FromConfig creates the configured store, or returns nil when the store
// is disabled.
func FromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	if cfg.Type == "" || cfg.Type == "none" {
		return nil, nil
	}
	return New(ctx, cfg.Type, cfg.Options)
}
