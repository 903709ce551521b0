package secrets

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotblauer/stravad/params"
	bbolt "go.etcd.io/bbolt"
)

// Bolt is a local versioned secret store.
// Each secret is a nested bucket under params.SecretsBucket,
// keyed by big-endian version sequence.
type Bolt struct {
	DB *bbolt.DB
}

type boltVersion struct {
	Value     string `json:"value,omitempty"`
	Destroyed bool   `json:"destroyed,omitempty"`
}

func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open secrets db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(params.SecretsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{DB: db}, nil
}

func versionKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func parseVersion(version string) ([]byte, error) {
	seq, err := strconv.ParseUint(version, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", version, err)
	}
	return versionKey(seq), nil
}

func (b *Bolt) Access(ctx context.Context, name string) (string, error) {
	var value string
	err := b.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(params.SecretsBucket).Bucket([]byte(name))
		if bucket == nil {
			return ErrNotFound
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			bv := boltVersion{}
			if err := json.Unmarshal(v, &bv); err != nil {
				return err
			}
			if !bv.Destroyed {
				value = bv.Value
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return "", fmt.Errorf("access %s: %w", name, err)
	}
	return value, nil
}

func (b *Bolt) Add(ctx context.Context, name, value string) (string, error) {
	var version string
	err := b.DB.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(params.SecretsBucket).CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		v, err := json.Marshal(boltVersion{Value: value})
		if err != nil {
			return err
		}
		version = strconv.FormatUint(seq, 10)
		return bucket.Put(versionKey(seq), v)
	})
	if err != nil {
		return "", fmt.Errorf("add %s: %w", name, err)
	}
	return version, nil
}

// Versions returns enabled versions, newest first.
func (b *Bolt) Versions(ctx context.Context, name string) ([]string, error) {
	versions := []string{}
	err := b.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(params.SecretsBucket).Bucket([]byte(name))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			bv := boltVersion{}
			if err := json.Unmarshal(v, &bv); err != nil {
				return err
			}
			if !bv.Destroyed {
				versions = append(versions, strconv.FormatUint(binary.BigEndian.Uint64(k), 10))
			}
		}
		return nil
	})
	return versions, err
}

func (b *Bolt) Destroy(ctx context.Context, name, version string) error {
	key, err := parseVersion(version)
	if err != nil {
		return err
	}
	return b.DB.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(params.SecretsBucket).Bucket([]byte(name))
		if bucket == nil || bucket.Get(key) == nil {
			return fmt.Errorf("destroy %s version %s: %w", name, version, ErrNotFound)
		}
		v, err := json.Marshal(boltVersion{Destroyed: true})
		if err != nil {
			return err
		}
		return bucket.Put(key, v)
	})
}

func (b *Bolt) Close() error {
	return b.DB.Close()
}
