package storage

import (
	"errors"

	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("state")

// BoltDB is a persistent key-value store backed by a single bbolt bucket. It
// trades LevelDB's write throughput for a single-file deployment footprint.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates or opens a bbolt database file at the specified path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

func (bdb *BoltDB) Put(key []byte, value []byte) error {
	return bdb.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put(key, value)
	})
}

func (bdb *BoltDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := bdb.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(stateBucket).Get(key)
		if stored == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), stored...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (bdb *BoltDB) Has(key []byte) (bool, error) {
	_, err := bdb.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (bdb *BoltDB) Delete(key []byte) error {
	return bdb.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Delete(key)
	})
}

func (bdb *BoltDB) Close() error {
	return bdb.db.Close()
}
