// Package poolstore persists pool configurations and worker records in a
// bolt database. It is the persistence collaborator pool coordinators pull
// their state from.
package poolstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"gitlab.com/NebulousLabs/errors"

	"github.com/MobiusL/ecoinpool/modules"
	"github.com/MobiusL/ecoinpool/persist"
)

const (
	dbFile = "poolstore.db"
)

var (
	dbMetadata = persist.Metadata{
		Header:  "Pool Store",
		Version: "0.4.0",
	}

	bucketPoolConfigs = []byte("PoolConfigs")
	bucketWorkers     = []byte("Workers")
)

// Store is a bolt-backed pool and worker database. It implements
// modules.PoolStore. Worker records live in nested per-pool buckets so a
// pool's full worker list is one bucket scan.
type Store struct {
	db *persist.BoltDatabase
}

// New opens (creating if necessary) the pool store in the given directory.
func New(persistDir string) (*Store, error) {
	err := os.MkdirAll(persistDir, 0700)
	if err != nil {
		return nil, errors.AddContext(err, "unable to create pool store directory")
	}
	db, err := persist.OpenDatabase(dbMetadata, filepath.Join(persistDir, dbFile))
	if err != nil {
		return nil, errors.AddContext(err, "unable to open pool store database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPoolConfigs, bucketWorkers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.AddContext(err, "unable to create pool store buckets")
	}
	return &Store{db: db}, nil
}

// PoolConfig returns the configuration of one pool, or
// modules.ErrPoolNotFound.
func (s *Store) PoolConfig(id modules.PoolID) (modules.PoolConfig, error) {
	var cfg modules.PoolConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPoolConfigs).Get([]byte(id))
		if b == nil {
			return modules.ErrPoolNotFound
		}
		return json.Unmarshal(b, &cfg)
	})
	return cfg, err
}

// Pools lists the ids of all stored pool configurations.
func (s *Store) Pools() ([]modules.PoolID, error) {
	var ids []modules.PoolID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPoolConfigs).ForEach(func(k, _ []byte) error {
			ids = append(ids, modules.PoolID(k))
			return nil
		})
	})
	return ids, err
}

// UpsertPoolConfig stores a pool configuration, replacing any previous
// configuration with the same id.
func (s *Store) UpsertPoolConfig(cfg modules.PoolConfig) error {
	if cfg.ID == "" {
		return errors.New("pool configuration needs an id")
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPoolConfigs).Put([]byte(cfg.ID), b)
	})
}

// WorkersForPools returns every worker belonging to any of the given pools.
func (s *Store) WorkersForPools(ids []modules.PoolID) ([]modules.Worker, error) {
	var workers []modules.Worker
	err := s.db.View(func(tx *bolt.Tx) error {
		workersBucket := tx.Bucket(bucketWorkers)
		for _, id := range ids {
			poolBucket := workersBucket.Bucket([]byte(id))
			if poolBucket == nil {
				continue
			}
			err := poolBucket.ForEach(func(_, v []byte) error {
				var w modules.Worker
				if err := json.Unmarshal(v, &w); err != nil {
					return err
				}
				workers = append(workers, w)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return workers, err
}

// UpsertWorker stores a worker record, replacing any previous record with
// the same id.
func (s *Store) UpsertWorker(w modules.Worker) error {
	if w.ID == "" || w.Name == "" || w.Pool == "" {
		return errors.New("worker record needs an id, a name, and a pool")
	}
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		poolBucket, err := tx.Bucket(bucketWorkers).CreateBucketIfNotExists([]byte(w.Pool))
		if err != nil {
			return err
		}
		return poolBucket.Put([]byte(w.ID), b)
	})
}

// RemoveWorker deletes a worker record. Removing an unknown worker is not an
// error.
func (s *Store) RemoveWorker(pool modules.PoolID, id modules.WorkerID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		poolBucket := tx.Bucket(bucketWorkers).Bucket([]byte(pool))
		if poolBucket == nil {
			return nil
		}
		return poolBucket.Delete([]byte(id))
	})
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
