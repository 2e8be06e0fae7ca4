package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/skycoin/skycoin/src/util/logging"
	"go.etcd.io/bbolt"

	"github.com/skycoin/datalink/pkg/arq"
)

var boltDBBucket = []byte("runs")
var log = logging.MustGetLogger("store")

type boltDBRunStore struct {
	db *bbolt.DB
}

// BoltDB creates a RunStore backed by the BoltDB file at path.
func BoltDB(path string) (RunStore, error) {
	return openBoltDB(path, nil)
}

func openBoltDB(path string, opts *bbolt.Options) (RunStore, error) {
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltDBBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %s", err)
		}

		return nil
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("failed to close database")
		}
		return nil, err
	}

	return &boltDBRunStore{db: db}, nil
}

func (s *boltDBRunStore) Record(sum arq.RunSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).Put(sum.ID[:], data)
	})
}

func (s *boltDBRunStore) Run(id uuid.UUID) (arq.RunSummary, error) {
	var sum arq.RunSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(boltDBBucket).Get(id[:])
		if data == nil {
			return ErrRunNotFound
		}
		return json.Unmarshal(data, &sum)
	})

	return sum, err
}

func (s *boltDBRunStore) Runs() ([]arq.RunSummary, error) {
	var runs []arq.RunSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).ForEach(func(k, v []byte) error {
			var sum arq.RunSummary
			if err := json.Unmarshal(v, &sum); err != nil {
				log.WithError(err).Warnf("skipping corrupt run record %x", k)
				return nil
			}
			runs = append(runs, sum)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortRuns(runs)
	return runs, nil
}

func (s *boltDBRunStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
