package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/markusressel/heat2go/internal/ui"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketZones    = "zones"
	BucketCoupling = "coupling"

	keyCouplingLearner = "learner"
)

type Persistence interface {
	Init() error

	LoadZoneState(zoneId string) (map[string]interface{}, error)
	SaveZoneState(zoneId string, state map[string]interface{}) error
	DeleteZoneState(zoneId string) error
	// ZoneIds returns the ids of all zones with a stored state
	ZoneIds() ([]string, error)

	LoadCouplingState() (map[string]interface{}, error)
	SaveCouplingState(state map[string]interface{}) error
	DeleteCouplingState() error
}

type persistence struct {
	dbPath string
}

func NewPersistence(dbPath string) Persistence {
	p := &persistence{
		dbPath: dbPath,
	}
	return p
}

func (p persistence) Init() (err error) {
	// get parent path of dbPath
	parentDir := filepath.Dir(p.dbPath)
	_, err = os.Stat(parentDir)
	if errors.Is(err, os.ErrNotExist) {
		ui.Info("Creating directory for db: %s", parentDir)
		err = os.MkdirAll(parentDir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p persistence) openPersistence() (db *bolt.DB, err error) {
	db, err = bolt.Open(p.dbPath, 0600, &bolt.Options{Timeout: 1 * time.Minute})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// LoadZoneState loads the learned state of the given zone
func (p persistence) LoadZoneState(zoneId string) (map[string]interface{}, error) {
	return p.load(BucketZones, zoneId)
}

// SaveZoneState saves the learned state of the given zone
func (p persistence) SaveZoneState(zoneId string, state map[string]interface{}) error {
	return p.save(BucketZones, zoneId, state)
}

func (p persistence) DeleteZoneState(zoneId string) error {
	return p.delete(BucketZones, zoneId)
}

func (p persistence) ZoneIds() ([]string, error) {
	db, err := p.openPersistence()
	if err != nil {
		return nil, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var ids []string
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketZones))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// LoadCouplingState loads the state of the thermal coupling learner
func (p persistence) LoadCouplingState() (map[string]interface{}, error) {
	return p.load(BucketCoupling, keyCouplingLearner)
}

// SaveCouplingState saves the state of the thermal coupling learner
func (p persistence) SaveCouplingState(state map[string]interface{}) error {
	return p.save(BucketCoupling, keyCouplingLearner, state)
}

func (p persistence) DeleteCouplingState() error {
	return p.delete(BucketCoupling, keyCouplingLearner)
}

func (p persistence) save(bucket string, key string, state map[string]interface{}) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("unable to serialize %s/%s: %w", bucket, key, err)
	}

	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		return b.Put([]byte(key), data)
	})
}

// load returns os.ErrNotExist if there is no (readable) entry for the given key.
// Corrupt entries are deleted.
func (p persistence) load(bucket string, key string) (map[string]interface{}, error) {
	db, err := p.openPersistence()
	if err != nil {
		return nil, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var state map[string]interface{}
	corrupt := false
	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return os.ErrNotExist
		}
		v := b.Get([]byte(key))
		if v == nil {
			return os.ErrNotExist
		}

		err := json.Unmarshal(v, &state)
		if err != nil || state == nil {
			// if we cannot read the saved data, delete it
			ui.Warning("Unable to unmarshal saved %s data for %s: %v", bucket, key, err)
			err := b.Delete([]byte(key))
			if err != nil {
				ui.Error("Unable to delete corrupt data key %s: %v", key, err)
			}
			// returning nil commits the deletion
			corrupt = true
			return nil
		}
		return nil
	})
	if err == nil && corrupt {
		return nil, os.ErrNotExist
	}

	return state, err
}

func (p persistence) delete(bucket string, key string) error {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			// no bucket yet
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			// no data for given key
			return nil
		}

		return b.Delete([]byte(key))
	})
}
