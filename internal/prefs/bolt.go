package prefs

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketName = "preferences"
	recordKey  = "default"
)

// Preferences are the user settings remembered between runs. Scans
// themselves are never stored.
type Preferences struct {
	Instructions string    `json:"instructions"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BoltStore keeps preferences in a BoltDB file
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltStore opens (or creates) the preference file at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Load returns the stored preferences, or the zero value if none were saved
func (b *BoltStore) Load() (Preferences, error) {
	var p Preferences
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(recordKey))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshaling preferences: %w", err)
		}
		return nil
	})
	return p, err
}

// Save replaces the stored preferences
func (b *BoltStore) Save(p Preferences) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		p.UpdatedAt = b.now()
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling preferences: %w", err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(recordKey), data)
	})
}

// LoadInstructions returns the remembered instruction text
func (b *BoltStore) LoadInstructions() (string, error) {
	p, err := b.Load()
	if err != nil {
		return "", err
	}
	return p.Instructions, nil
}

// SaveInstructions remembers the instruction text
func (b *BoltStore) SaveInstructions(instructions string) error {
	p, err := b.Load()
	if err != nil {
		return err
	}
	p.Instructions = instructions
	return b.Save(p)
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
