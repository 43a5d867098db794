package accounts

import (
	"errors"
	"fmt"
	"time"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/keys"
	"github.com/ATMackay/neb-signer/keystore"
	bolt "go.etcd.io/bbolt"
)

var (
	// recordsBucket maps the raw 26 byte address to the JSON keystore record.
	recordsBucket = []byte("records")

	openTimeout = time.Second
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrMissingAddress = errors.New("keystore record has no address")
)

// Store persists keystore records in a bbolt database, one record per address.
// Records are kept encrypted exactly as supplied.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the record database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open keystore db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores r under its address, replacing any previous record.
func (s *Store) Put(r *keystore.Record) (address.Address, error) {
	if r.Address == "" {
		return address.Address{}, ErrMissingAddress
	}
	addr, err := address.Decode(r.Address, address.Normal)
	if err != nil {
		return address.Address{}, err
	}
	b, err := r.Marshal()
	if err != nil {
		return address.Address{}, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put(addr[:], b)
	})
	return addr, err
}

// Import parses a JSON keystore document and stores it.
func (s *Store) Import(doc []byte) (address.Address, error) {
	r, err := keystore.Unmarshal(doc)
	if err != nil {
		return address.Address{}, err
	}
	return s.Put(r)
}

// Get returns the record stored for addr.
func (s *Store) Get(addr address.Address) (*keystore.Record, error) {
	var b []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get(addr[:])
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, addr)
		}
		// v is only valid for the life of the transaction
		b = append([]byte(nil), v...)
		return nil
	}); err != nil {
		return nil, err
	}
	return keystore.Unmarshal(b)
}

// List returns the addresses of every stored record in key order.
func (s *Store) List() ([]address.Address, error) {
	var out []address.Address
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, _ []byte) error {
			addr, err := address.FromBytes(k)
			if err != nil {
				return err
			}
			out = append(out, addr)
			return nil
		})
	})
	return out, err
}

// Delete removes the record for addr.
func (s *Store) Delete(addr address.Address) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b.Get(addr[:]) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, addr)
		}
		return b.Delete(addr[:])
	})
}

// Unlock loads the record for addr and decrypts it with passphrase.
func (s *Store) Unlock(addr address.Address, passphrase string) (*keys.Key, error) {
	r, err := s.Get(addr)
	if err != nil {
		return nil, err
	}
	return keystore.DecryptKey(r, passphrase)
}

// Create generates a fresh key, stores it encrypted under passphrase and returns it.
func (s *Store) Create(passphrase string, opts *keystore.Options) (*keys.Key, error) {
	k, err := keys.Generate()
	if err != nil {
		return nil, err
	}
	priv := k.PrivateKey()
	defer clear(priv)
	r, err := keystore.Encrypt(priv, passphrase, opts)
	if err != nil {
		k.Zero()
		return nil, err
	}
	if _, err := s.Put(r); err != nil {
		k.Zero()
		return nil, err
	}
	return k, nil
}
