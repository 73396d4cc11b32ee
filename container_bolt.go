package xmss

import (
	"errors"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// How long to wait for the lock on a bbolt database.
const boltLockTimeout = time.Second

var (
	boltParamsKey = []byte("params")
	boltKeyKey    = []byte("key")
)

// PrivateKeyContainer that stores a private key in a bucket of a bbolt
// database.  Several keys can share one database file, each under its
// own name.  bbolt locks the whole file, so at most one process can have
// the database open.
type boltContainer struct {
	db     *bolt.DB
	bucket []byte
	params Params
	closed bool
}

// Returns a PrivateKeyContainer that stores the private key with the
// given name in the bbolt database at path.  The database is created if
// it does not exist.
func OpenBoltPrivateKeyContainer(path, name string) (PrivateKeyContainer, Error) {
	if name == "" {
		return nil, errorf("Key name must not be empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, wrapErrorf(err, "Could not turn %s into an absolute path", path)
	}

	db, err := bolt.Open(absPath, 0600, &bolt.Options{Timeout: boltLockTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			err2 := wrapErrorf(err, "%s is locked", path)
			err2.locked = true
			return nil, err2
		}
		return nil, wrapErrorf(err, "Failed to open %s", path)
	}

	ctr := &boltContainer{db: db, bucket: []byte(name)}
	initialized, err := ctr.hasBucket()
	if err != nil {
		db.Close()
		return nil, wrapErrorf(err, "Failed to read %s", path)
	}
	if initialized {
		var err2 Error
		if ctr.params, _, err2 = ctr.Load(); err2 != nil {
			db.Close()
			return nil, err2
		}
	}

	log.Logf("Opened private key %s in %s", name, absPath)
	return ctr, nil
}

// A database error reads as not initialized; Reset and Load report it.
func (ctr *boltContainer) Initialized() bool {
	if ctr.closed {
		return false
	}
	ret, err := ctr.hasBucket()
	if err != nil {
		log.Logf("Failed to look up %s: %v", ctr.bucket, err)
	}
	return ret
}

func (ctr *boltContainer) hasBucket() (ret bool, err error) {
	err = ctr.db.View(func(tx *bolt.Tx) error {
		ret = tx.Bucket(ctr.bucket) != nil
		return nil
	})
	return
}

func (ctr *boltContainer) Reset(params Params, key []byte) Error {
	if ctr.closed {
		return errorf("Container %s is closed", ctr.bucket)
	}
	paramsBuf, err := params.MarshalBinary()
	if err != nil {
		return wrapErrorf(err, "Failed to encode parameters")
	}
	err = ctr.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(ctr.bucket) != nil {
			if err := tx.DeleteBucket(ctr.bucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(ctr.bucket)
		if err != nil {
			return err
		}
		if err = b.Put(boltParamsKey, paramsBuf); err != nil {
			return err
		}
		return b.Put(boltKeyKey, key)
	})
	if err != nil {
		return wrapErrorf(err, "Failed to reset %s", ctr.bucket)
	}
	ctr.params = params
	return nil
}

func (ctr *boltContainer) Store(key []byte) Error {
	if ctr.closed {
		return errorf("Container %s is closed", ctr.bucket)
	}
	err := ctr.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ctr.bucket)
		if b == nil {
			return errorf("Container %s is not initialized", ctr.bucket)
		}
		return b.Put(boltKeyKey, key)
	})
	if err != nil {
		return wrapErrorf(err, "Failed to store %s", ctr.bucket)
	}
	return nil
}

func (ctr *boltContainer) Load() (Params, []byte, Error) {
	var params Params
	var key []byte
	if ctr.closed {
		return params, nil, errorf("Container %s is closed", ctr.bucket)
	}
	err := ctr.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(ctr.bucket)
		if b == nil {
			return errorf("Container %s is not initialized", ctr.bucket)
		}
		paramsBuf := b.Get(boltParamsKey)
		if paramsBuf == nil {
			return wrapErrorf(ErrInvalidState, "missing parameters")
		}
		if err := params.UnmarshalBinary(paramsBuf); err != nil {
			return err
		}
		// Values are only valid during the transaction.
		key = append([]byte(nil), b.Get(boltKeyKey)...)
		return nil
	})
	if err != nil {
		return params, nil, wrapErrorf(err, "Failed to load %s", ctr.bucket)
	}
	return params, key, nil
}

func (ctr *boltContainer) Close() Error {
	if ctr.closed {
		return nil
	}
	ctr.closed = true
	if err := ctr.db.Close(); err != nil {
		return wrapErrorf(err, "Failed to close database")
	}
	return nil
}
