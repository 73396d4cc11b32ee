package xmss

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash"
	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
	"github.com/nightlyone/lockfile"
)

// A PrivateKeyContainer persists a private key, including its traversal
// states, together with the parameters it belongs to.
//
// Every signature changes the private key.  A Signer stores the successor
// key before it releases a signature, so a container must not report
// success on Store before the new key is durable.
type PrivateKeyContainer interface {
	// Reset (or initialize) the container with the given parameters and
	// serialized private key.
	Reset(params Params, key []byte) Error

	// Replaces the stored private key.  The container must be initialized.
	Store(key []byte) Error

	// Returns the stored parameters and private key.
	Load() (params Params, key []byte, err Error)

	// Returns whether the container is initialized (eg. whether its
	// files exist.)
	Initialized() bool

	// Releases the container and its locks.
	Close() Error
}

// Magic at the start of a private key file.
var fsContainerMagic = []byte("XMSSKEY\x01")

// Size of the header of a private key file: magic, params and checksum.
const fsContainerHeaderSize = 8 + paramsEncodedSize + 8

// PrivateKeyContainer backed by two files:
//
//	path/to/key        contains the parameters and the private key
//	path/to/key.lock   a lockfile
//
// The key file is never modified in place: Store writes path/to/key.tmp
// and renames it over the key file.
type fsContainer struct {
	flock       lockfile.Lockfile // file lock
	path        string            // absolute path of the key file
	params      Params
	initialized bool
	closed      bool
}

// Returns a PrivateKeyContainer backed by the filesystem.  The container
// is locked until Close is called.
func OpenFSPrivateKeyContainer(path string) (PrivateKeyContainer, Error) {
	var ctr fsContainer
	var err error

	ctr.path, err = filepath.Abs(path)
	if err != nil {
		return nil, wrapErrorf(err, "Could not turn %s into an absolute path", path)
	}

	lockFilePath := ctr.path + ".lock"
	ctr.flock, err = lockfile.New(lockFilePath)
	if err != nil {
		return nil, wrapErrorf(err, "Failed to create lockfile %s", lockFilePath)
	}

	err = ctr.flock.TryLock()
	if err != nil {
		if tmp, ok := err.(interface {
			Temporary() bool
		}); ok && tmp.Temporary() {
			err2 := wrapErrorf(err, "%s is locked", path)
			err2.locked = true
			return nil, err2
		}
		return nil, wrapErrorf(err, "Failed to lock %s", lockFilePath)
	}

	if _, err = os.Stat(ctr.path); err == nil {
		ctr.initialized = true
		if ctr.params, _, err = ctr.Load(); err != nil {
			ctr.flock.Unlock()
			return nil, err.(Error)
		}
	} else if !os.IsNotExist(err) {
		ctr.flock.Unlock()
		return nil, wrapErrorf(err, "Failed to stat %s", ctr.path)
	}

	log.Logf("Opened private key container %s", ctr.path)
	return &ctr, nil
}

func (ctr *fsContainer) Initialized() bool {
	return ctr.initialized
}

func (ctr *fsContainer) Reset(params Params, key []byte) Error {
	if ctr.closed {
		return errorf("Container %s is closed", ctr.path)
	}
	if err := ctr.write(params, key); err != nil {
		return err
	}
	ctr.params = params
	ctr.initialized = true
	return nil
}

func (ctr *fsContainer) Store(key []byte) Error {
	if ctr.closed {
		return errorf("Container %s is closed", ctr.path)
	}
	if !ctr.initialized {
		return errorf("Container %s is not initialized", ctr.path)
	}
	return ctr.write(ctr.params, key)
}

// Writes the key file atomically.
func (ctr *fsContainer) write(params Params, key []byte) Error {
	paramsBuf, err := params.MarshalBinary()
	if err != nil {
		return wrapErrorf(err, "Failed to encode parameters")
	}

	buf := make([]byte, fsContainerHeaderSize+len(key))
	copy(buf, fsContainerMagic)
	copy(buf[8:], paramsBuf)
	binary.BigEndian.PutUint64(buf[8+paramsEncodedSize:], xxhash.Sum64(key))
	copy(buf[fsContainerHeaderSize:], key)

	tmpPath := ctr.path + ".tmp"
	if err = writeFileSync(tmpPath, buf); err != nil {
		return wrapErrorf(multierror.Append(err, removeIfExists(tmpPath)),
			"Failed to write %s", tmpPath)
	}
	if err = os.Rename(tmpPath, ctr.path); err != nil {
		return wrapErrorf(multierror.Append(err, removeIfExists(tmpPath)),
			"Failed to move %s into place", tmpPath)
	}
	if err = syncDir(filepath.Dir(ctr.path)); err != nil {
		return wrapErrorf(err, "Failed to sync directory of %s", ctr.path)
	}
	return nil
}

func (ctr *fsContainer) Load() (Params, []byte, Error) {
	var params Params
	if ctr.closed {
		return params, nil, errorf("Container %s is closed", ctr.path)
	}
	if !ctr.initialized {
		return params, nil, errorf("Container %s is not initialized", ctr.path)
	}

	f, err := os.Open(ctr.path)
	if err != nil {
		return params, nil, wrapErrorf(err, "Failed to open %s", ctr.path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return params, nil, wrapErrorf(err, "Failed to stat %s", ctr.path)
	}
	if fi.Size() < fsContainerHeaderSize {
		return params, nil, wrapErrorf(ErrInvalidState,
			"%s is too short (%d bytes)", ctr.path, fi.Size())
	}

	buf, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return params, nil, wrapErrorf(err, "Failed to mmap %s", ctr.path)
	}
	defer buf.Unmap()

	if !bytes.Equal(buf[:8], fsContainerMagic) {
		return params, nil, wrapErrorf(ErrInvalidState,
			"%s is not a private key file", ctr.path)
	}
	if err = params.UnmarshalBinary(buf[8 : 8+paramsEncodedSize]); err != nil {
		return params, nil, wrapErrorf(err, "%s has invalid parameters",
			ctr.path)
	}
	key := append([]byte(nil), buf[fsContainerHeaderSize:]...)
	if xxhash.Sum64(key) != binary.BigEndian.Uint64(
		buf[8+paramsEncodedSize:fsContainerHeaderSize]) {
		return params, nil, wrapErrorf(ErrInvalidState,
			"%s: checksum mismatch", ctr.path)
	}
	return params, key, nil
}

func (ctr *fsContainer) Close() Error {
	if ctr.closed {
		return nil
	}
	ctr.closed = true
	if err := ctr.flock.Unlock(); err != nil {
		return wrapErrorf(err, "Failed to unlock %s", ctr.path)
	}
	return nil
}

// Writes buf to a new file at path and flushes it to disk.
func writeFileSync(path string, buf []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err = f.Write(buf); err != nil {
		return multierror.Append(err, f.Close())
	}
	if err = f.Sync(); err != nil {
		return multierror.Append(err, f.Close())
	}
	return f.Close()
}

// Flushes the directory entries of dir, such as a rename, to disk.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err = d.Sync(); err != nil {
		return multierror.Append(err, d.Close())
	}
	return d.Close()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
