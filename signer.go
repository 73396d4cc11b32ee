package xmss

import (
	"bytes"
	"crypto/rand"
	"io"
	"sync"
)

// A Signer signs with a private key that is kept in a PrivateKeyContainer.
//
// Before a signature is returned, the private key for the next signature
// is stored in the container.  Thus a signature is never released without
// its one-time key being recorded as used, even if the process crashes.
//
// A Signer is safe for concurrent use.  Signatures are created one by one.
type Signer struct {
	mux    sync.Mutex
	ctx    *Context // fixed for the lifetime of the Signer
	ctr    PrivateKeyContainer
	sk     *PrivateKey
	closed bool
}

// Generates an XMSS[MT] keypair and stores the private key at the given
// path on the filesystem.
// NOTE Do not forget to Close() the returned Signer
func (ctx *Context) GenerateKeyPair(path string) (*Signer, *PublicKey, Error) {
	seeds := make([]byte, 3*ctx.p.N)
	if _, err := io.ReadFull(rand.Reader, seeds); err != nil {
		return nil, nil, wrapErrorf(err, "crypto.rand.Read()")
	}
	ctr, err := OpenFSPrivateKeyContainer(path)
	if err != nil {
		return nil, nil, err
	}
	n := ctx.p.N
	signer, pk, err := ctx.DeriveInto(ctr, seeds[:n], seeds[n:2*n], seeds[2*n:])
	if err != nil {
		ctr.Close()
		return nil, nil, err
	}
	return signer, pk, nil
}

// Derives an XMSS[MT] keypair from the given seeds and stores the private
// key in the container, replacing whatever it held.  pubSeed, skSeed and
// skPrf should be secret random ctx.p.N length byte slices.
func (ctx *Context) DeriveInto(ctr PrivateKeyContainer,
	pubSeed, skSeed, skPrf []byte) (*Signer, *PublicKey, Error) {
	sk, pk, err := ctx.Derive(pubSeed, skSeed, skPrf)
	if err != nil {
		return nil, nil, err
	}
	buf, _ := sk.MarshalBinary()
	if err = ctr.Reset(ctx.p, buf); err != nil {
		return nil, nil, err
	}
	return &Signer{ctx: ctx, ctr: ctr, sk: sk}, pk, nil
}

// Loads the private key stored at the given path on the filesystem.
// NOTE Do not forget to Close() the returned Signer
func LoadSigner(path string) (*Signer, Error) {
	ctr, err := OpenFSPrivateKeyContainer(path)
	if err != nil {
		return nil, err
	}
	signer, err := OpenSigner(ctr)
	if err != nil {
		ctr.Close()
		return nil, err
	}
	return signer, nil
}

// Loads the private key stored in the container.  The Signer takes over
// the container: closing the Signer closes the container.
func OpenSigner(ctr PrivateKeyContainer) (*Signer, Error) {
	if !ctr.Initialized() {
		return nil, errorf("Container is not initialized")
	}
	params, buf, err := ctr.Load()
	if err != nil {
		return nil, err
	}
	ctx, err := NewContext(params)
	if err != nil {
		return nil, err
	}
	sk, err := ctx.PrivateKeyFromBytes(buf)
	if err != nil {
		return nil, err
	}
	log.Logf("Loaded %v private key at signature %d", params, sk.seqNo)
	return &Signer{ctx: ctx, ctr: ctr, sk: sk}, nil
}

// Signs the given message.
func (s *Signer) Sign(msg []byte) (*Signature, Error) {
	return s.SignFrom(bytes.NewReader(msg))
}

// Signs the message read from msg until EOF.
//
// If the successor private key cannot be stored, the signature is
// dropped and the Signer refuses to sign again, as its key is used.
func (s *Signer) SignFrom(msg io.Reader) (*Signature, Error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.closed {
		return nil, errorf("Signer is closed")
	}

	sig, next, err := s.sk.SignFrom(msg)
	if err != nil {
		return nil, err
	}

	buf, _ := next.MarshalBinary()
	if err = s.ctr.Store(buf); err != nil {
		return nil, err
	}
	s.sk = next
	return sig, nil
}

// Returns the public key.
func (s *Signer) PublicKey() *PublicKey {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.sk.PublicKey()
}

// Returns the sequence number of the next signature.
func (s *Signer) SeqNo() SignatureSeqNo {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.sk.SeqNo()
}

// Returns the number of signatures that can still be created.
func (s *Signer) SignaturesRemaining() uint64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.sk.Used() {
		return 0
	}
	return s.sk.SignaturesRemaining()
}

func (s *Signer) Context() *Context {
	return s.ctx
}

// Closes the underlying container.
func (s *Signer) Close() Error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.ctr.Close()
}
