package srp

import (
	"crypto/sha256"
	"crypto/subtle"
	"math/big"

	"github.com/heliannuuthus-iam/authn-api/internal/domain"
)

// Server performs the host side of an SRP-6a handshake over a fixed group.
type Server struct {
	group *Group
}

// ServerVerifier is the outcome of processing a client reply: the
// expected client proof, the server proof to return, and the shared
// session key. It is serialized into the KV store between the
// challenge and proof legs of a login.
type ServerVerifier struct {
	M1  []byte `json:"m1"`
	M2  []byte `json:"m2"`
	Key []byte `json:"key"`
}

// NewServer constructs a server over the given group.
func NewServer(group *Group) *Server {
	return &Server{group: group}
}

func hashConcat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// computeK derives the multiplier parameter k = H(N, g).
func (s *Server) computeK() *big.Int {
	digest := hashConcat(s.group.N.Bytes(), s.group.G.Bytes())
	return new(big.Int).SetBytes(digest)
}

// computeU derives the scrambling parameter u = H(A, B).
func (s *Server) computeU(aPub, bPub []byte) *big.Int {
	return new(big.Int).SetBytes(hashConcat(aPub, bPub))
}

// computeBPub returns B = (k*v + g^b) mod N.
func (s *Server) computeBPub(b, k, v *big.Int) *big.Int {
	kv := new(big.Int).Mod(new(big.Int).Mul(k, v), s.group.N)
	gb := new(big.Int).Exp(s.group.G, b, s.group.N)
	return new(big.Int).Mod(new(big.Int).Add(kv, gb), s.group.N)
}

// ComputePublicEphemeral returns the server public value B for a fresh
// random exponent b and a stored password verifier v.
func (s *Server) ComputePublicEphemeral(b, v []byte) []byte {
	bInt := new(big.Int).SetBytes(b)
	vInt := new(big.Int).SetBytes(v)
	return s.computeBPub(bInt, s.computeK(), vInt).Bytes()
}

// ProcessReply derives the shared key and both proofs from the client's
// public value A. The zero-key guard runs before any derivation.
func (s *Server) ProcessReply(b, v, aPub []byte) (*ServerVerifier, error) {
	bInt := new(big.Int).SetBytes(b)
	vInt := new(big.Int).SetBytes(v)
	aInt := new(big.Int).SetBytes(aPub)

	if new(big.Int).Mod(aInt, s.group.N).Sign() == 0 {
		return nil, domain.ErrVerificationFailed
	}

	bPub := s.computeBPub(bInt, s.computeK(), vInt)

	u := s.computeU(aInt.Bytes(), bPub.Bytes())

	// <premaster secret> = (A * v^u) ^ b mod N
	base := new(big.Int).Mod(new(big.Int).Mul(aInt, new(big.Int).Exp(vInt, u, s.group.N)), s.group.N)
	secret := new(big.Int).Exp(base, bInt, s.group.N)

	key := hashConcat(secret.Bytes())
	m1 := hashConcat(aInt.Bytes(), bPub.Bytes(), key)
	m2 := hashConcat(aInt.Bytes(), m1, key)

	return &ServerVerifier{M1: m1, M2: m2, Key: key}, nil
}

// Proof returns the server-authentication value sent back to the client.
func (v *ServerVerifier) Proof() []byte {
	return v.M2
}

// SessionKey returns the shared secret derived during the handshake.
func (v *ServerVerifier) SessionKey() []byte {
	return v.Key
}

// VerifyClient checks the client proof in constant time. The error is
// deliberately generic so callers cannot distinguish failure causes.
func (v *ServerVerifier) VerifyClient(proof []byte) error {
	if subtle.ConstantTimeCompare(v.M1, proof) != 1 {
		return domain.ErrVerificationFailed
	}
	return nil
}
