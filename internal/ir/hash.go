package ir

import (
	"crypto/sha256"
	"encoding/binary"
)

// Domain prefixes for derived hashes. The version suffix leaves room for a
// future algorithm change without colliding with existing values.
const (
	DomainBlockhash = "feeledger/blockhash/v1"
	DomainTestKey   = "feeledger/testkey/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data). The null byte keeps
// the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Blockhash derives the blockhash of a slot. The genesis id scopes hashes to
// one ledger database so a transaction signed for one ledger cannot land on
// another.
func Blockhash(genesisID string, slot int64) [32]byte {
	data := make([]byte, 0, len(genesisID)+8)
	data = append(data, genesisID...)
	data = binary.LittleEndian.AppendUint64(data, uint64(slot))
	return hashWithDomain(DomainBlockhash, data)
}

// KeySeed derives a 32-byte ed25519 seed from a name. Only for tests and
// scenarios where keypairs must be reproducible.
func KeySeed(name string) [32]byte {
	return hashWithDomain(DomainTestKey, []byte(name))
}
