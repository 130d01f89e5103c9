// Package testutil provides deterministic fixtures for tests and scenarios.
package testutil

import (
	"crypto/ed25519"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/feeledger/internal/ir"
)

// Key returns the keypair derived from name. The same name always yields
// the same key, in every process.
func Key(name string) solana.PrivateKey {
	seed := ir.KeySeed(name)
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:]))
}

// PublicKey returns the public half of Key(name).
func PublicKey(name string) solana.PublicKey {
	return Key(name).PublicKey()
}

// Keyring hands out named deterministic keypairs and remembers them, so
// addresses can be mapped back to names and transactions signed by name.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Keyring struct {
	mu     sync.Mutex
	byName map[string]solana.PrivateKey
	labels map[solana.PublicKey]string
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{
		byName: make(map[string]solana.PrivateKey),
		labels: make(map[solana.PublicKey]string),
	}
}

// Key returns the keypair for name, deriving it on first use.
func (k *Keyring) Key(name string) solana.PrivateKey {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.byName[name]; ok {
		return key
	}
	key := Key(name)
	k.byName[name] = key
	k.labels[key.PublicKey()] = name
	return key
}

// PublicKey returns the public key for name.
func (k *Keyring) PublicKey(name string) solana.PublicKey {
	return k.Key(name).PublicKey()
}

// Label attaches a name to an address that has no keypair, such as a
// program-derived address.
func (k *Keyring) Label(addr solana.PublicKey, name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.labels[addr] = name
}

// Name returns the name for addr, or its base58 form if it is unknown.
func (k *Keyring) Name(addr solana.PublicKey) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if name, ok := k.labels[addr]; ok {
		return name
	}
	return addr.String()
}

// Names returns every known name, sorted.
func (k *Keyring) Names() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	names := make([]string, 0, len(k.labels))
	for _, name := range k.labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Signer returns a key getter for solana.Transaction.Sign that only knows
// the named keys. Unknown keys yield nil.
func (k *Keyring) Signer(names ...string) func(solana.PublicKey) *solana.PrivateKey {
	keys := make(map[solana.PublicKey]solana.PrivateKey, len(names))
	for _, name := range names {
		key := k.Key(name)
		keys[key.PublicKey()] = key
	}
	return func(pub solana.PublicKey) *solana.PrivateKey {
		if key, ok := keys[pub]; ok {
			return &key
		}
		return nil
	}
}
