package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/roach88/feeledger/internal/program"
)

// ConfigRef names the program config account in address arguments.
const ConfigRef = "config"

// ErrKeyExists is returned by Keystore.Generate when the key file exists.
var ErrKeyExists = errors.New("key already exists")

// Keystore holds named keypairs as solana-keygen JSON files in one
// directory.
//
// A key reference is, in order of precedence: a path to a keypair file,
// the name of a key in the directory, or a base58 encoded 64-byte secret
// key. Address references additionally accept a base58 public key and
// "config" for the program config account.
type Keystore struct {
	Dir string
}

// NewKeystore returns a keystore over dir. The directory is created on
// the first Generate.
func NewKeystore(dir string) *Keystore {
	return &Keystore{Dir: dir}
}

// Path returns the keypair file of name.
func (k *Keystore) Path(name string) string {
	return filepath.Join(k.Dir, name+".json")
}

// Generate writes a new random keypair under name.
func (k *Keystore) Generate(name string, force bool) (solana.PrivateKey, error) {
	if err := validKeyName(name); err != nil {
		return nil, err
	}
	path := k.Path(name)
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, path)
	}

	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := k.write(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

// write stores key as a JSON array of bytes, the solana-keygen format.
func (k *Keystore) write(path string, key solana.PrivateKey) error {
	if err := os.MkdirAll(k.Dir, 0o700); err != nil {
		return fmt.Errorf("create keys directory: %w", err)
	}
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// Load resolves a key reference to a private key.
func (k *Keystore) Load(ref string) (solana.PrivateKey, error) {
	if ref == "" {
		return nil, errors.New("empty key reference")
	}
	if isFile(ref) {
		return readKeyFile(ref)
	}
	if validKeyName(ref) == nil && isFile(k.Path(ref)) {
		return readKeyFile(k.Path(ref))
	}
	if raw, err := base58.Decode(ref); err == nil && len(raw) == 64 {
		key := solana.PrivateKey(raw)
		if err := key.Validate(); err != nil {
			return nil, fmt.Errorf("key %q: %w", ref, err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("unknown key %q: not a keypair file, a key in %s or a base58 secret key", ref, k.Dir)
}

// Resolve turns an address reference into a public key.
func (k *Keystore) Resolve(ref string, programID solana.PublicKey) (solana.PublicKey, error) {
	if ref == ConfigRef {
		addr, _, err := program.DeriveConfigAddress(programID)
		return addr, err
	}
	if key, err := k.Load(ref); err == nil {
		return key.PublicKey(), nil
	}
	if raw, err := base58.Decode(ref); err == nil && len(raw) == solana.PublicKeyLength {
		return solana.PublicKeyFromBytes(raw), nil
	}
	return solana.PublicKey{}, fmt.Errorf("unknown address %q: not a key or a base58 public key", ref)
}

// NamedKey is one entry of the keystore.
type NamedKey struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// List returns the keys of the directory sorted by name. A missing
// directory is empty.
func (k *Keystore) List() ([]NamedKey, error) {
	files, err := filepath.Glob(filepath.Join(k.Dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	keys := make([]NamedKey, 0, len(files))
	for _, file := range files {
		key, err := readKeyFile(file)
		if err != nil {
			return nil, err
		}
		keys = append(keys, NamedKey{
			Name:    strings.TrimSuffix(filepath.Base(file), ".json"),
			Address: key.PublicKey().String(),
		})
	}
	return keys, nil
}

// Label returns the key name of addr, "config" for the config account, or
// the address itself.
func (k *Keystore) Label(addr, programID solana.PublicKey) string {
	if cfg, _, err := program.DeriveConfigAddress(programID); err == nil && cfg.Equals(addr) {
		return ConfigRef
	}
	keys, err := k.List()
	if err == nil {
		for _, key := range keys {
			if key.Address == addr.String() {
				return key.Name
			}
		}
	}
	return addr.String()
}

func readKeyFile(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	return key, nil
}

func validKeyName(name string) error {
	if name == "" || name == ConfigRef || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid key name %q", name)
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
