package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feeledger/internal/program"
)

func TestKeystore_GenerateAndLoad(t *testing.T) {
	ks := NewKeystore(filepath.Join(t.TempDir(), "keys"))

	key, err := ks.Generate("admin", false)
	require.NoError(t, err)

	info, err := os.Stat(ks.Path("admin"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := ks.Load("admin")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())

	// solana-keygen format: a JSON array of the 64 secret key bytes.
	fromFile, err := solana.PrivateKeyFromSolanaKeygenFile(ks.Path("admin"))
	require.NoError(t, err)
	assert.Equal(t, key, fromFile)
}

func TestKeystore_GenerateRefusesOverwrite(t *testing.T) {
	ks := NewKeystore(t.TempDir())

	first, err := ks.Generate("admin", false)
	require.NoError(t, err)

	_, err = ks.Generate("admin", false)
	require.ErrorIs(t, err, ErrKeyExists)

	second, err := ks.Generate("admin", true)
	require.NoError(t, err)
	assert.NotEqual(t, first.PublicKey(), second.PublicKey())
}

func TestKeystore_InvalidNames(t *testing.T) {
	ks := NewKeystore(t.TempDir())
	for _, name := range []string{"", "config", "../escape", "a/b", ".hidden"} {
		_, err := ks.Generate(name, false)
		assert.Error(t, err, "name %q", name)
	}
}

func TestKeystore_LoadReferences(t *testing.T) {
	dir := t.TempDir()
	ks := NewKeystore(filepath.Join(dir, "keys"))
	key, err := ks.Generate("alice", false)
	require.NoError(t, err)

	byPath, err := ks.Load(ks.Path("alice"))
	require.NoError(t, err)
	assert.Equal(t, key, byPath)

	bySecret, err := ks.Load(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, bySecret)

	_, err = ks.Load("bob")
	assert.ErrorContains(t, err, `unknown key "bob"`)

	_, err = ks.Load(key.PublicKey().String())
	assert.Error(t, err, "a public key cannot sign")
}

func TestKeystore_Resolve(t *testing.T) {
	ks := NewKeystore(t.TempDir())
	key, err := ks.Generate("alice", false)
	require.NoError(t, err)

	addr, err := ks.Resolve("alice", program.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), addr)

	addr, err = ks.Resolve(program.MainnetUSDCMint.String(), program.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, program.MainnetUSDCMint, addr)

	config, _, err := program.DeriveConfigAddress(program.DefaultProgramID)
	require.NoError(t, err)
	addr, err = ks.Resolve(ConfigRef, program.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, config, addr)

	_, err = ks.Resolve("nobody", program.DefaultProgramID)
	assert.ErrorContains(t, err, `unknown address "nobody"`)
}

func TestKeystore_ListAndLabel(t *testing.T) {
	ks := NewKeystore(filepath.Join(t.TempDir(), "missing"))

	keys, err := ks.List()
	require.NoError(t, err)
	assert.Empty(t, keys, "missing directory lists nothing")

	bob, err := ks.Generate("bob", false)
	require.NoError(t, err)
	alice, err := ks.Generate("alice", false)
	require.NoError(t, err)

	keys, err = ks.List()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, NamedKey{Name: "alice", Address: alice.PublicKey().String()}, keys[0])
	assert.Equal(t, NamedKey{Name: "bob", Address: bob.PublicKey().String()}, keys[1])

	assert.Equal(t, "bob", ks.Label(bob.PublicKey(), program.DefaultProgramID))
	config, _, err := program.DeriveConfigAddress(program.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, ConfigRef, ks.Label(config, program.DefaultProgramID))
	assert.Equal(t, program.MainnetAdmin.String(), ks.Label(program.MainnetAdmin, program.DefaultProgramID))
}
