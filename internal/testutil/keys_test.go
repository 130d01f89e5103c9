package testutil

import (
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("sender")
	b := Key("sender")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a.PublicKey(), Key("receiver").PublicKey())
	require.NoError(t, a.Validate())
}

func TestKeyring_NameRoundTrip(t *testing.T) {
	k := NewKeyring()
	pub := k.PublicKey("wallet")

	assert.Equal(t, "wallet", k.Name(pub))
	assert.Equal(t, PublicKey("wallet"), pub)

	unknown := PublicKey("stranger")
	assert.Equal(t, unknown.String(), k.Name(unknown))
}

func TestKeyring_Label(t *testing.T) {
	k := NewKeyring()
	addr := solana.SystemProgramID
	k.Label(addr, "system")
	assert.Equal(t, "system", k.Name(addr))
	assert.Equal(t, []string{"system"}, k.Names())
}

func TestKeyring_SignerOnlyKnowsNamedKeys(t *testing.T) {
	k := NewKeyring()
	getter := k.Signer("alice")

	got := getter(k.PublicKey("alice"))
	require.NotNil(t, got)
	assert.Equal(t, k.PublicKey("alice"), got.PublicKey())
	assert.Nil(t, getter(k.PublicKey("bob")))
}

func TestKeyring_ConcurrentAccess(t *testing.T) {
	k := NewKeyring()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = k.PublicKey("shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"shared"}, k.Names())
}
