package program

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feeledger/internal/testutil"
)

func TestProgramConfig_Layout(t *testing.T) {
	cfg := &ProgramConfig{
		Admin:          testutil.PublicKey("admin"),
		FeeDestination: testutil.PublicKey("vault"),
		FeeBasisPoints: 0x0102,
		Bump:           254,
	}
	data, err := cfg.MarshalAccount()
	require.NoError(t, err)
	require.Len(t, data, ConfigAccountSize)

	sum := sha256.Sum256([]byte("account:ProgramConfig"))
	assert.Equal(t, sum[:8], data[:8])
	assert.Equal(t, cfg.Admin[:], data[8:40])
	assert.Equal(t, cfg.FeeDestination[:], data[40:72])
	assert.Equal(t, uint16(0x0102), binary.LittleEndian.Uint16(data[72:74]))
	assert.Equal(t, byte(254), data[74])

	decoded, err := DecodeProgramConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, decoded)
}

func TestDecodeProgramConfig_Rejects(t *testing.T) {
	cfg := &ProgramConfig{Admin: testutil.PublicKey("admin")}
	data, err := cfg.MarshalAccount()
	require.NoError(t, err)

	_, err = DecodeProgramConfig(data[:ConfigAccountSize-1])
	assert.ErrorIs(t, err, ErrInvalidConfigAccount)

	corrupt := append([]byte(nil), data...)
	corrupt[0] ^= 0xff
	_, err = DecodeProgramConfig(corrupt)
	assert.ErrorIs(t, err, ErrInvalidConfigAccount)

	_, err = DecodeProgramConfig(make([]byte, ConfigAccountSize))
	assert.ErrorIs(t, err, ErrInvalidConfigAccount)
}

func TestDeriveConfigAddress(t *testing.T) {
	addr, bump, err := DeriveConfigAddress(DefaultProgramID)
	require.NoError(t, err)

	want, wantBump, err := solana.FindProgramAddress([][]byte{[]byte("program_config")}, DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, addr)
	assert.Equal(t, wantBump, bump)
	assert.False(t, addr.IsOnCurve())

	other, _, err := DeriveConfigAddress(testutil.PublicKey("another-deployment"))
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)
}

func TestFetchConfig_FromStore(t *testing.T) {
	env := setupTestEnv(t)
	env.mustInitialize()

	fromStore, err := FetchConfig(env.ctx, env.store, env.program.ID())
	require.NoError(t, err)
	assert.Equal(t, env.config(), fromStore)
}

func TestFetchConfig_WrongProgram(t *testing.T) {
	env := setupTestEnv(t)
	env.mustInitialize()

	_, err := FetchConfig(env.ctx, env.store, testutil.PublicKey("elsewhere"))
	assert.Error(t, err)
}
