package program

import (
	"bytes"
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/roach88/feeledger/internal/store"
)

// ConfigAccountSize is the size of the config account: discriminator plus
// the borsh-encoded ProgramConfig.
const ConfigAccountSize = 8 + 32 + 32 + 2 + 1

// configDiscriminator prefixes the config account data.
var configDiscriminator = bin.Sighash(bin.SIGHASH_ACCOUNT_NAMESPACE, "ProgramConfig")

// ProgramConfig is the singleton record governing payments.
type ProgramConfig struct {
	Admin          solana.PublicKey
	FeeDestination solana.PublicKey
	FeeBasisPoints uint16
	Bump           uint8
}

// MarshalAccount encodes c as config account data.
func (c *ProgramConfig) MarshalAccount() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, ConfigAccountSize))
	buf.Write(configDiscriminator)
	if err := bin.NewBorshEncoder(buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode program config: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeProgramConfig decodes config account data. It checks the size and
// discriminator before the fields.
func DecodeProgramConfig(data []byte) (*ProgramConfig, error) {
	if len(data) != ConfigAccountSize {
		return nil, ErrInvalidConfigAccount.withf("%d bytes, want %d", len(data), ConfigAccountSize)
	}
	if !bytes.Equal(data[:8], configDiscriminator) {
		return nil, ErrInvalidConfigAccount.withf("discriminator mismatch")
	}
	var c ProgramConfig
	if err := bin.NewBorshDecoder(data[8:]).Decode(&c); err != nil {
		return nil, ErrInvalidConfigAccount.withf("decode: %v", err)
	}
	return &c, nil
}

// DeriveConfigAddress returns the config address and bump for programID.
func DeriveConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive config address: %w", err)
	}
	return addr, bump, nil
}

// AccountReader reads committed accounts. Both *engine.Engine and
// *store.Store satisfy it.
type AccountReader interface {
	GetAccount(ctx context.Context, addr solana.PublicKey) (store.Account, error)
}

// FetchConfig reads the config of the program deployed at programID.
func FetchConfig(ctx context.Context, r AccountReader, programID solana.PublicKey) (*ProgramConfig, error) {
	addr, _, err := DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	acc, err := r.GetAccount(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch config %s: %w", addr, err)
	}
	if !acc.Owner.Equals(programID) {
		return nil, ErrInvalidConfigAccount.withf("%s is owned by %s", addr, acc.Owner)
	}
	return DecodeProgramConfig(acc.Data)
}
