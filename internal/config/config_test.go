package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feeledger/internal/engine"
	"github.com/roach88/feeledger/internal/program"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	id, err := cfg.ProgramID()
	require.NoError(t, err)
	assert.Equal(t, program.DefaultProgramID, id)
	assert.Equal(t, engine.DefaultRent, cfg.EngineRent())
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /var/lib/feeledger/ledger.db
keys_dir: /etc/feeledger/keys
program:
  init_authority: FP1Leoo9QxiqTg5gfdKxovBSX3VpEDnRdZBgYZuf8Luk
  payment_mint: EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/feeledger/ledger.db", cfg.Database)
	assert.Equal(t, "/etc/feeledger/keys", cfg.KeysDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 100, cfg.Logging.MaxSizeMB, "unset keys keep defaults")
	assert.Equal(t, program.DefaultProgramID.String(), cfg.Program.ProgramID)

	opts, err := cfg.ProgramOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	p := program.New(opts...)
	assert.Equal(t, program.DefaultProgramID, p.ID())
}

func TestDeployment_Profiles(t *testing.T) {
	other := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

	tests := []struct {
		name          string
		yaml          string
		wantAuthority *solana.PublicKey
		wantMint      *solana.PublicKey
	}{
		{"local is unrestricted", "program:\n  profile: local\n", nil, nil},
		{"mainnet defaults", "program:\n  profile: mainnet\n", &program.MainnetAdmin, &program.MainnetUSDCMint},
		{
			"explicit keys win over the profile",
			"program:\n  profile: mainnet\n  payment_mint: " + other + "\n",
			&program.MainnetAdmin, ptr(solana.MustPublicKeyFromBase58(other)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(strings.NewReader(tt.yaml))
			require.NoError(t, err)

			d, err := cfg.Deployment()
			require.NoError(t, err)
			assert.Equal(t, program.DefaultProgramID, d.ProgramID)
			assert.Equal(t, tt.wantAuthority, d.InitAuthority)
			assert.Equal(t, tt.wantMint, d.PaymentMint)
		})
	}
}

func ptr(k solana.PublicKey) *solana.PublicKey { return &k }

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("databse: typo.db\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "databse")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantPath string
	}{
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"empty database", "database: \"\"\n", "database"},
		{"empty keys dir", "keys_dir: \"\"\n", "keys_dir"},
		{"bad program id", "program:\n  program_id: not-base58!\n", "program.program_id"},
		{"bad mint", "program:\n  payment_mint: 0OIl\n", "program.payment_mint"},
		{"unknown profile", "program:\n  profile: devnet\n", "program.profile"},
		{"zero rent", "rent:\n  lamports_per_byte_year: 0\n", "rent.lamports_per_byte_year"},
		{"zero log size", "logging:\n  max_size_mb: 0\n", "logging.max_size_mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantPath, verr.Path)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestShippedConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "etc", "feeledger.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Database)
	assert.Equal(t, "keys", cfg.KeysDir)
	assert.Equal(t, ProfileLocal, cfg.Program.Profile)
}
