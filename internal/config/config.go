// Package config loads the ledger configuration.
//
// Configuration is YAML. Unknown keys are rejected, omitted keys keep their
// defaults, and the merged result is validated against an embedded CUE
// schema before use.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"github.com/roach88/feeledger/internal/engine"
	"github.com/roach88/feeledger/internal/program"
)

//go:embed schema.cue
var schemaSource string

// Config is the full ledger configuration.
type Config struct {
	Database string  `yaml:"database" json:"database"`
	KeysDir  string  `yaml:"keys_dir" json:"keys_dir"`
	Program  Program `yaml:"program" json:"program"`
	Rent     Rent    `yaml:"rent" json:"rent"`
	Logging  Logging `yaml:"logging" json:"logging"`
}

// Program profiles.
const (
	ProfileLocal   = "local"
	ProfileMainnet = "mainnet"
)

// Program configures the deployed fee program. Keys are base58.
//
// The mainnet profile restricts initialization to program.MainnetAdmin and
// payments to program.MainnetUSDCMint unless init_authority or
// payment_mint name other keys.
type Program struct {
	Profile       string `yaml:"profile" json:"profile"`
	ProgramID     string `yaml:"program_id" json:"program_id"`
	InitAuthority string `yaml:"init_authority" json:"init_authority"`
	PaymentMint   string `yaml:"payment_mint" json:"payment_mint"`
}

// Rent configures the rent-exempt minimum.
type Rent struct {
	LamportsPerByteYear     uint64 `yaml:"lamports_per_byte_year" json:"lamports_per_byte_year"`
	ExemptionThresholdYears uint64 `yaml:"exemption_threshold_years" json:"exemption_threshold_years"`
}

// Logging configures the zap logger.
type Logging struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: "feeledger.db",
		KeysDir:  "keys",
		Program: Program{
			Profile:   ProfileLocal,
			ProgramID: program.DefaultProgramID.String(),
		},
		Rent: Rent{
			LamportsPerByteYear:     engine.DefaultRent.LamportsPerByteYear,
			ExemptionThresholdYears: engine.DefaultRent.ExemptionThresholdYears,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// ValidationError is a configuration value the schema rejects.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid config: " + e.Message
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Path, e.Message)
}

// Load reads the file at path over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against the schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

// toValidationError reports the first schema violation with its path.
func toValidationError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		Path:    cue.MakePath(selectors(first.Path())...).String(),
		Message: fmt.Sprintf(format, args...),
	}
}

func selectors(path []string) []cue.Selector {
	out := make([]cue.Selector, 0, len(path))
	for _, p := range path {
		if p == "#Config" {
			continue
		}
		out = append(out, cue.Str(p))
	}
	return out
}

// ProgramID returns the configured program id.
func (c *Config) ProgramID() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(c.Program.ProgramID)
}

// Deployment is the resolved program deployment. Nil keys leave the
// corresponding restriction off.
type Deployment struct {
	ProgramID     solana.PublicKey
	InitAuthority *solana.PublicKey
	PaymentMint   *solana.PublicKey
}

// Deployment resolves the program section, applying the profile defaults.
func (c *Config) Deployment() (*Deployment, error) {
	id, err := c.ProgramID()
	if err != nil {
		return nil, fmt.Errorf("program.program_id: %w", err)
	}
	d := &Deployment{ProgramID: id}

	if d.InitAuthority, err = optionalKey("program.init_authority", c.Program.InitAuthority); err != nil {
		return nil, err
	}
	if d.PaymentMint, err = optionalKey("program.payment_mint", c.Program.PaymentMint); err != nil {
		return nil, err
	}
	if c.Program.Profile == ProfileMainnet {
		if d.InitAuthority == nil {
			admin := program.MainnetAdmin
			d.InitAuthority = &admin
		}
		if d.PaymentMint == nil {
			mint := program.MainnetUSDCMint
			d.PaymentMint = &mint
		}
	}
	return d, nil
}

func optionalKey(path, value string) (*solana.PublicKey, error) {
	if value == "" {
		return nil, nil
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &key, nil
}

// ProgramOptions returns the program options the configuration implies.
func (c *Config) ProgramOptions() ([]program.Option, error) {
	d, err := c.Deployment()
	if err != nil {
		return nil, err
	}
	opts := []program.Option{program.WithProgramID(d.ProgramID)}
	if d.InitAuthority != nil {
		opts = append(opts, program.WithInitAuthority(*d.InitAuthority))
	}
	if d.PaymentMint != nil {
		opts = append(opts, program.WithPaymentMint(*d.PaymentMint))
	}
	return opts, nil
}

// EngineRent returns the rent parameters for the engine.
func (c *Config) EngineRent() engine.Rent {
	return engine.Rent{
		LamportsPerByteYear:     c.Rent.LamportsPerByteYear,
		ExemptionThresholdYears: c.Rent.ExemptionThresholdYears,
	}
}
