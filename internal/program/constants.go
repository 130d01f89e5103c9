package program

import "github.com/gagliardetto/solana-go"

// ConfigSeed is the seed the ProgramConfig address is derived from.
const ConfigSeed = "program_config"

const (
	// DefaultFeeBasisPoints is the rate a fresh config starts with (1%).
	DefaultFeeBasisPoints uint16 = 100

	// MaxFeeBasisPoints is 100%.
	MaxFeeBasisPoints uint16 = 10_000
)

var (
	// DefaultProgramID is the id the program is deployed under unless
	// configured otherwise.
	DefaultProgramID = solana.MustPublicKeyFromBase58("AH3gT3xA632W86HaGKkuj9995aef3RNrd1jKgBp5NZej")

	// MainnetAdmin is the only identity allowed to initialize the config in
	// a production deployment.
	MainnetAdmin = solana.MustPublicKeyFromBase58("FP1Leoo9QxiqTg5gfdKxovBSX3VpEDnRdZBgYZuf8Luk")

	// MainnetUSDCMint is the mint payments are restricted to in a
	// production deployment.
	MainnetUSDCMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)
