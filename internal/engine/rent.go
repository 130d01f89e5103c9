package engine

// AccountStorageOverhead is the per-account byte overhead charged by rent.
const AccountStorageOverhead = 128

// Rent holds the rent-exemption parameters.
type Rent struct {
	LamportsPerByteYear     uint64
	ExemptionThresholdYears uint64
}

// DefaultRent matches mainnet: 3480 lamports per byte-year, two years.
var DefaultRent = Rent{
	LamportsPerByteYear:     3480,
	ExemptionThresholdYears: 2,
}

// MinimumBalance returns the lamports an account holding dataLen bytes
// needs to be rent exempt.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (AccountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionThresholdYears
}
