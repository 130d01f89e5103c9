// Package program implements the fee-splitting payment program.
//
// The program keeps one ProgramConfig record per deployment, stored in the
// account derived from the seed "program_config" and the program id. Three
// instructions operate on it:
//
//	initialize_program_config()           [config (w), fee_destination, authority (s, w), system_program]
//	update_program_config(new_fee u64)    [config (w), fee_destination, admin (s), new_admin]
//	payment(amount u64)                   [config, fee_destination (w), sender_token (w), receiver_token (w), sender (s)]
//
// Instruction data is an 8-byte discriminator, sha256("global:<name>")[:8],
// followed by the borsh-encoded arguments. The config account carries the
// discriminator sha256("account:ProgramConfig")[:8] ahead of its fields.
//
// A payment of amount splits into
//
//	fee = floor(amount * fee_basis_points / 10000)
//	net = amount - fee
//
// and moves fee to the fee destination and net to the receiver with two
// token transfers that commit or roll back together.
//
// Program failures are *Error values compared with errors.Is against the
// exported sentinels. Failures raised by the ledger runtime (missing
// signatures, insufficient token balance) pass through unchanged.
package program
