// Package harness runs YAML scenarios against a fresh ledger with the fee
// program deployed.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	program:
//	  init_authority: admin     # optional
//	  payment_mint: usdc        # optional
//	setup:
//	  - action: airdrop
//	    args: { to: admin, lamports: 2000000000 }
//	  - action: create_mint
//	    args: { mint: usdc, authority: admin, decimals: 6 }
//	  - action: create_token_account
//	    args: { account: fee-vault, mint: usdc, owner: admin }
//	  - action: mint_to
//	    args: { mint: usdc, to: sender-usdc, amount: 10000, authority: admin }
//	flow:
//	  - invoke: initialize_program_config
//	    args: { authority: admin, fee_destination: fee-vault }
//	  - invoke: payment
//	    args:
//	      sender: sender
//	      sender_token: sender-usdc
//	      receiver_token: receiver-usdc
//	      fee_destination: fee-vault
//	      amount: 10000
//	    expect:
//	      case: Success
//	      result: { fee: 100, net: 9900 }
//	assertions:
//	  - type: token_balance
//	    account: fee-vault
//	    amount: 100
//	  - type: config
//	    expect: { admin: admin, fee_basis_points: 100 }
//
// Account arguments are key names. Every name maps to a keypair derived
// from it, so "admin" is the same key in every run. The name "config"
// resolves to the program config account.
//
// Flow steps are signed by their natural signer (authority, admin or
// sender) unless the step lists signers; the first signer pays. A step's
// case is "Success" or the error tag of the failure, for example
// "InvalidFeeRate", "Unauthorized" or "InsufficientFunds".
//
// # Assertion Types
//
//   - trace_contains: an instruction appears with matching args (and case)
//   - trace_order: instructions first appear in the given order
//   - trace_count: an instruction (with case) appears exactly N times
//   - token_balance: a token account holds exactly amount
//   - config: the program config has the expected fields, or is absent
//
// # Golden Traces
//
// RunWithGolden compares the canonical JSON trace of a run with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
