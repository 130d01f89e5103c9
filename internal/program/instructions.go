package program

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Instruction names.
const (
	InstructionInitialize = "initialize_program_config"
	InstructionUpdate     = "update_program_config"
	InstructionPayment    = "payment"
)

var (
	initializeDiscriminator = bin.Sighash(bin.SIGHASH_GLOBAL_NAMESPACE, InstructionInitialize)
	updateDiscriminator     = bin.Sighash(bin.SIGHASH_GLOBAL_NAMESPACE, InstructionUpdate)
	paymentDiscriminator    = bin.Sighash(bin.SIGHASH_GLOBAL_NAMESPACE, InstructionPayment)
)

type updateArgs struct {
	NewFee uint64
}

type paymentArgs struct {
	Amount uint64
}

// NewInitializeInstruction builds initialize_program_config. authority
// pays for the config account and becomes the admin.
func NewInitializeInstruction(programID, authority, feeDestination solana.PublicKey) (solana.Instruction, error) {
	config, _, err := DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(config).WRITE(),
		solana.Meta(feeDestination),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, encodeInstruction(initializeDiscriminator, nil)), nil
}

// NewUpdateInstruction builds update_program_config. admin must be the
// current admin; newAdmin replaces it.
func NewUpdateInstruction(programID, admin, feeDestination, newAdmin solana.PublicKey, newFeeBasisPoints uint64) (solana.Instruction, error) {
	config, _, err := DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(config).WRITE(),
		solana.Meta(feeDestination),
		solana.Meta(admin).SIGNER(),
		solana.Meta(newAdmin),
	}, encodeInstruction(updateDiscriminator, &updateArgs{NewFee: newFeeBasisPoints})), nil
}

// NewPaymentInstruction builds payment. sender signs and owns
// senderToken.
func NewPaymentInstruction(programID, feeDestination, senderToken, receiverToken, sender solana.PublicKey, amount uint64) (solana.Instruction, error) {
	config, _, err := DeriveConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(config),
		solana.Meta(feeDestination).WRITE(),
		solana.Meta(senderToken).WRITE(),
		solana.Meta(receiverToken).WRITE(),
		solana.Meta(sender).SIGNER(),
	}, encodeInstruction(paymentDiscriminator, &paymentArgs{Amount: amount})), nil
}

// encodeInstruction cannot fail for the fixed-size argument structs above.
func encodeInstruction(discriminator []byte, args any) []byte {
	buf := bytes.NewBuffer(append([]byte(nil), discriminator...))
	if args != nil {
		if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
			panic(fmt.Sprintf("encode instruction args: %v", err))
		}
	}
	return buf.Bytes()
}

// decodedInstruction is instruction data split into name and arguments.
type decodedInstruction struct {
	name   string
	newFee uint64
	amount uint64
}

func decodeInstruction(data []byte) (*decodedInstruction, error) {
	if len(data) < 8 {
		return nil, ErrInvalidInstructionData.withf("%d bytes", len(data))
	}
	disc, rest := data[:8], data[8:]

	switch {
	case bytes.Equal(disc, initializeDiscriminator):
		return &decodedInstruction{name: InstructionInitialize}, nil
	case bytes.Equal(disc, updateDiscriminator):
		var args updateArgs
		if err := decodeArgs(rest, &args); err != nil {
			return nil, err
		}
		return &decodedInstruction{name: InstructionUpdate, newFee: args.NewFee}, nil
	case bytes.Equal(disc, paymentDiscriminator):
		var args paymentArgs
		if err := decodeArgs(rest, &args); err != nil {
			return nil, err
		}
		return &decodedInstruction{name: InstructionPayment, amount: args.Amount}, nil
	default:
		return nil, ErrInvalidInstructionData.withf("unknown discriminator %x", disc)
	}
}

func decodeArgs(data []byte, v any) error {
	if err := bin.NewBorshDecoder(data).Decode(v); err != nil {
		return ErrInvalidInstructionData.withf("%v", err)
	}
	return nil
}

// DecodePaymentResult decodes the return data of a payment.
func DecodePaymentResult(data []byte) (PaymentResult, error) {
	var r PaymentResult
	if err := bin.NewBorshDecoder(data).Decode(&r); err != nil {
		return PaymentResult{}, fmt.Errorf("decode payment result: %w", err)
	}
	return r, nil
}

func encodePaymentResult(r PaymentResult) ([]byte, error) {
	return bin.MarshalBorsh(&r)
}
