package program

import "lukechampine.com/uint128"

// basisPointsDenominator converts basis points to a fraction.
const basisPointsDenominator = 10_000

// SplitFee splits amount into the fee owed at feeBasisPoints and the
// remainder. The product amount*feeBasisPoints must fit in 64 bits;
// larger products fail with ErrArithmeticOverflow.
func SplitFee(amount uint64, feeBasisPoints uint16) (fee, net uint64, err error) {
	if feeBasisPoints > MaxFeeBasisPoints {
		return 0, 0, ErrInvalidFeeRate.withf("%d", feeBasisPoints)
	}
	product := uint128.From64(amount).Mul64(uint64(feeBasisPoints))
	if product.Hi != 0 {
		return 0, 0, ErrArithmeticOverflow.withf("%d * %d", amount, feeBasisPoints)
	}
	fee = product.Lo / basisPointsDenominator
	return fee, amount - fee, nil
}

// PaymentResult is the return data of a payment.
type PaymentResult struct {
	Fee uint64
	Net uint64
}
