package btctx

import (
	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// EstimateVsize returns the vsize (vbytes) of a transaction with the given
// inputs, P2WPKH/P2TR output counts, and optional OP_RETURN payload,
// using the teacher's weight-unit accounting generalized across both
// witness types (§4.10).
func EstimateVsize(inputTypes []models.AddressType, numP2WPKHOutputs, numP2TROutputs int, opReturnDataLen int) int {
	weight := config.BTCTxOverheadWU

	for _, t := range inputTypes {
		if t == models.AddressP2TR {
			weight += config.BTCP2TRInputNonWitWU + config.BTCP2TRInputWitWU
		} else {
			weight += config.BTCP2WPKHInputNonWitWU + config.BTCP2WPKHInputWitWU
		}
	}

	weight += numP2WPKHOutputs * config.BTCP2WPKHOutputWU
	weight += numP2TROutputs * config.BTCP2TROutputWU

	if opReturnDataLen > 0 {
		weight += config.BTCOpReturnBaseWU + opReturnDataLen*4 // payload bytes are non-witness, 4 WU/byte
	}

	// ceil(weight / 4)
	return (weight + 3) / 4
}

// EstimateFee returns the fee in satoshis for the given vsize at feeRate
// sat/vByte.
func EstimateFee(vsize int, feeRatePerVByte int64) int64 {
	return int64(vsize) * feeRatePerVByte
}
