package btctx

import (
	"fmt"
	"sort"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
)

// SelectionResult is the outcome of greedy UTXO selection.
type SelectionResult struct {
	Selected   []models.UTXO
	ChangeSats int64
	FeeSats    int64
	Vsize      int
}

// SelectUTXOs greedily selects UTXOs (largest first) until the selected
// total covers every requested output plus the fee at feeRatePerVByte,
// recomputing the fee on each addition since every extra input grows the
// transaction's vsize. changeOutputType determines which weight the
// (possibly absent) change output is costed at.
//
// Returns config.ErrInsufficientFunds if the available set can never cover
// outputs+fee, and rolls any change below the dust limit into the fee
// rather than emitting a dust output (§4.10, §7).
func SelectUTXOs(available []models.UTXO, outputs []models.TxOutput, feeRatePerVByte int64, changeOutputType models.AddressType) (*SelectionResult, error) {
	if feeRatePerVByte <= 0 {
		return nil, fmt.Errorf("%w: fee rate must be positive", config.ErrInvalidConfig)
	}

	var outputTotal int64
	for _, o := range outputs {
		outputTotal += o.Amount
	}

	sorted := make([]models.UTXO, len(available))
	copy(sorted, available)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	numP2WPKHOut, numP2TROut := countOutputTypes(outputs)

	var selected []models.UTXO
	var selectedTotal int64

	for _, u := range sorted {
		selected = append(selected, u)
		selectedTotal += u.Value

		inputTypes := inputTypesOf(selected)

		// Try without a change output first.
		vsizeNoChange := EstimateVsize(inputTypes, numP2WPKHOut, numP2TROut, 0)
		feeNoChange := EstimateFee(vsizeNoChange, feeRatePerVByte)
		if selectedTotal == outputTotal+feeNoChange {
			return &SelectionResult{Selected: selected, ChangeSats: 0, FeeSats: feeNoChange, Vsize: vsizeNoChange}, nil
		}

		withChangeP2WPKH, withChangeP2TR := numP2WPKHOut, numP2TROut
		if changeOutputType == models.AddressP2TR {
			withChangeP2TR++
		} else {
			withChangeP2WPKH++
		}
		vsizeWithChange := EstimateVsize(inputTypes, withChangeP2WPKH, withChangeP2TR, 0)
		feeWithChange := EstimateFee(vsizeWithChange, feeRatePerVByte)
		change := selectedTotal - outputTotal - feeWithChange

		if change > int64(config.DustLimitSats) {
			return &SelectionResult{Selected: selected, ChangeSats: change, FeeSats: feeWithChange, Vsize: vsizeWithChange}, nil
		}
		// Change would be dust (or the change output itself is unaffordable);
		// fold the remainder into the fee instead of a dust output, using the
		// no-change vsize/fee.
		if selectedTotal >= outputTotal+feeNoChange {
			return &SelectionResult{Selected: selected, ChangeSats: 0, FeeSats: selectedTotal - outputTotal, Vsize: vsizeNoChange}, nil
		}
	}

	return nil, fmt.Errorf("%w: %d sats available across %d UTXOs, need %d sats plus fees",
		config.ErrInsufficientFunds, selectedTotal, len(sorted), outputTotal)
}

func countOutputTypes(outputs []models.TxOutput) (p2wpkh, p2tr int) {
	// Output address type isn't known until the script is decoded
	// (internal/btctx/build.go owns that); selection only needs an
	// upper-bound weight estimate, so every requested output is costed
	// as P2WPKH (the larger-or-equal non-witness weight of the two for
	// outputs) plus the change output's own known type.
	return len(outputs), 0
}

func inputTypesOf(utxos []models.UTXO) []models.AddressType {
	types := make([]models.AddressType, len(utxos))
	for i, u := range utxos {
		types[i] = u.AddressType
	}
	return types
}
