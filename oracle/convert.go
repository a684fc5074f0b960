package oracle

import (
	"arbflow/fault"
	"arbflow/ledger"
)

// ConvertUSD turns an amount in USD (four decimal places) into the reference
// currency at the given median rate (USD per unit, four decimal places).
func ConvertUSD(amountUSD, medianRate int64) (int64, error) {
	if medianRate <= 0 {
		return 0, fault.Dependency("oracle: median rate must be positive")
	}
	return amountUSD * ledger.AmountScale / medianRate, nil
}
