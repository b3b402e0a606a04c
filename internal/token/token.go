// Package token holds the token taxonomy the routing engine works with:
// fiat currencies moved over banking rails and on-chain stablecoins.
package token

// Stablecoins recognised as routing intermediaries. Order matters: the
// router draws its default intermediate set from this slice.
var Stablecoins = []string{"USDC", "USDT", "EURC"}

// Payment methods for off-chain deposit instructions.
const (
	MethodPIX          = "PIX"
	MethodSPEI         = "SPEI"
	MethodBankTransfer = "bank_transfer"
	MethodWireTransfer = "wire_transfer"
	MethodOnChain      = "on_chain"
)

var stablecoinSet = map[string]bool{"USDC": true, "USDT": true, "EURC": true}

var latamFiatSet = map[string]bool{"BRL": true, "MXN": true, "NGN": true}

// IsStablecoin reports whether t is an on-chain stablecoin.
func IsStablecoin(t string) bool { return stablecoinSet[t] }

// IsEmergingFiat reports whether t is one of the emerging-market fiat
// currencies with slower, riskier settlement (BRL, MXN, NGN).
func IsEmergingFiat(t string) bool { return latamFiatSet[t] }

// DepositMethod picks the off-chain payment rail for a source token:
// PIX for BRL, SPEI for MXN, bank transfer otherwise.
func DepositMethod(source string) string {
	switch source {
	case "BRL":
		return MethodPIX
	case "MXN":
		return MethodSPEI
	default:
		return MethodBankTransfer
	}
}
