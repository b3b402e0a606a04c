package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStablecoin(t *testing.T) {
	for _, s := range Stablecoins {
		assert.True(t, IsStablecoin(s), s)
	}
	assert.False(t, IsStablecoin("BRL"))
	assert.False(t, IsStablecoin("usdc"))
}

func TestIsEmergingFiat(t *testing.T) {
	assert.True(t, IsEmergingFiat("BRL"))
	assert.True(t, IsEmergingFiat("MXN"))
	assert.True(t, IsEmergingFiat("NGN"))
	assert.False(t, IsEmergingFiat("EUR"))
	assert.False(t, IsEmergingFiat("USDC"))
}

func TestDepositMethod(t *testing.T) {
	assert.Equal(t, MethodPIX, DepositMethod("BRL"))
	assert.Equal(t, MethodSPEI, DepositMethod("MXN"))
	assert.Equal(t, MethodBankTransfer, DepositMethod("EUR"))
	assert.Equal(t, MethodBankTransfer, DepositMethod("USDC"))
}
