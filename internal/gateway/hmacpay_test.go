package gateway

import (
	"encoding/json"
	"testing"

	"keyshop-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hmacGateway() *models.Gateway {
	return &models.Gateway{
		ID:         1,
		Provider:   "hmacpay",
		MerchantID: "m-100",
		Secret:     "topsecret",
		Endpoint:   "https://pay.example.com",
	}
}

func signedHMACPayload(t *testing.T, gw *models.Gateway, tradeNo, accessCode string, amount int64, status string) []byte {
	t.Helper()
	cb := hmacPayCallback{
		TradeNo:    tradeNo,
		AccessCode: accessCode,
		Amount:     amount,
		Status:     status,
	}
	cb.Signature = signHMAC(canonicalCallbackString(cb.TradeNo, cb.AccessCode, cb.Amount, cb.Status), gw.Secret)

	raw, err := json.Marshal(cb)
	require.NoError(t, err)
	return raw
}

func TestHMACPayVerifyCallback(t *testing.T) {
	adapter := NewHMACPayAdapter()
	gw := hmacGateway()

	raw := signedHMACPayload(t, gw, "T-1", "AC-1", 10000, "success")

	cb, err := adapter.VerifyCallback(raw, gw)
	require.NoError(t, err)
	assert.Equal(t, "T-1", cb.TradeNo)
	assert.Equal(t, "AC-1", cb.AccessCode)
	assert.Equal(t, int64(10000), cb.Amount)
	assert.True(t, cb.Succeeded)
}

func TestHMACPayVerifyCallbackFailedStatus(t *testing.T) {
	adapter := NewHMACPayAdapter()
	gw := hmacGateway()

	raw := signedHMACPayload(t, gw, "T-1", "AC-1", 10000, "failed")

	cb, err := adapter.VerifyCallback(raw, gw)
	require.NoError(t, err)
	assert.False(t, cb.Succeeded)
}

func TestHMACPayVerifyCallbackTampered(t *testing.T) {
	adapter := NewHMACPayAdapter()
	gw := hmacGateway()

	raw := signedHMACPayload(t, gw, "T-1", "AC-1", 10000, "success")

	var cb hmacPayCallback
	require.NoError(t, json.Unmarshal(raw, &cb))
	cb.Amount = 50 // attacker lowers the amount, signature no longer matches
	tampered, err := json.Marshal(cb)
	require.NoError(t, err)

	_, err = adapter.VerifyCallback(tampered, gw)
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
}

func TestHMACPayVerifyCallbackWrongSecret(t *testing.T) {
	adapter := NewHMACPayAdapter()
	gw := hmacGateway()

	raw := signedHMACPayload(t, gw, "T-1", "AC-1", 10000, "success")

	other := *gw
	other.Secret = "differentsecret"
	_, err := adapter.VerifyCallback(raw, &other)
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
}

func TestHMACPayVerifyCallbackGarbage(t *testing.T) {
	adapter := NewHMACPayAdapter()
	_, err := adapter.VerifyCallback([]byte("not json"), hmacGateway())
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
}

func TestHMACPayBuildIntent(t *testing.T) {
	adapter := NewHMACPayAdapter()
	gw := hmacGateway()
	order := &models.Order{TradeNo: "T-9", TotalAmount: 2500}

	intent, err := adapter.BuildIntent(order, gw, "https://shop.example.com/return")
	require.NoError(t, err)
	assert.Equal(t, "T-9", intent.TradeNo)
	assert.Equal(t, "hmacpay", intent.Provider)
	assert.Contains(t, intent.PayURL, "trade_no=T-9")
	assert.Contains(t, intent.PayURL, "amount=2500")
	assert.NotEmpty(t, intent.Reference)
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(NewHMACPayAdapter(), NewEpayAdapter())

	a, err := registry.Lookup("hmacpay")
	require.NoError(t, err)
	assert.Equal(t, "hmacpay", a.Provider())

	_, err = registry.Lookup("nonexistent")
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
}
