package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"keyshop-service/internal/models"
)

// HMACPayAdapter speaks a JSON webhook protocol signed with HMAC-SHA256.
// The provider posts a JSON body carrying the signature over a canonical
// string of the business fields.
type HMACPayAdapter struct{}

func NewHMACPayAdapter() *HMACPayAdapter {
	return &HMACPayAdapter{}
}

func (a *HMACPayAdapter) Provider() string {
	return "hmacpay"
}

type hmacPayCallback struct {
	TradeNo    string `json:"trade_no"`
	AccessCode string `json:"access_code"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
	Signature  string `json:"signature"`
}

// BuildIntent returns a signed payment reference for the provider's checkout
func (a *HMACPayAdapter) BuildIntent(order *models.Order, gw *models.Gateway, returnURL string) (*PaymentIntent, error) {
	payload := canonicalString(order.TradeNo, gw.MerchantID, order.TotalAmount)
	reference := signHMAC(payload, gw.Secret)

	return &PaymentIntent{
		TradeNo:   order.TradeNo,
		Provider:  a.Provider(),
		PayURL:    fmt.Sprintf("%s/checkout?merchant=%s&trade_no=%s&amount=%d&return_url=%s&sign=%s", gw.Endpoint, gw.MerchantID, order.TradeNo, order.TotalAmount, returnURL, reference),
		Reference: reference,
	}, nil
}

// VerifyCallback authenticates the JSON payload against the gateway secret
func (a *HMACPayAdapter) VerifyCallback(raw []byte, gw *models.Gateway) (*VerifiedCallback, error) {
	var cb hmacPayCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("malformed hmacpay callback: %w", models.ErrSignatureInvalid)
	}

	expected := signHMAC(canonicalCallbackString(cb.TradeNo, cb.AccessCode, cb.Amount, cb.Status), gw.Secret)
	if !hmac.Equal([]byte(expected), []byte(cb.Signature)) {
		return nil, models.ErrSignatureInvalid
	}

	return &VerifiedCallback{
		TradeNo:    cb.TradeNo,
		AccessCode: cb.AccessCode,
		Amount:     cb.Amount,
		Succeeded:  cb.Status == "success",
	}, nil
}

func canonicalString(tradeNo, merchantID string, amount int64) string {
	return fmt.Sprintf("%s|%s|%d", tradeNo, merchantID, amount)
}

func canonicalCallbackString(tradeNo, accessCode string, amount int64, status string) string {
	return fmt.Sprintf("%s|%s|%d|%s", tradeNo, accessCode, amount, status)
}

func signHMAC(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
