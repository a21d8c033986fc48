package gateway

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"keyshop-service/internal/models"
)

// EpayAdapter speaks the form-encoded MD5-signed protocol common to the
// "epay" family of aggregators used by digital key shops. Amounts are
// decimal strings ("12.34") on the wire and minor units internally.
type EpayAdapter struct{}

func NewEpayAdapter() *EpayAdapter {
	return &EpayAdapter{}
}

func (a *EpayAdapter) Provider() string {
	return "epay"
}

// BuildIntent produces the signed submit URL for the provider's cashier page
func (a *EpayAdapter) BuildIntent(order *models.Order, gw *models.Gateway, returnURL string) (*PaymentIntent, error) {
	params := url.Values{}
	params.Set("pid", gw.MerchantID)
	params.Set("out_trade_no", order.TradeNo)
	params.Set("money", formatMinorUnits(order.TotalAmount))
	params.Set("notify_url", returnURL)
	params.Set("sign_type", "MD5")
	params.Set("sign", epaySign(params, gw.Secret))

	return &PaymentIntent{
		TradeNo:  order.TradeNo,
		Provider: a.Provider(),
		PayURL:   fmt.Sprintf("%s/submit.php?%s", gw.Endpoint, params.Encode()),
	}, nil
}

// VerifyCallback authenticates a form-encoded notify payload
func (a *EpayAdapter) VerifyCallback(raw []byte, gw *models.Gateway) (*VerifiedCallback, error) {
	params, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("malformed epay callback: %w", models.ErrSignatureInvalid)
	}

	sign := params.Get("sign")
	expected := epaySign(params, gw.Secret)
	if subtle.ConstantTimeCompare([]byte(sign), []byte(expected)) != 1 {
		return nil, models.ErrSignatureInvalid
	}

	amount, err := parseMinorUnits(params.Get("money"))
	if err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", params.Get("money"), models.ErrSignatureInvalid)
	}

	return &VerifiedCallback{
		TradeNo:    params.Get("out_trade_no"),
		AccessCode: params.Get("trade_no"), // provider-side transaction number
		Amount:     amount,
		Succeeded:  params.Get("trade_status") == "TRADE_SUCCESS",
	}, nil
}

// epaySign computes the MD5 signature over the sorted k=v pairs, excluding
// sign and sign_type, with the secret appended.
func epaySign(params url.Values, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" || k == "sign_type" || params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	payload := strings.Join(pairs, "&") + secret

	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// formatMinorUnits renders minor units as a two-decimal string
func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

// parseMinorUnits converts a decimal money string to minor units without
// going through floats.
func parseMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("more than two decimal places")
	}
	for len(frac) < 2 {
		frac += "0"
	}

	var total int64
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("non-digit in amount")
			}
			total = total*10 + int64(c-'0')
		}
	}
	return total, nil
}
