package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func signFor(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	g := NewRazorpay("rzp_test_key", "secret123")
	sig := signFor("secret123", "order_abc", "pay_xyz")

	if !g.VerifySignature("order_abc", "pay_xyz", sig) {
		t.Error("expected valid signature to verify")
	}
}

func TestVerifySignature_CaseInsensitiveHex(t *testing.T) {
	g := NewRazorpay("rzp_test_key", "secret123")
	sig := strings.ToUpper(signFor("secret123", "order_abc", "pay_xyz"))

	if !g.VerifySignature("order_abc", "pay_xyz", sig) {
		t.Error("expected uppercase hex signature to verify")
	}
}

func TestVerifySignature_Forged(t *testing.T) {
	g := NewRazorpay("rzp_test_key", "secret123")

	cases := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
	}{
		{"wrong secret", "order_abc", "pay_xyz", signFor("other-secret", "order_abc", "pay_xyz")},
		{"signature for different payment", "order_abc", "pay_xyz", signFor("secret123", "order_abc", "pay_other")},
		{"signature for different order", "order_abc", "pay_xyz", signFor("secret123", "order_other", "pay_xyz")},
		{"empty signature", "order_abc", "pay_xyz", ""},
		{"garbage signature", "order_abc", "pay_xyz", "not-hex-at-all"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if g.VerifySignature(tc.orderID, tc.paymentID, tc.signature) {
				t.Error("expected forged signature to be rejected")
			}
		})
	}
}

func TestKeyID(t *testing.T) {
	g := NewRazorpay("rzp_test_key", "secret123")
	if g.KeyID() != "rzp_test_key" {
		t.Errorf("unexpected key id %q", g.KeyID())
	}
}
