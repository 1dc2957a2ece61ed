// Package gateway integrates with the payment gateway. Orders are created
// through the Razorpay API; callback signatures are verified locally against
// the key secret so a forged callback never reaches the database.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

// PaymentGateway abstracts the external payment provider.
type PaymentGateway interface {
	// CreateOrder registers an order for the given amount in minor units
	// (paise for INR) and returns the gateway's order id.
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (string, error)

	// VerifySignature reports whether signature is a valid gateway signature
	// over the order and payment ids.
	VerifySignature(orderID, paymentID, signature string) bool

	// KeyID returns the public key id clients need to open the checkout.
	KeyID() string
}

// RazorpayGateway implements PaymentGateway against the Razorpay API.
type RazorpayGateway struct {
	client    *razorpay.Client
	keyID     string
	keySecret string
}

// NewRazorpay constructs a gateway client from API credentials.
func NewRazorpay(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		client:    razorpay.NewClient(keyID, keySecret),
		keyID:     keyID,
		keySecret: keySecret,
	}
}

// KeyID returns the public API key id.
func (g *RazorpayGateway) KeyID() string {
	return g.keyID
}

// CreateOrder registers an order with Razorpay. The SDK has no context
// support, so the call runs in a goroutine and the context deadline bounds
// how long the caller waits.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (string, error) {
	data := map[string]interface{}{
		"amount":   amountMinorUnits,
		"currency": currency,
		"receipt":  receipt,
	}

	type result struct {
		orderID string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		body, err := g.client.Order.Create(data, nil)
		if err != nil {
			done <- result{err: fmt.Errorf("create order: %w", err)}
			return
		}
		id, ok := body["id"].(string)
		if !ok || id == "" {
			done <- result{err: fmt.Errorf("create order: response missing order id")}
			return
		}
		done <- result{orderID: id}
	}()

	select {
	case r := <-done:
		return r.orderID, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("create order: %w", ctx.Err())
	}
}

// VerifySignature recomputes the expected HMAC-SHA256 of "orderID|paymentID"
// with the key secret and compares it to the supplied signature. The compare
// is constant time and case-insensitive over the hex encoding.
func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return verifyHMAC(g.keySecret, orderID, paymentID, signature)
}

func verifyHMAC(secret, orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
