package razorpay

import (
	"encoding/hex"
	"testing"
)

const (
	testOrderID   = "order_IluGWxBm9U8zJ8"
	testPaymentID = "pay_IluH3l9rjUyA3O"
	testSecret    = "test_secret"
	// HMAC-SHA256("order_IluGWxBm9U8zJ8|pay_IluH3l9rjUyA3O", "test_secret")
	testSignature = "7437d3a8733ecadb9c94c5515b41e47d1e342c7362746d98ed0baea56e719708"
)

func TestPaymentSignature_MatchesReference(t *testing.T) {
	t.Parallel()

	if got := PaymentSignature(testOrderID, testPaymentID, testSecret); got != testSignature {
		t.Fatalf("PaymentSignature() = %s, want %s", got, testSignature)
	}
	if !VerifyPaymentSignature(testOrderID, testPaymentID, testSignature, testSecret) {
		t.Fatal("expected reference signature to verify")
	}
}

func TestVerifyPaymentSignature_RejectsSingleBitFlip(t *testing.T) {
	t.Parallel()

	raw, err := hex.DecodeString(testSignature)
	if err != nil {
		t.Fatalf("decode reference: %v", err)
	}

	for bit := 0; bit < len(raw)*8; bit += 37 {
		flipped := append([]byte(nil), raw...)
		flipped[bit/8] ^= 1 << (bit % 8)
		if VerifyPaymentSignature(testOrderID, testPaymentID, hex.EncodeToString(flipped), testSecret) {
			t.Fatalf("signature with bit %d flipped was accepted", bit)
		}
	}
}

func TestVerifyPaymentSignature_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		secret    string
	}{
		{name: "wrong secret", orderID: testOrderID, paymentID: testPaymentID, signature: testSignature, secret: "other"},
		{name: "swapped ids", orderID: testPaymentID, paymentID: testOrderID, signature: testSignature, secret: testSecret},
		{name: "empty signature", orderID: testOrderID, paymentID: testPaymentID, signature: "", secret: testSecret},
		{name: "empty secret", orderID: testOrderID, paymentID: testPaymentID, signature: testSignature, secret: ""},
		{name: "uppercase hex", orderID: testOrderID, paymentID: testPaymentID, signature: "7437D3A8733ECADB9C94C5515B41E47D1E342C7362746D98ED0BAEA56E719708", secret: testSecret},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if VerifyPaymentSignature(tc.orderID, tc.paymentID, tc.signature, tc.secret) {
				t.Fatal("expected signature to be rejected")
			}
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event":"payment.captured"}`)
	// HMAC-SHA256(body, "whsec")
	const signature = "4673dd707ef4c41b987cb7fefe1583142dc702388c93145b7814b9ad3d3c183e"

	if !VerifyWebhookSignature(body, signature, "whsec") {
		t.Fatal("expected webhook signature to verify")
	}
	if VerifyWebhookSignature([]byte(`{"event":"payment.captured" }`), signature, "whsec") {
		t.Fatal("expected modified body to be rejected")
	}
}
