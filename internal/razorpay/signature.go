package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// PaymentSignature is the signature Razorpay Checkout returns for a
// successful payment: hex HMAC-SHA256 of "orderID|paymentID".
func PaymentSignature(orderID, paymentID, secret string) string {
	return sign([]byte(orderID+"|"+paymentID), secret)
}

func VerifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	return verify([]byte(orderID+"|"+paymentID), signature, secret)
}

// WebhookSignature is the X-Razorpay-Signature value for body.
func WebhookSignature(body []byte, secret string) string {
	return sign(body, secret)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	return verify(body, signature, secret)
}

func sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(message []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := sign(message, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
