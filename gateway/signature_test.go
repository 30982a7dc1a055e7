package gateway_test

import (
	"testing"

	"fulfillment-service/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	secret := "server-held-secret"
	sig := gateway.Sign(secret, "gw_order_1", "gw_pay_1")

	assert.True(t, gateway.VerifySignature(secret, "gw_order_1", "gw_pay_1", sig))

	// Any altered byte fails verification.
	require.NotEmpty(t, sig)
	for i := 0; i < len(sig); i++ {
		altered := []byte(sig)
		if altered[i] == 'a' {
			altered[i] = 'b'
		} else {
			altered[i] = 'a'
		}
		assert.False(t, gateway.VerifySignature(secret, "gw_order_1", "gw_pay_1", string(altered)),
			"altered byte %d must fail", i)
	}

	assert.False(t, gateway.VerifySignature(secret, "gw_order_2", "gw_pay_1", sig))
	assert.False(t, gateway.VerifySignature("other-secret", "gw_order_1", "gw_pay_1", sig))
	assert.False(t, gateway.VerifySignature(secret, "gw_order_1", "gw_pay_1", ""))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)

	valid := gateway.SignBody("whsec", body)
	assert.True(t, gateway.VerifyWebhookSignature("whsec", body, valid))
	assert.False(t, gateway.VerifyWebhookSignature("whsec", []byte(`{}`), valid))
	assert.False(t, gateway.VerifyWebhookSignature("other", body, valid))
}
