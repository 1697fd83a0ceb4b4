package payment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedWebhookBody(t *testing.T, checksumKey string, data map[string]interface{}) []byte {
	t.Helper()
	rawData, err := json.Marshal(data)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(rawData, &fields))
	signature := Sign(checksumKey, flatten(fields))

	envelopeCode, _ := data["code"].(string)
	body, err := json.Marshal(map[string]interface{}{
		"code":      envelopeCode,
		"desc":      "success",
		"data":      data,
		"signature": signature,
	})
	require.NoError(t, err)
	return body
}

func TestVerifyWebhook_ValidSignature(t *testing.T) {
	c := NewClient(Config{ChecksumKey: "secret"})

	body := signedWebhookBody(t, "secret", map[string]interface{}{
		"orderCode": 1756700000123456,
		"amount":    300,
		"reference": "FT123",
		"code":      CodeSuccess,
	})

	data, err := c.VerifyWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, int64(1756700000123456), data.OrderCode)
	assert.Equal(t, CodeSuccess, data.Code)
	assert.Equal(t, "FT123", data.Reference)
	assert.True(t, data.Amount.IntPart() == 300)
}

func TestVerifyWebhook_TamperedPayload(t *testing.T) {
	c := NewClient(Config{ChecksumKey: "secret"})

	body := signedWebhookBody(t, "secret", map[string]interface{}{
		"orderCode": 42,
		"amount":    100,
		"code":      CodeSuccess,
	})

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &env))
	env["data"].(map[string]interface{})["amount"] = 1
	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = c.VerifyWebhook(tampered)
	require.ErrorIs(t, err, ErrGateway)
}

// The envelope repeats code outside the signed data object. Flipping that
// unsigned copy on a replayed failure delivery must not turn it into a
// settled payment: the code the caller sees comes from the signed data.
func TestVerifyWebhook_EnvelopeCodeIsNotTrusted(t *testing.T) {
	c := NewClient(Config{ChecksumKey: "secret"})

	body := signedWebhookBody(t, "secret", map[string]interface{}{
		"orderCode": 42,
		"amount":    100,
		"code":      "01",
	})

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &env))
	env["code"] = CodeSuccess
	forged, err := json.Marshal(env)
	require.NoError(t, err)

	data, err := c.VerifyWebhook(forged)
	require.NoError(t, err)
	assert.Equal(t, "01", data.Code)
}

func TestVerifyWebhook_WrongKey(t *testing.T) {
	c := NewClient(Config{ChecksumKey: "secret"})

	body := signedWebhookBody(t, "other-key", map[string]interface{}{
		"orderCode": 42,
		"amount":    100,
		"code":      CodeSuccess,
	})

	_, err := c.VerifyWebhook(body)
	require.ErrorIs(t, err, ErrGateway)
}

func TestVerifyWebhook_MissingSignature(t *testing.T) {
	c := NewClient(Config{ChecksumKey: "secret"})

	body, _ := json.Marshal(map[string]interface{}{
		"code": CodeSuccess,
		"data": map[string]interface{}{"orderCode": 42, "code": CodeSuccess},
	})
	_, err := c.VerifyWebhook(body)
	require.ErrorIs(t, err, ErrGateway)
}

func TestSign_OrderIndependent(t *testing.T) {
	a := Sign("k", map[string]string{"b": "2", "a": "1", "c": "3"})
	b := Sign("k", map[string]string{"c": "3", "a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Sign("k", map[string]string{"a": "1", "b": "2", "c": "4"}))
}
