package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// WebhookData is the payload the gateway delivers on payment completion.
// Code CodeSuccess means the payment settled; anything else is a failure
// notice the workflow ignores (the sweeper cancels stale orders). Code and
// Desc travel inside the signed data object; the envelope carries unsigned
// copies that are never trusted.
type WebhookData struct {
	OrderCode int64           `json:"orderCode"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
}

type webhookEnvelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// VerifyWebhook checks the envelope's HMAC signature against the checksum
// key and returns the decoded payload. The signature covers the data
// object's scalar fields, sorted by key.
func (c *Client) VerifyWebhook(rawBody []byte) (*WebhookData, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, errors.Wrap(ErrGateway, "malformed webhook body")
	}
	if env.Signature == "" {
		return nil, errors.Wrap(ErrGateway, "webhook signature missing")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		return nil, errors.Wrap(ErrGateway, "malformed webhook data")
	}
	expected := Sign(c.checksumKey, flatten(fields))
	if !hmac.Equal([]byte(expected), []byte(env.Signature)) {
		return nil, errors.Wrap(ErrGateway, "webhook signature mismatch")
	}

	var data WebhookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.Wrap(ErrGateway, "malformed webhook data")
	}
	return &data, nil
}

// Sign computes the hex HMAC-SHA256 over "k1=v1&k2=v2&..." with keys in
// ascending order, the gateway's transaction signature scheme.
func Sign(checksumKey string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func flatten(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = decimal.NewFromFloat(val).String()
		case bool:
			if val {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		case nil:
			out[k] = ""
		default:
			raw, _ := json.Marshal(val)
			out[k] = string(raw)
		}
	}
	return out
}
