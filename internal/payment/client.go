package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// ErrGateway is the single error kind every upstream failure collapses into.
// Callers compensate (release holds, mark the order FAILED); they never
// inspect gateway specifics.
var ErrGateway = errors.New("payment gateway error")

// CodeSuccess is the gateway's status code for a settled payment.
const CodeSuccess = "00"

type Config struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	ChecksumKey string
	ReturnURL   string
	CancelURL   string
}

// Client is a thin adapter over the external checkout gateway. It holds no
// business state: the order workflow decides, the client translates.
type Client struct {
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
	returnURL   string
	cancelURL   string
	hc          *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		clientID:    cfg.ClientID,
		apiKey:      cfg.APIKey,
		checksumKey: cfg.ChecksumKey,
		returnURL:   cfg.ReturnURL,
		cancelURL:   cfg.CancelURL,
		hc:          &http.Client{Timeout: 10 * time.Second},
	}
}

type LineItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type checkoutRequest struct {
	OrderCode   int64           `json:"orderCode"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Items       []LineItem      `json:"items"`
	ReturnURL   string          `json:"returnUrl"`
	CancelURL   string          `json:"cancelUrl"`
	Signature   string          `json:"signature"`
}

type checkoutResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		CheckoutURL string `json:"checkoutUrl"`
	} `json:"data"`
}

// CreatePaymentLink asks the gateway for a checkout URL for the given order
// code and amount. The request is signed with the checksum key over the
// amount, cancel URL, description, order code and return URL.
func (c *Client) CreatePaymentLink(ctx context.Context, orderCode int64, amount decimal.Decimal, description string, items []LineItem) (string, error) {
	req := checkoutRequest{
		OrderCode:   orderCode,
		Amount:      amount,
		Description: description,
		Items:       items,
		ReturnURL:   c.returnURL,
		CancelURL:   c.cancelURL,
	}
	req.Signature = Sign(c.checksumKey, map[string]string{
		"amount":      amount.String(),
		"cancelUrl":   c.cancelURL,
		"description": description,
		"orderCode":   fmt.Sprintf("%d", orderCode),
		"returnUrl":   c.returnURL,
	})

	var resp checkoutResponse
	if err := c.post(ctx, "/v2/payment-requests", req, &resp); err != nil {
		return "", err
	}
	if resp.Code != CodeSuccess {
		return "", errors.Wrapf(ErrGateway, "create payment link: code %s (%s)", resp.Code, resp.Desc)
	}
	return resp.Data.CheckoutURL, nil
}

type PaymentInfo struct {
	OrderCode  int64           `json:"orderCode"`
	Amount     decimal.Decimal `json:"amount"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Status     string          `json:"status"`
}

func (c *Client) GetPaymentInfo(ctx context.Context, orderCode int64) (*PaymentInfo, error) {
	var resp struct {
		Code string      `json:"code"`
		Desc string      `json:"desc"`
		Data PaymentInfo `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/v2/payment-requests/%d", orderCode), &resp); err != nil {
		return nil, err
	}
	if resp.Code != CodeSuccess {
		return nil, errors.Wrapf(ErrGateway, "get payment info: code %s (%s)", resp.Code, resp.Desc)
	}
	return &resp.Data, nil
}

func (c *Client) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	body := map[string]string{"cancellationReason": reason}
	var resp struct {
		Code string `json:"code"`
		Desc string `json:"desc"`
	}
	if err := c.post(ctx, fmt.Sprintf("/v2/payment-requests/%d/cancel", orderCode), body, &resp); err != nil {
		return err
	}
	if resp.Code != CodeSuccess {
		return errors.Wrapf(ErrGateway, "cancel payment link: code %s (%s)", resp.Code, resp.Desc)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(ErrGateway, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(ErrGateway, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(ErrGateway, err.Error())
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(ErrGateway, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(ErrGateway, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrGateway, "unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(ErrGateway, err.Error())
	}
	return nil
}
