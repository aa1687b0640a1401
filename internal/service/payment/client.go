package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const (
	// DefaultTimeout ограничивает один запрос к шлюзу, если таймаут не задан.
	DefaultTimeout   = 10 * time.Second
	snapTransactions = "/snap/v1/transactions"
)

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type snapRequest struct {
	TransactionDetails transactionDetails `json:"transaction_details"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

// SnapClient запрашивает ссылку на оплату у Snap-совместимого шлюза.
// Запрос выполняется один раз: повторы могли бы создать две транзакции на один заказ.
type SnapClient struct {
	baseURL   string
	serverKey string
	timeout   time.Duration
	hc        *http.Client
	logger    *log.Entry
}

// NewSnapClient создаёт HTTP-клиент шлюза. serverKey передаётся как логин Basic-авторизации.
func NewSnapClient(baseURL, serverKey string, timeout time.Duration, hc *http.Client, logger *log.Entry) *SnapClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = log.WithField("component", "payment-gateway")
	}
	return &SnapClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		serverKey: serverKey,
		timeout:   timeout,
		hc:        hc,
		logger:    logger,
	}
}

// CreatePaymentLink реализует domain.PaymentGateway.
func (c *SnapClient) CreatePaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (domain.PaymentDescriptor, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return domain.PaymentDescriptor{}, errors.Join(errs...)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(snapRequest{TransactionDetails: transactionDetails{
		OrderID:     req.OrderID,
		GrossAmount: req.Amount,
	}})
	if err != nil {
		return domain.PaymentDescriptor{}, fmt.Errorf("encode payment request: %w", err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+snapTransactions, bytes.NewReader(body))
	if err != nil {
		return domain.PaymentDescriptor{}, fmt.Errorf("%w: build request: %v", domain.ErrPaymentGateway, err)
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	hr.SetBasicAuth(c.serverKey, "")

	logger := c.logger.WithField("order_id", req.OrderID)

	hresp, err := c.hc.Do(hr)
	if err != nil {
		logger.WithError(err).Error("payment gateway request failed")
		return domain.PaymentDescriptor{}, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	defer hresp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(hresp.Body, 1<<20))
	if err != nil {
		logger.WithError(err).Error("read payment gateway response")
		return domain.PaymentDescriptor{}, fmt.Errorf("%w: read response: %v", domain.ErrPaymentGateway, err)
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		logger.WithFields(log.Fields{
			"status": hresp.StatusCode,
			"body":   string(respBody),
		}).Error("payment gateway rejected request")
		return domain.PaymentDescriptor{}, fmt.Errorf("%w: status %d", domain.ErrPaymentGateway, hresp.StatusCode)
	}

	var resp snapResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		logger.WithError(err).Error("decode payment gateway response")
		return domain.PaymentDescriptor{}, fmt.Errorf("%w: decode response: %v", domain.ErrPaymentGateway, err)
	}
	if resp.Token == "" || resp.RedirectURL == "" {
		return domain.PaymentDescriptor{}, fmt.Errorf("%w: empty payment link (%s)", domain.ErrPaymentGateway, strings.Join(resp.ErrorMessages, "; "))
	}

	return domain.PaymentDescriptor{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

var _ domain.PaymentGateway = (*SnapClient)(nil)
