package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Behyna/dcb-renewal-service/pkg/httpclient"
	"github.com/shopspring/decimal"
)

const (
	robiChargeEndpoint = "/api/renewSubscription"

	OperatorRobi    = "ROBI"
	DefaultCurrency = "BDT"

	statusCharged = "charged"
)

type RobiConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type robiGateway struct {
	cfg    RobiConfig
	client httpclient.HTTPClient
}

func NewRobiGateway(cfg RobiConfig, client httpclient.HTTPClient) Gateway {
	return &robiGateway{cfg: cfg, client: client}
}

type robiChargeBody struct {
	APIKey               string          `json:"apiKey"`
	Username             string          `json:"username"`
	SPTransID            string          `json:"spTransID"`
	Description          string          `json:"description"`
	Currency             string          `json:"currency"`
	Amount               decimal.Decimal `json:"amount"`
	OnBehalfOf           string          `json:"onBehalfOf"`
	PurchaseCategoryCode string          `json:"purchaseCategoryCode"`
	ReferenceCode        string          `json:"referenceCode"`
	Channel              string          `json:"channel"`
	TaxAmount            int             `json:"taxAmount"`
	MSISDN               string          `json:"msisdn"`
	Operator             string          `json:"operator"`
	SubscriptionID       string          `json:"subscriptionID"`
	UnSubURL             string          `json:"unSubURL"`
	ContactInfo          string          `json:"contactInfo"`
}

// Charge posts a renewal to the ROBI MIFE API. The charge succeeded iff the
// response's transactionOperationStatus equals "charged", case-insensitively,
// regardless of the HTTP status code.
func (r *robiGateway) Charge(ctx context.Context, req ChargeRequest) Result {
	if req.Robi == nil {
		return Result{
			Success: false,
			Error:   &Error{Code: ErrorCodeMissingParams, Message: "robi charge requires operator params"},
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	body := robiChargeBody{
		APIKey:               req.Robi.APIKey,
		Username:             req.Robi.Username,
		SPTransID:            req.TransactionID,
		Description:          req.Description,
		Currency:             currency,
		Amount:               req.Amount,
		OnBehalfOf:           req.Robi.OnBehalfOf,
		PurchaseCategoryCode: req.Robi.PurchaseCategoryCode,
		ReferenceCode:        req.ReferenceCode,
		Channel:              req.Robi.Channel,
		TaxAmount:            0,
		MSISDN:               req.MSISDN,
		Operator:             OperatorRobi,
		SubscriptionID:       req.Robi.SubscriptionID,
		UnSubURL:             req.Robi.UnSubURL,
		ContactInfo:          req.Robi.ContactInfo,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Result{
			Success: false,
			Error:   &Error{Code: ErrorCodeMissingParams, Message: err.Error()},
		}
	}

	headers := map[string]string{"Content-Type": "application/json"}

	start := time.Now()
	resp, err := r.client.Post(ctx, r.cfg.BaseURL+robiChargeEndpoint, bytes.NewReader(payload), headers)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Success:        false,
			HTTPStatus:     http.StatusGatewayTimeout,
			Error:          classifyTransportError(err),
			RequestPayload: string(payload),
			DurationMs:     duration,
		}
	}

	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	result := Result{
		HTTPStatus:      resp.StatusCode,
		RequestPayload:  string(payload),
		ResponsePayload: string(respBody),
		DurationMs:      duration,
	}

	var data map[string]any
	if err := json.Unmarshal(respBody, &data); err != nil {
		result.Error = &Error{Code: ErrorCodeInvalidResponse, Message: err.Error()}
		return result
	}

	result.Data = data

	status, _ := data["transactionOperationStatus"].(string)
	result.Success = strings.EqualFold(status, statusCharged)

	return result
}
