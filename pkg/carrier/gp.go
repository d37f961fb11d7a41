package carrier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Behyna/dcb-renewal-service/pkg/httpclient"
	"github.com/shopspring/decimal"
)

const (
	gpChargeEndpoint = "/partner/payment/v1/%s/transactions/amount"

	ChannelSelfWeb       = "SelfWeb"
	PurchaseCategoryGame = "Game"
)

// gameProducts lists the product identifiers that require the Game purchase
// category code on the GP wire.
var gameProducts = map[string]struct{}{
	"XPGames":  {},
	"GameApex": {},
}

type GPConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	AuthUser string        `mapstructure:"auth_user"`
	AuthPass string        `mapstructure:"auth_pass"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type gpGateway struct {
	cfg    GPConfig
	client httpclient.HTTPClient
}

func NewGPGateway(cfg GPConfig, client httpclient.HTTPClient) Gateway {
	return &gpGateway{cfg: cfg, client: client}
}

type gpChargeBody struct {
	AmountTransaction gpAmountTransaction `json:"amountTransaction"`
}

type gpAmountTransaction struct {
	EndUserID                  string          `json:"endUserId"`
	PaymentAmount              gpPaymentAmount `json:"paymentAmount"`
	ReferenceCode              string          `json:"referenceCode"`
	TransactionOperationStatus string          `json:"transactionOperationStatus"`
}

type gpPaymentAmount struct {
	ChargingInformation gpChargingInformation `json:"chargingInformation"`
	ChargingMetaData    gpChargingMetaData    `json:"chargingMetaData"`
}

type gpChargingInformation struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

type gpChargingMetaData struct {
	Channel              string `json:"channel"`
	SubscriptionPeriod   string `json:"subscriptionPeriod"`
	PurchaseCategoryCode string `json:"purchaseCategoryCode,omitempty"`
}

// Charge posts an amount transaction to the GP payment API. HTTP 200 is the
// sole success signal; any other status is a decline carried in the Result.
func (g *gpGateway) Charge(ctx context.Context, req ChargeRequest) Result {
	body := gpChargeBody{
		AmountTransaction: gpAmountTransaction{
			EndUserID: req.MSISDN,
			PaymentAmount: gpPaymentAmount{
				ChargingInformation: gpChargingInformation{
					Amount:      req.Amount,
					Currency:    req.Currency,
					Description: req.Description,
				},
				ChargingMetaData: gpChargingMetaData{
					Channel:            ChannelSelfWeb,
					SubscriptionPeriod: SubscriptionPeriod(req.BillingCycleDays),
				},
			},
			ReferenceCode:              req.ReferenceCode,
			TransactionOperationStatus: "Charged",
		},
	}

	if _, ok := gameProducts[req.ProductID]; ok {
		body.AmountTransaction.PaymentAmount.ChargingMetaData.PurchaseCategoryCode = PurchaseCategoryGame
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Result{
			Success: false,
			Error:   &Error{Code: ErrorCodeMissingParams, Message: fmt.Sprintf("encoding charge request: %v", err)},
		}
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": basicAuth(g.cfg.AuthUser, g.cfg.AuthPass),
	}

	url := g.cfg.BaseURL + fmt.Sprintf(gpChargeEndpoint, req.MSISDN)

	start := time.Now()
	resp, err := g.client.Post(ctx, url, bytes.NewReader(payload), headers)
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

	var data map[string]any
	_ = json.Unmarshal(respBody, &data)

	return Result{
		Success:         resp.StatusCode == http.StatusOK,
		HTTPStatus:      resp.StatusCode,
		Data:            data,
		RequestPayload:  string(payload),
		ResponsePayload: string(respBody),
		DurationMs:      duration,
	}
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
