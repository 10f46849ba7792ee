package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/reservation"
)

// PaymentClient 支付网关客户端，实现 reservation.PaymentClient。
type PaymentClient struct {
	c *client
}

func NewPaymentClient(ep config.UpstreamEndpoint, log logger.Logger) *PaymentClient {
	return &PaymentClient{c: newClient("payment", ep, log)}
}

type createPaymentRequest struct {
	ReservationID string `json:"reservation_id"`
	AmountCents   int64  `json:"amount_cents"`
	Description   string `json:"description"`
}

func (p *PaymentClient) CreatePaymentRequest(ctx context.Context, reservationID string, amountCents int64, description string) (*reservation.PaymentRequest, error) {
	var out reservation.PaymentRequest
	err := p.c.doJSON(ctx, http.MethodPost, "/api/v1/payment-requests", createPaymentRequest{
		ReservationID: reservationID,
		AmountCents:   amountCents,
		Description:   description,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *PaymentClient) GetRecordByToken(ctx context.Context, token string) (*reservation.PaymentRecord, error) {
	var out reservation.PaymentRecord
	err := p.c.doJSON(ctx, http.MethodGet, "/api/v1/payment-records/"+url.PathEscape(token), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
