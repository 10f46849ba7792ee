package upstream

import (
	"context"
	"net/http"

	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
)

// TrackingClient 车辆遥测服务客户端，实现 reservation.TrackingClient。
// 会话开关是取车/结算流转的必需副作用，失败直接上抛。
type TrackingClient struct {
	c *client
}

func NewTrackingClient(ep config.UpstreamEndpoint, log logger.Logger) *TrackingClient {
	return &TrackingClient{c: newClient("tracking", ep, log)}
}

type sessionRequest struct {
	VehicleID     string `json:"vehicle_id"`
	ReservationID string `json:"reservation_id"`
	CustomerID    string `json:"customer_id"`
}

func (t *TrackingClient) StartSession(ctx context.Context, vehicleID, reservationID, customerID string) error {
	return t.c.doJSON(ctx, http.MethodPost, "/api/v1/sessions/start", sessionRequest{
		VehicleID:     vehicleID,
		ReservationID: reservationID,
		CustomerID:    customerID,
	}, nil)
}

func (t *TrackingClient) EndSession(ctx context.Context, vehicleID, reservationID, customerID string) error {
	return t.c.doJSON(ctx, http.MethodPost, "/api/v1/sessions/end", sessionRequest{
		VehicleID:     vehicleID,
		ReservationID: reservationID,
		CustomerID:    customerID,
	}, nil)
}
