package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
)

// IdentityClient 客户身份服务客户端，读写信誉分（0-100），
// 实现 reservation.IdentityClient。
type IdentityClient struct {
	c *client
}

func NewIdentityClient(ep config.UpstreamEndpoint, log logger.Logger) *IdentityClient {
	return &IdentityClient{c: newClient("identity", ep, log)}
}

type scoreResponse struct {
	CustomerID string `json:"customer_id"`
	Score      int    `json:"score"`
}

type updateScoreRequest struct {
	Score int `json:"score"`
}

func (i *IdentityClient) GetScore(ctx context.Context, customerID string) (int, error) {
	var out scoreResponse
	err := i.c.doJSON(ctx, http.MethodGet, "/api/v1/customers/"+url.PathEscape(customerID)+"/score", nil, &out)
	if err != nil {
		return 0, err
	}
	return out.Score, nil
}

func (i *IdentityClient) UpdateScore(ctx context.Context, customerID string, score int) error {
	return i.c.doJSON(ctx, http.MethodPut, "/api/v1/customers/"+url.PathEscape(customerID)+"/score",
		updateScoreRequest{Score: score}, nil)
}
