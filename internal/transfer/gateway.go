package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/custodia/escrowd/internal/model"
)

// GatewayClient is a Mover backed by an external custody gateway. The
// gateway executes the actual value movement and answers with 200 on success;
// any other outcome aborts the engine operation.
type GatewayClient struct {
	http *resty.Client
}

type transferOrder struct {
	Direction string `json:"direction"` // "in" | "out"
	Asset     string `json:"asset"`
	Account   string `json:"account"`
	Amount    int64  `json:"amount"`
}

func NewGatewayClient(baseURL, apiKey string) *GatewayClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &GatewayClient{http: c}
}

func (g *GatewayClient) TransferIn(ctx context.Context, asset model.Asset, from string, amount int64) error {
	return g.submit(ctx, transferOrder{Direction: "in", Asset: asset.String(), Account: from, Amount: amount})
}

func (g *GatewayClient) TransferOut(ctx context.Context, asset model.Asset, to string, amount int64) error {
	return g.submit(ctx, transferOrder{Direction: "out", Asset: asset.String(), Account: to, Amount: amount})
}

func (g *GatewayClient) submit(ctx context.Context, order transferOrder) error {
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(order).
		Post("/v1/transfers")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrTransferFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: gateway returned %s: %s",
			model.ErrTransferFailed, resp.Status(), resp.String())
	}
	return nil
}

// HealthPing probes the gateway health endpoint.
func (g *GatewayClient) HealthPing(ctx context.Context) error {
	resp, err := g.http.R().SetContext(ctx).Get("/v1/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("gateway health returned %s", resp.Status())
	}
	return nil
}
