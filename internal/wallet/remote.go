package wallet

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"arena-trade-agent-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// RemoteExecutor forwards orders to a signer service that owns the agent
// wallets. The service builds, signs and sends the transaction and answers
// with the fill, or 204 when it decided not to trade.
type RemoteExecutor struct {
	client *resty.Client
	logger *zap.Logger
}

var _ Executor = (*RemoteExecutor)(nil)

// NewRemoteExecutor creates an executor for the configured signer service.
func NewRemoteExecutor(cfg config.Wallet, logger *zap.Logger) *RemoteExecutor {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.AppID != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.AppID + ":" + cfg.AppSecret))
		client.SetHeader("Authorization", "Basic "+creds)
		client.SetHeader("privy-app-id", cfg.AppID)
	}
	return &RemoteExecutor{client: client, logger: logger.Named("wallet.remote")}
}

func (r *RemoteExecutor) Execute(ctx context.Context, order Order) (*Fill, error) {
	var fill Fill
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("wallet", order.Wallet).
		SetBody(order).
		SetResult(&fill).
		Post("/v1/wallets/{wallet}/orders")
	if err != nil {
		return nil, fmt.Errorf("failed to submit order: %w", err)
	}
	if resp.StatusCode() == http.StatusNoContent {
		r.logger.Info("Signer declined order", zap.String("agent_id", order.AgentID), zap.String("token", order.Token))
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("order rejected with status %s: %s", resp.Status(), resp.String())
	}
	if fill.TxRef == "" {
		return nil, fmt.Errorf("signer returned a fill without a transaction reference")
	}

	r.logger.Info("Order executed",
		zap.String("agent_id", order.AgentID),
		zap.String("tx_ref", fill.TxRef),
		zap.Float64("pnl", fill.PnL))
	return &fill, nil
}
