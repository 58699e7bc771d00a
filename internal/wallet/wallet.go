// Package wallet is the execution collaborator: it turns sized orders into
// fills. Transaction building and signing live behind Executor.
package wallet

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// ErrNoPrice is returned when an order's token has no usable price.
var ErrNoPrice = errors.New("no price for token")

// Order is a sized swap request built from a trade signal.
type Order struct {
	AgentID  string  `json:"agent_id"`
	Wallet   string  `json:"wallet"`
	Skill    string  `json:"skill"`
	Side     string  `json:"side"`
	Token    string  `json:"token"`
	Quote    string  `json:"quote"`
	Notional float64 `json:"notional"` // in quote units
	// Capital is the vault value the order was sized against. Buys never
	// leave more than this committed to open positions.
	Capital float64 `json:"capital"`
}

// Fill is the result of an executed order.
type Fill struct {
	TxRef     string  `json:"tx_ref"`
	TokenIn   string  `json:"token_in"`
	TokenOut  string  `json:"token_out"`
	AmountIn  float64 `json:"amount_in"`
	AmountOut float64 `json:"amount_out"`
	PnL       float64 `json:"pnl"`
}

// Executor executes orders. A nil fill with a nil error means nothing was
// executed.
type Executor interface {
	Execute(ctx context.Context, order Order) (*Fill, error)
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// NewAddress generates a random 44 character base58 wallet address.
func NewAddress() (string, error) {
	buf := make([]byte, 44)
	radix := big.NewInt(int64(len(base58Alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			return "", err
		}
		buf[i] = base58Alphabet[n.Int64()]
	}
	return string(buf), nil
}
