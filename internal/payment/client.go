// Package payment is the tip API client: balance, tips and token activation.
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

	logx "charitybot/pkg/logx"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var ErrBadResponse = errors.New("payment api: bad response")

type Config struct {
	URL    string
	APIKey string

	// Network is the destination network for payouts (xrptipbot://<network>/<user>).
	Network string
	// MaxPerCall is the largest amount sent in a single tip call. Larger payouts are chunked.
	MaxPerCall decimal.Decimal
	// CallInterval spaces consecutive chunk calls. 0 means no pacing.
	CallInterval time.Duration
	Timeout      time.Duration

	Platform string // login metadata
	Model    string
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("payment url is empty")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("payment api key is empty")
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if !cfg.MaxPerCall.IsPositive() {
		cfg.MaxPerCall = decimal.NewFromInt(20)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Network == "" {
		cfg.Network = "twitter"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.CallInterval > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.CallInterval), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: lim,
		log:     log,
	}, nil
}

type balanceResponse struct {
	Error json.RawMessage `json:"error,omitempty"`
	Data  struct {
		Balance struct {
			XRP *decimal.Decimal `json:"XRP"`
		} `json:"balance"`
	} `json:"data"`
}

// Balance returns the account's spendable balance.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.call(ctx, "/action:balance/", map[string]any{"token": c.cfg.APIKey}, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}
	if hasError(resp.Error) {
		return decimal.Zero, fmt.Errorf("balance: %w: %s", ErrBadResponse, resp.Error)
	}
	if resp.Data.Balance.XRP == nil {
		return decimal.Zero, fmt.Errorf("balance: %w: no balance in response", ErrBadResponse)
	}
	return *resp.Data.Balance.XRP, nil
}

// Login activates the API token. Needed once for a fresh token.
func (c *Client) Login(ctx context.Context) error {
	var resp struct {
		Error json.RawMessage `json:"error,omitempty"`
	}
	body := map[string]any{"token": c.cfg.APIKey, "platform": c.cfg.Platform, "model": c.cfg.Model}
	if err := c.call(ctx, "/action:login/", body, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if hasError(resp.Error) {
		return fmt.Errorf("login: %w: %s", ErrBadResponse, resp.Error)
	}
	return nil
}

// Pay sends amount to user, split into calls of at most MaxPerCall.
// A failed chunk aborts the rest; chunks already sent are not rolled back.
func (c *Client) Pay(ctx context.Context, user string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("pay %s: amount must be > 0", user)
	}
	dest := "xrptipbot://" + c.cfg.Network + "/" + user
	for _, chunk := range Chunks(amount, c.cfg.MaxPerCall) {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.tip(ctx, dest, chunk); err != nil {
			return fmt.Errorf("pay %s %s: %w", user, chunk, err)
		}
		c.log.Debug("tip sent", logx.String("to", dest), logx.Stringer("amount", chunk))
	}
	return nil
}

func (c *Client) tip(ctx context.Context, dest string, amount decimal.Decimal) error {
	var resp struct {
		Error json.RawMessage `json:"error,omitempty"`
	}
	body := map[string]any{"token": c.cfg.APIKey, "to": dest, "amount": json.Number(amount.String())}
	if err := c.call(ctx, "/action:tip/", body, &resp); err != nil {
		return err
	}
	if hasError(resp.Error) {
		return fmt.Errorf("%w: %s", ErrBadResponse, resp.Error)
	}
	return nil
}

// Chunks splits amount into pieces no larger than max, largest first.
func Chunks(amount, max decimal.Decimal) []decimal.Decimal {
	var out []decimal.Decimal
	for amount.GreaterThan(max) {
		out = append(out, max)
		amount = amount.Sub(max)
	}
	if amount.IsPositive() {
		out = append(out, amount)
	}
	return out
}

func (c *Client) call(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: http %d", ErrBadResponse, res.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// hasError treats absent, null, false and "" as no error.
func hasError(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != "false" && s != `""`
}

// Activate checks the balance and, if that fails, logs in once and checks again.
func (c *Client) Activate(ctx context.Context) (decimal.Decimal, error) {
	bal, err := c.Balance(ctx)
	if err == nil {
		return bal, nil
	}
	c.log.Warn("balance check failed; activating token", logx.Err(err))
	if err := c.Login(ctx); err != nil {
		return decimal.Zero, err
	}
	return c.Balance(ctx)
}
