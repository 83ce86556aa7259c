// Package bridge implements the terminal contract over JSON/HTTP
// against a terminal bridge process colocated with the trading
// terminal install.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"mt5-gateway/pkg/terminal"
)

// Bridge error codes for empty responses.
const (
	codeNoTick           = 1009
	codeNoBar            = 1011
	codeSymbolNotFound   = 1007
	codePositionNotFound = 1012
)

// Config holds bridge connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Requests per second against the bridge; 0 disables limiting.
	RPS   float64
	Burst int
}

// Client talks to one terminal bridge instance. One Client per account
// connection; serialization is the session's responsibility.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a bridge client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("bridge %s: encode: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s: %w", path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("bridge %s: status %d: decode: %w", path, res.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			switch env.Error.Code {
			case codeNoTick:
				return terminal.ErrNoTick
			case codeNoBar:
				return terminal.ErrNoBar
			case codeSymbolNotFound:
				return terminal.ErrSymbolNotFound
			case codePositionNotFound:
				return terminal.ErrPositionNotFound
			}
			return fmt.Errorf("bridge %s: code %d: %s", path, env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("bridge %s: status %d", path, res.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("bridge %s: decode data: %w", path, err)
		}
	}
	return nil
}

func (c *Client) Initialize(ctx context.Context, path string) error {
	return c.call(ctx, http.MethodPost, "/initialize", map[string]string{"path": path}, nil)
}

func (c *Client) Login(ctx context.Context, login int64, password, server string) error {
	body := map[string]any{"login": login, "password": password, "server": server}
	return c.call(ctx, http.MethodPost, "/login", body, nil)
}

func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/shutdown", nil, nil)
}

func (c *Client) SymbolNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, http.MethodGet, "/symbols", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) SymbolSelect(ctx context.Context, symbol string, enable bool) (bool, error) {
	var out struct {
		Selected bool `json:"selected"`
	}
	body := map[string]any{"symbol": symbol, "enable": enable}
	if err := c.call(ctx, http.MethodPost, "/symbol_select", body, &out); err != nil {
		return false, err
	}
	return out.Selected, nil
}

type symbolInfoDTO struct {
	Name        string  `json:"name"`
	Point       float64 `json:"point"`
	Digits      int     `json:"digits"`
	Spread      int     `json:"spread"`
	TradeMode   int     `json:"trade_mode"`
	VolumeMin   float64 `json:"volume_min"`
	VolumeMax   float64 `json:"volume_max"`
	VolumeStep  float64 `json:"volume_step"`
	StopsLevel  int     `json:"stops_level"`
	FillingMode int     `json:"filling_mode"`
}

func (c *Client) SymbolInfo(ctx context.Context, symbol string) (terminal.SymbolInfo, error) {
	var dto symbolInfoDTO
	if err := c.call(ctx, http.MethodGet, "/symbol_info/"+symbol, nil, &dto); err != nil {
		return terminal.SymbolInfo{}, err
	}
	return terminal.SymbolInfo{
		Name:        dto.Name,
		Point:       dto.Point,
		Digits:      dto.Digits,
		Spread:      dto.Spread,
		TradeMode:   terminal.TradeMode(dto.TradeMode),
		VolumeMin:   dto.VolumeMin,
		VolumeMax:   dto.VolumeMax,
		VolumeStep:  dto.VolumeStep,
		StopsLevel:  dto.StopsLevel,
		FillingMask: dto.FillingMode,
	}, nil
}

func (c *Client) SymbolTick(ctx context.Context, symbol string) (terminal.Tick, error) {
	var dto struct {
		Bid  float64 `json:"bid"`
		Ask  float64 `json:"ask"`
		Time int64   `json:"time"`
	}
	if err := c.call(ctx, http.MethodGet, "/tick/"+symbol, nil, &dto); err != nil {
		return terminal.Tick{}, err
	}
	return terminal.Tick{Bid: dto.Bid, Ask: dto.Ask, Time: time.Unix(dto.Time, 0)}, nil
}

func (c *Client) LastBar(ctx context.Context, symbol string) (terminal.Bar, error) {
	var dto struct {
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
		Time  int64   `json:"time"`
	}
	if err := c.call(ctx, http.MethodGet, "/bar/"+symbol, nil, &dto); err != nil {
		return terminal.Bar{}, err
	}
	return terminal.Bar{High: dto.High, Low: dto.Low, Close: dto.Close, Time: time.Unix(dto.Time, 0)}, nil
}

func (c *Client) OrderSend(ctx context.Context, req terminal.OrderRequest) (terminal.OrderResult, error) {
	body := map[string]any{
		"action":    int(req.Action),
		"symbol":    req.Symbol,
		"volume":    req.Volume,
		"type":      int(req.Type),
		"price":     req.Price,
		"sl":        req.StopLoss,
		"tp":        req.TakeProfit,
		"deviation": req.Deviation,
		"magic":     req.Magic,
		"comment":   req.Comment,
		"filling":   int(req.Filling),
	}
	if req.Position != 0 {
		body["position"] = req.Position
	}
	var dto struct {
		Retcode int     `json:"retcode"`
		Order   int64   `json:"order"`
		Deal    int64   `json:"deal"`
		Volume  float64 `json:"volume"`
		Price   float64 `json:"price"`
		Comment string  `json:"comment"`
	}
	if err := c.call(ctx, http.MethodPost, "/order_send", body, &dto); err != nil {
		return terminal.OrderResult{}, err
	}
	return terminal.OrderResult{
		Retcode: terminal.Retcode(dto.Retcode),
		Order:   dto.Order,
		Deal:    dto.Deal,
		Volume:  dto.Volume,
		Price:   dto.Price,
		Comment: dto.Comment,
	}, nil
}

type positionDTO struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         int     `json:"type"`
	Volume       float64 `json:"volume"`
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	StopLoss     float64 `json:"sl"`
	TakeProfit   float64 `json:"tp"`
	Profit       float64 `json:"profit"`
	Magic        int64   `json:"magic"`
	Comment      string  `json:"comment"`
	Time         int64   `json:"time"`
}

func (d positionDTO) toPosition() terminal.Position {
	return terminal.Position{
		Ticket:       d.Ticket,
		Symbol:       d.Symbol,
		Type:         terminal.PositionType(d.Type),
		Volume:       d.Volume,
		PriceOpen:    d.PriceOpen,
		PriceCurrent: d.PriceCurrent,
		StopLoss:     d.StopLoss,
		TakeProfit:   d.TakeProfit,
		Profit:       d.Profit,
		Magic:        d.Magic,
		Comment:      d.Comment,
		Time:         time.Unix(d.Time, 0),
	}
}

func (c *Client) Positions(ctx context.Context) ([]terminal.Position, error) {
	var dtos []positionDTO
	if err := c.call(ctx, http.MethodGet, "/positions", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]terminal.Position, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toPosition())
	}
	return out, nil
}

func (c *Client) PositionByTicket(ctx context.Context, ticket int64) (terminal.Position, error) {
	var dto positionDTO
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/position/%d", ticket), nil, &dto); err != nil {
		return terminal.Position{}, err
	}
	return dto.toPosition(), nil
}

func (c *Client) AccountInfo(ctx context.Context) (terminal.AccountInfo, error) {
	var dto struct {
		Login        int64   `json:"login"`
		Balance      float64 `json:"balance"`
		Equity       float64 `json:"equity"`
		Margin       float64 `json:"margin"`
		MarginFree   float64 `json:"margin_free"`
		TradeAllowed bool    `json:"trade_allowed"`
		TradeExpert  bool    `json:"trade_expert"`
	}
	if err := c.call(ctx, http.MethodGet, "/account_info", nil, &dto); err != nil {
		return terminal.AccountInfo{}, err
	}
	return terminal.AccountInfo{
		Login:        dto.Login,
		Balance:      dto.Balance,
		Equity:       dto.Equity,
		Margin:       dto.Margin,
		MarginFree:   dto.MarginFree,
		TradeAllowed: dto.TradeAllowed,
		TradeExpert:  dto.TradeExpert,
	}, nil
}
