package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hartwellgoods/storefront-backend/internal/cart"
	"github.com/hartwellgoods/storefront-backend/pkg/config"
	pkgerrors "github.com/hartwellgoods/storefront-backend/pkg/errors"
	"github.com/hartwellgoods/storefront-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("commerce base url is required")
	errTokenRequired   = errors.New("commerce api token is required")
)

// Client talks to the remote commerce backend that owns the cart. Every
// mutation returns the full updated snapshot; the backend never sends deltas.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logg       *logger.Logger
}

// NewClient validates the configuration and builds the backend client.
func NewClient(cfg config.CommerceConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return nil, errTokenRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
		logg:       logg,
	}, nil
}

// LineInput describes a merchandise/quantity pair for cart creation and adds.
type LineInput struct {
	MerchandiseID string `json:"merchandise_id"`
	Quantity      int    `json:"quantity"`
}

type cartEnvelope struct {
	Cart *cart.Snapshot `json:"cart"`
}

// CreateCart opens a new cart seeded with the given lines.
func (c *Client) CreateCart(ctx context.Context, lines []LineInput) (*cart.Snapshot, error) {
	return c.do(ctx, http.MethodPost, "/carts", map[string]any{"lines": lines})
}

// GetCart loads an existing cart by id.
func (c *Client) GetCart(ctx context.Context, cartID string) (*cart.Snapshot, error) {
	return c.do(ctx, http.MethodGet, "/carts/"+url.PathEscape(cartID), nil)
}

// AddLines appends lines to an existing cart.
func (c *Client) AddLines(ctx context.Context, cartID string, lines []LineInput) (*cart.Snapshot, error) {
	return c.do(ctx, http.MethodPost, c.cartPath(cartID, "/lines"), map[string]any{"lines": lines})
}

// UpdateLine sets the absolute quantity for one line.
func (c *Client) UpdateLine(ctx context.Context, cartID, lineID string, quantity int) (*cart.Snapshot, error) {
	path := c.cartPath(cartID, "/lines/"+url.PathEscape(lineID))
	return c.do(ctx, http.MethodPatch, path, map[string]any{"quantity": quantity})
}

// RemoveLines deletes the given lines from the cart.
func (c *Client) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*cart.Snapshot, error) {
	return c.do(ctx, http.MethodPost, c.cartPath(cartID, "/lines/remove"), map[string]any{"line_ids": lineIDs})
}

// UpdateDiscountCodes replaces the cart's discount code set.
func (c *Client) UpdateDiscountCodes(ctx context.Context, cartID string, codes []string) (*cart.Snapshot, error) {
	return c.do(ctx, http.MethodPut, c.cartPath(cartID, "/discounts"), map[string]any{"codes": codes})
}

// AddGiftCard applies a gift card by code.
func (c *Client) AddGiftCard(ctx context.Context, cartID, code string) (*cart.Snapshot, error) {
	return c.do(ctx, http.MethodPost, c.cartPath(cartID, "/gift-cards"), map[string]any{"code": code})
}

// RemoveGiftCard detaches an applied gift card.
func (c *Client) RemoveGiftCard(ctx context.Context, cartID, giftCardID string) (*cart.Snapshot, error) {
	path := c.cartPath(cartID, "/gift-cards/"+url.PathEscape(giftCardID))
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) cartPath(cartID, suffix string) string {
	return "/carts/" + url.PathEscape(cartID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*cart.Snapshot, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode commerce request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build commerce request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commerce request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read commerce response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, mapStatusError(resp.StatusCode, payload)
	}

	var envelope cartEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode commerce response")
	}
	if envelope.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "commerce response missing cart")
	}
	return envelope.Cart, nil
}

// remoteError carries the upstream status and body for log dumps.
type remoteError struct {
	status int
	body   string
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("commerce backend returned %d", e.status)
}

func (e *remoteError) RemoteStatus() int { return e.status }

func (e *remoteError) RemoteBody() string { return e.body }

func mapStatusError(status int, body []byte) error {
	cause := &remoteError{status: status, body: strings.TrimSpace(string(body))}
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "cart not found")
	case status == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, cause, "commerce credentials rejected")
	case status == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, cause, "commerce access denied")
	case status == http.StatusConflict:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "commerce rejected mutation")
	case status >= 400 && status < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "commerce rejected payload").
			WithDetails(map[string]any{"remote_status": status})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "commerce backend error")
	}
}
