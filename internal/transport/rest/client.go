// Package rest is the synchronous transport: a client for the settlement
// service's REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"settleload/internal/action"
	"settleload/internal/core"
	"settleload/internal/transport"
)

// maxBodySize limits how much of a response is kept.
const maxBodySize = 10 * 1024 * 1024

// bearerPlaceholder is sent verbatim as the Authorization header.
const bearerPlaceholder = "Bearer {{access_token}}"

// Client talks to one settlement service base URL. It is safe for concurrent use.
type Client struct {
	base   string
	client *http.Client
	debug  *DebugLogger
	newID  func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithDebug dumps every exchange to d.
func WithDebug(d *DebugLogger) Option {
	return func(c *Client) { c.debug = d }
}

// WithCorrelationIDs sets the X-Correlation-ID source.
func WithCorrelationIDs(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// New returns a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the address requests are sent to.
func (c *Client) BaseURL() string {
	return c.base
}

// SubmitTransfer posts a transfer. It is accepted when the service assigns it a batch.
func (c *Client) SubmitTransfer(ctx context.Context, tr action.TransferRequest) (transport.Result, error) {
	body, err := json.Marshal(tr)
	if err != nil {
		return transport.Result{}, &transport.Error{Op: "POST /transfers", Err: err}
	}
	return c.submit(ctx, body)
}

// SubmitRaw posts a pre-serialized transfer body unchanged.
func (c *Client) SubmitRaw(ctx context.Context, body string) (transport.Result, error) {
	return c.submit(ctx, []byte(body))
}

func (c *Client) submit(ctx context.Context, body []byte) (transport.Result, error) {
	res, err := c.do(ctx, http.MethodPost, "/transfers", nil, body)
	if err != nil {
		return res, err
	}
	res.Accepted = gjson.GetBytes(res.Received, "batchId").String() != ""
	return res, nil
}

// Batches looks up the batches of model opened between from and to.
func (c *Client) Batches(ctx context.Context, model string, from, to time.Time) (transport.Result, []action.SettlementBatch, error) {
	q := url.Values{}
	q.Set("settlementModel", model)
	q.Set("fromDate", millis(from))
	q.Set("toDate", millis(to))

	res, err := c.do(ctx, http.MethodGet, "/batches", q, nil)
	if err != nil {
		return res, nil, err
	}

	var found action.BatchSearchResults
	if len(res.Received) > 0 {
		if err := json.Unmarshal(res.Received, &found); err != nil {
			return res, nil, &transport.Error{Op: "GET /batches", Err: fmt.Errorf("decoding batches: %w", err)}
		}
	}
	return res, found.Items, nil
}

func (c *Client) CreateMatrix(ctx context.Context, req action.CreateMatrixRequest) (transport.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return transport.Result{}, &transport.Error{Op: "POST /matrices", Err: err}
	}
	return c.do(ctx, http.MethodPost, "/matrices", nil, body)
}

func (c *Client) Matrix(ctx context.Context, id string) (transport.Result, error) {
	return c.do(ctx, http.MethodGet, "/matrices/"+url.PathEscape(id), nil, nil)
}

// MatricesByModel looks up the matrices of model created between from and to.
func (c *Client) MatricesByModel(ctx context.Context, model string, from, to time.Time) (transport.Result, error) {
	q := url.Values{}
	q.Set("model", model)
	q.Set("startDate", millis(from))
	q.Set("endDate", millis(to))
	return c.do(ctx, http.MethodGet, "/matrices", q, nil)
}

func (c *Client) AddBatches(ctx context.Context, m action.BatchMembership) (transport.Result, error) {
	return c.membership(ctx, http.MethodPost, m)
}

func (c *Client) RemoveBatches(ctx context.Context, m action.BatchMembership) (transport.Result, error) {
	return c.membership(ctx, http.MethodDelete, m)
}

func (c *Client) membership(ctx context.Context, method string, m action.BatchMembership) (transport.Result, error) {
	path := "/matrices/" + url.PathEscape(m.MatrixID) + "/batches"
	body, err := json.Marshal(m)
	if err != nil {
		return transport.Result{}, &transport.Error{Op: method + " " + path, Err: err}
	}
	return c.do(ctx, method, path, nil, body)
}

// MatrixCommand applies a lifecycle command to matrix id.
func (c *Client) MatrixCommand(ctx context.Context, id string, cmd transport.MatrixCommand) (transport.Result, error) {
	path := "/matrices/" + url.PathEscape(id) + "/" + string(cmd)
	body, err := json.Marshal(action.SettlementMatrix{ID: id})
	if err != nil {
		return transport.Result{}, &transport.Error{Op: "POST " + path, Err: err}
	}
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) TransfersByMatrix(ctx context.Context, matrixID string) (transport.Result, error) {
	return c.do(ctx, http.MethodGet, "/transfers", url.Values{"matrixId": {matrixID}}, nil)
}

func (c *Client) TransfersByBatch(ctx context.Context, batchID string) (transport.Result, error) {
	return c.do(ctx, http.MethodGet, "/transfers", url.Values{"batchId": {batchID}}, nil)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// do performs one exchange. A status >= 400 is returned as a *transport.Error
// carrying the status, with the body still available in the Result.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (transport.Result, error) {
	op := method + " " + path
	actorID := core.ActorIDFromContext(ctx)
	res := transport.Result{Sent: body}
	start := time.Now()

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var rdr io.Reader = http.NoBody
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		c.debug.LogError(actorID, op, err.Error(), time.Since(start))
		return res, &transport.Error{Op: op, Err: err}
	}
	req.Header.Set("X-Correlation-ID", c.newID())
	req.Header.Set("Authorization", bearerPlaceholder)
	req.Header.Set("Content-Type", "application/json")

	c.debug.LogRequest(actorID, op, req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.debug.LogError(actorID, op, err.Error(), time.Since(start))
		return res, &transport.Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	res.Received, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable
	duration := time.Since(start)
	res.StatusCode = resp.StatusCode
	if err != nil {
		c.debug.LogError(actorID, op, err.Error(), duration)
		return res, &transport.Error{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.debug.LogResponse(actorID, op, resp, res.Received, duration)

	if resp.StatusCode >= 400 {
		return res, &transport.Error{Op: op, Code: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	return res, nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
