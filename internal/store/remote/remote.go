// Package remote provides the HTTP client for the table-oriented REST
// backend. Calls are select/insert/update/delete with filter predicates
// encoded as query parameters.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/store"
)

// Client talks to the remote relational data service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client with the given request timeout. Timeouts are
// treated identically to network failure by callers.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client.
func NewWithHTTPClient(baseURL, apiKey string, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    hc,
	}
}

// Kind reports the backend strategy.
func (c *Client) Kind() store.Kind {
	return store.KindRemote
}

// TableURL returns the REST endpoint for a table. The request router uses
// it to recognize the remote API surface.
func (c *Client) TableURL(table string) string {
	return c.baseURL + "/rest/v1/" + table
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping probes reachability. Any HTTP response counts as reachable; only a
// transport-level failure does not.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return apperr.Wrap(apperr.ErrInternal, "build ping request", err)
	}
	c.auth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrNetworkUnavailable, "ping", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Create inserts the record, re-sending the client-generated id verbatim.
// The service treats id as the idempotency key, so a replayed create of an
// already synced record comes back as a rejection, not a duplicate row.
func (c *Client) Create(ctx context.Context, table string, rec models.Record) (models.Record, error) {
	out, err := c.write(ctx, http.MethodPost, c.TableURL(table), nil, rec)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return rec, nil
	}
	return out[0], nil
}

// Read selects the records matching the query.
func (c *Client) Read(ctx context.Context, table string, q store.Query) ([]models.Record, error) {
	if !q.Valid() {
		return nil, apperr.New(apperr.ErrInvalid, "invalid query")
	}
	u := c.TableURL(table) + "?" + encodeQuery(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "build request", err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrNetworkUnavailable, "read response", err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var out []models.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "decode response", err)
	}
	return out, nil
}

// Update patches the record with the given id.
func (c *Client) Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error) {
	params := url.Values{"id": []string{"eq." + id}}
	out, err := c.write(ctx, http.MethodPatch, c.TableURL(table), params, patch)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperr.Newf(apperr.ErrNotFound, "%s/%s not found", table, id)
	}
	return out[0], nil
}

// Delete removes the record with the given id and returns it.
func (c *Client) Delete(ctx context.Context, table, id string) (models.Record, error) {
	params := url.Values{"id": []string{"eq." + id}}
	out, err := c.write(ctx, http.MethodDelete, c.TableURL(table), params, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperr.Newf(apperr.ErrNotFound, "%s/%s not found", table, id)
	}
	return out[0], nil
}

// write performs a mutating call and decodes the returned representation.
func (c *Client) write(ctx context.Context, method, u string, params url.Values, body models.Record) ([]models.Record, error) {
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalid, "encode record", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "build request", err)
	}
	c.auth(req)
	req.Header.Set("Prefer", "return=representation")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrNetworkUnavailable, "read response", err)
	}
	if err := classifyStatus(resp.StatusCode, data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var out []models.Record
	if err := json.Unmarshal(data, &out); err != nil {
		// single-object representation
		var one models.Record
		if err2 := json.Unmarshal(data, &one); err2 == nil {
			return []models.Record{one}, nil
		}
		return nil, apperr.Wrap(apperr.ErrInternal, "decode response", err)
	}
	return out, nil
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

// encodeQuery renders the query into the service's filter parameters.
func encodeQuery(q store.Query) string {
	params := url.Values{}
	for _, cond := range q.Conds {
		var v string
		switch cond.Op {
		case store.OpEq:
			v = fmt.Sprintf("eq.%v", cond.Value)
		case store.OpGte:
			v = fmt.Sprintf("gte.%v", cond.Value)
		case store.OpLte:
			v = fmt.Sprintf("lte.%v", cond.Value)
		case store.OpContains:
			v = fmt.Sprintf("like.*%v*", cond.Value)
		}
		params.Add(cond.Column, v)
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		params.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return params.Encode()
}

// classifyTransport maps transport errors, including timeouts, to the
// transient NETWORK_UNAVAILABLE code.
func classifyTransport(err error) error {
	return apperr.Wrap(apperr.ErrNetworkUnavailable, "request failed", err)
}

// classifyStatus maps response codes onto the error taxonomy: 5xx is
// transient, 404 is NOT_FOUND, any other 4xx is a backend rejection that
// retrying would only repeat.
func classifyStatus(status int, body []byte) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusNotFound:
		return apperr.Newf(apperr.ErrNotFound, "remote: %s", snippet(body))
	case status < 500:
		return apperr.Newf(apperr.ErrBackendRejected, "remote rejected (%d): %s", status, snippet(body))
	default:
		return apperr.Newf(apperr.ErrNetworkUnavailable, "remote unavailable (%d)", status)
	}
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}

// Compile-time check that the client satisfies the backend contract.
var _ store.Backend = (*Client)(nil)
