package remote

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

	pkgerrors "github.com/parcelpoint/parcelpoint-sync/pkg/errors"
)

const (
	defaultTimeout             = 10 * time.Second
	responseBodyReadLimit      = 64 * 1024
	defaultRateLimitRetryAfter = 5 * time.Second
)

var (
	errBaseURLRequired = errors.New("remote store base url is required")
	errTokenRequired   = errors.New("remote store access token is required")
)

// Client talks to the hosted REST facade of the remote store. It is the only
// place that understands that backend's status codes and error payloads.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the remote store client.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedToken := strings.TrimSpace(token)
	if trimmedToken == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		baseURL:    trimmedURL,
		token:      trimmedToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Query implements Store.
func (c *Client) Query(ctx context.Context, table string, filter Filter, dest any) error {
	endpoint, err := c.endpoint(table, filter)
	if err != nil {
		return err
	}
	body, cerr := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if cerr != nil {
		return cerr
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindUnknown, err, fmt.Sprintf("decode %s query response", table))
	}
	return nil
}

// Update implements Store. The condition is rendered as an extra filter so
// the write only lands while the guard still holds; zero affected rows
// classify as not-found.
func (c *Client) Update(ctx context.Context, table string, id uuid.UUID, patch map[string]any, cond *Condition, dest any) error {
	filter := Filter{"id": Eq(id.String())}
	if cond != nil {
		filter[cond.Field] = Eq(cond.Equals)
	}
	endpoint, err := c.endpoint(table, filter)
	if err != nil {
		return err
	}

	payload, merr := json.Marshal(patch)
	if merr != nil {
		return pkgerrors.Wrap(pkgerrors.KindValidation, merr, "encode update patch")
	}

	body, cerr := c.do(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload), "return=representation")
	if cerr != nil {
		return cerr
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return pkgerrors.Wrap(pkgerrors.KindUnknown, err, fmt.Sprintf("decode %s update response", table))
	}
	if len(records) == 0 {
		return pkgerrors.New(pkgerrors.KindNotFound, fmt.Sprintf("%s %s: no row matched the update condition", table, id))
	}
	if dest != nil {
		if err := json.Unmarshal(records[0], dest); err != nil {
			return pkgerrors.Wrap(pkgerrors.KindUnknown, err, fmt.Sprintf("decode updated %s record", table))
		}
	}
	return nil
}

// Delete implements Store.
func (c *Client) Delete(ctx context.Context, table string, id uuid.UUID) error {
	endpoint, err := c.endpoint(table, Filter{"id": Eq(id.String())})
	if err != nil {
		return err
	}
	_, cerr := c.do(ctx, http.MethodDelete, endpoint, nil, "")
	return errOrNil(cerr)
}

func errOrNil(err *pkgerrors.Error) error {
	if err == nil {
		return nil
	}
	return err
}

func (c *Client) endpoint(table string, filter Filter) (string, *pkgerrors.Error) {
	if strings.TrimSpace(table) == "" {
		return "", pkgerrors.New(pkgerrors.KindValidation, "remote table name is required")
	}
	values := url.Values{}
	for column, predicate := range filter {
		values.Set(column, predicate)
	}
	endpoint := c.baseURL + "/" + url.PathEscape(table)
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, prefer string) ([]byte, *pkgerrors.Error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindUnknown, err, "build remote store request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindNetwork, err, fmt.Sprintf("%s %s", method, endpoint))
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if readErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.KindNetwork, readErr, "read remote store response")
	}
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return payload, nil
	}
	return nil, classifyResponse(resp, payload)
}

// backendError is the error payload shape of the hosted backend.
type backendError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func classifyResponse(resp *http.Response, payload []byte) *pkgerrors.Error {
	var backend backendError
	_ = json.Unmarshal(payload, &backend)

	message := backend.Message
	if message == "" {
		message = strings.TrimSpace(string(payload))
	}
	if message == "" {
		message = resp.Status
	}
	if backend.Code != "" {
		message = fmt.Sprintf("%s (%s)", message, backend.Code)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return pkgerrors.New(pkgerrors.KindAuth, message)
	case resp.StatusCode == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.KindNotFound, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.KindRateLimit, message).
			WithRetryAfter(retryAfter(resp.Header))
	case resp.StatusCode == http.StatusConflict || isConstraintCode(backend.Code):
		return pkgerrors.New(pkgerrors.KindDatabase, message)
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		return pkgerrors.New(pkgerrors.KindValidation, message)
	case resp.StatusCode >= http.StatusInternalServerError:
		return pkgerrors.New(pkgerrors.KindNetwork, message)
	default:
		return pkgerrors.New(pkgerrors.KindUnknown, message)
	}
}

// isConstraintCode recognizes the backend's passthrough of Postgres
// integrity-violation SQLSTATEs (class 23).
func isConstraintCode(code string) bool {
	return len(code) == 5 && strings.HasPrefix(code, "23")
}

func retryAfter(header http.Header) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return defaultRateLimitRetryAfter
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultRateLimitRetryAfter
}
