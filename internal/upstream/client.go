package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/rs/zerolog"
)

// Client talks HTTP+JSON to the feed. The feed publishes no stable
// contract, so responses are decoded into generic column/row documents and
// the adapter absorbs drift by name-based lookup.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// feedResponse is the feed's generic envelope: a column list and rows of
// loosely typed cells.
type feedResponse struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Columns []string            `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
}

// NewClient creates a feed client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "upstream").Logger(),
	}
}

// get fetches one endpoint and decodes the envelope into a Frame. HTTP and
// feed-level failures map onto the closed error-kind set: 429 and the
// feed's own throttle code become RateLimited, 5xx and transport failures
// become UpstreamUnavailable, an unparseable envelope becomes SchemaDrift,
// and a well-formed empty result becomes Empty via ErrEmpty.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*Frame, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "build request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, mapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errs.New(errs.RateLimited, fmt.Sprintf("%s: 429", endpoint))
	case resp.StatusCode >= 500:
		return nil, errs.New(errs.UpstreamUnavailable, fmt.Sprintf("%s: status %d", endpoint, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, errs.New(errs.Unknown, fmt.Sprintf("%s: status %d", endpoint, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapTransportError(ctx, err)
	}

	var doc feedResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errs.Wrap(errs.SchemaDrift, err, endpoint+": undecodable envelope")
	}
	if doc.Code == feedThrottled {
		return nil, errs.New(errs.RateLimited, fmt.Sprintf("%s: %s", endpoint, doc.Message))
	}
	if doc.Code != 0 {
		return nil, errs.New(errs.UpstreamUnavailable, fmt.Sprintf("%s: feed code %d: %s", endpoint, doc.Code, doc.Message))
	}
	if len(doc.Columns) == 0 {
		return nil, errs.New(errs.SchemaDrift, endpoint+": envelope carries no columns")
	}

	frame := NewFrame(doc.Columns...)
	for _, row := range doc.Rows {
		if len(row) != len(doc.Columns) {
			// A ragged row is drift in miniature; skip it and let the
			// Transformer's counters show the loss.
			c.log.Warn().Str("endpoint", endpoint).Int("cells", len(row)).Msg("skipping ragged row")
			continue
		}
		cells := make([]string, len(row))
		for i, raw := range row {
			cells[i] = decodeCell(raw)
		}
		frame.Append(cells...)
	}
	return frame, nil
}

// feedThrottled is the feed's in-band "too many requests" code.
const feedThrottled = 4029

// decodeCell renders a JSON scalar as its string form: quoted strings are
// unquoted, numbers/bools/null keep their literal text.
func decodeCell(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

// mapTransportError classifies a failed round trip. The caller's context
// decides cancellation vs deadline; everything else, per-attempt client
// timeouts included, is a retryable upstream failure.
func mapTransportError(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		return errs.Wrap(errs.Cancelled, err, "request cancelled")
	case context.DeadlineExceeded:
		return errs.Wrap(errs.DeadlineExceeded, err, "request deadline exceeded")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Wrap(errs.UpstreamUnavailable, err, "transport timeout")
	}
	return errs.Wrap(errs.UpstreamUnavailable, err, "transport failure")
}
