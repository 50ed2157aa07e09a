package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkuhole/config"

	"github.com/google/uuid"
)

const formContentType = "application/x-www-form-urlencoded"

// request describes one exchange with the server.
type request struct {
	action string // for logs and rate limiting
	method string
	path   string
	query  Params
	body   []byte // POST only
}

func (c *Client) url(path string, query Params) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// get builds a GET request with all parameters in the query string.
func get(action, path string, query Params) request {
	return request{action: action, method: http.MethodGet, path: path, query: query}
}

// post builds a form-encoded POST request.
func post(action, path string, query, form Params) request {
	return request{action: action, method: http.MethodPost, path: path, query: query, body: []byte(form.Encode())}
}

// imageBody lays out the body of an image post: the encoded form fields, a
// literal "&data=" marker, then the image bytes exactly as given. The image is
// not form-encoded; the server reads it raw.
func imageBody(form Params, image []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(image) + 256)
	buf.WriteString(form.Encode())
	buf.WriteString("&data=")
	buf.Write(image)
	return buf.Bytes()
}

// roundTrip performs the exchange and returns the body of a 200 response.
func (c *Client) roundTrip(ctx context.Context, r request) ([]byte, error) {
	logger := c.logger.With("action", r.action, "method", r.method, "request_id", uuid.New().String())

	if err := c.limiter.Wait(ctx, r.action); err != nil {
		logger.Warn("Rate limiter wait aborted", "error", err)
		return nil, &NetworkUnavailableError{Err: err}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r.path, r.query), body)
	if err != nil {
		return nil, &NetworkUnavailableError{Err: err}
	}
	req.Host = c.host
	req.Header.Set("User-Agent", config.UserAgent)
	if r.body != nil {
		req.Header.Set("Content-Type", formContentType)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		logger.Warn("Request failed before a response", "error", err)
		return nil, &NetworkUnavailableError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debug("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		terr := &TransportError{Status: resp.StatusCode, Message: reasonPhrase(resp)}
		logger.Warn("Unexpected HTTP status", "status", resp.StatusCode, "reason", terr.Message)
		return nil, terr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("Failed to read response body", "error", err)
		return nil, &NetworkUnavailableError{Err: err}
	}
	logger.Debug("Request complete", "status", resp.StatusCode, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

// reasonPhrase extracts the reason phrase from a status line such as
// "404 Not Found", falling back to the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	phrase := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if phrase == "" {
		phrase = http.StatusText(resp.StatusCode)
	}
	return phrase
}
