// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to the upload HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapload/pkg/api/apitypes"
	"github.com/LeeDigitalWorks/zapload/pkg/logger"
	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultRetryMax     = 4
	DefaultRetryWaitMin = 200 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
)

// ErrNoResponse marks failures where no response was read, so the server
// may or may not have applied the request.
var ErrNoResponse = errors.New("no response from server")

// Client calls the upload API. Requests answered with 429 or 503 are
// retried. Connection failures are retried for idempotent methods only.
// Every other failure is returned as an *uploaderr.Error of the kind the
// server reported.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithRetryMax sets the number of retries after the first attempt.
func WithRetryMax(n int) Option {
	return func(c *Client) { c.http.RetryMax = n }
}

// WithRetryWait bounds the wait between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// WithBackoff replaces the wait policy between retries.
func WithBackoff(b retryablehttp.Backoff) Option {
	return func(c *Client) { c.http.Backoff = b }
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

// New returns a Client for the API served at baseURL.
func New(baseURL string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = logger.LeveledAdapter{Component: "client"}
	rc.RetryMax = DefaultRetryMax
	rc.RetryWaitMin = DefaultRetryWaitMin
	rc.RetryWaitMax = DefaultRetryWaitMax
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{http: rc, baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type replayableKey struct{}

// withMethod records whether a request may be sent again after a
// connection failure. POST requests (init, complete, whole-file upload) may
// have been applied before the connection broke.
func withMethod(ctx context.Context, method string) context.Context {
	ok := method == http.MethodGet || method == http.MethodPut || method == http.MethodDelete
	return context.WithValue(ctx, replayableKey{}, ok)
}

func replayable(ctx context.Context) bool {
	ok, _ := ctx.Value(replayableKey{}).(bool)
	return ok
}

// checkRetry retries the retryable statuses, and connection errors of
// replayable requests.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		if !replayable(ctx) {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true, nil
	}
	return false, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.HTTPClient.CloseIdleConnections()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + apitypes.PathPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// call sends one request and decodes the envelope into T.
func call[T any](ctx context.Context, c *Client, op, method, endpoint string, body []byte, contentType string) (*T, error) {
	var reqBody any
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(withMethod(ctx, method), method, endpoint, reqBody)
	if err != nil {
		return nil, uploaderr.Wrap(uploaderr.InvalidRequest, op, err, "build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, uploaderr.Wrap(uploaderr.StoreUnavailable, op, fmt.Errorf("%w: %w", ErrNoResponse, err), "request failed")
	}
	defer resp.Body.Close()

	var res apitypes.Result[T]
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, uploaderr.Wrap(statusKind(resp.StatusCode), op, err,
			fmt.Sprintf("unreadable response with status %d", resp.StatusCode))
	}
	if !res.OK {
		if res.Error == nil {
			return nil, uploaderr.Newf(statusKind(resp.StatusCode), op, "request failed with status %d", resp.StatusCode)
		}
		return nil, res.Error.Err("")
	}
	if res.Data == nil {
		return new(T), nil
	}
	return res.Data, nil
}

// statusKind guesses a kind for responses without an error envelope.
func statusKind(status int) uploaderr.Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return uploaderr.Throttled
	case status == http.StatusNotFound:
		return uploaderr.SessionNotFound
	case status >= 400 && status < 500:
		return uploaderr.InvalidRequest
	default:
		return uploaderr.StoreUnavailable
	}
}

func sessionQuery(sess apitypes.Session) url.Values {
	return url.Values{"key": []string{sess.Key}}
}

// Init opens an upload session.
func (c *Client) Init(ctx context.Context, req apitypes.InitRequest) (*apitypes.Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return call[apitypes.Session](ctx, c, "Init", http.MethodPost, c.endpoint("/uploads", nil), body, "application/json")
}

// UploadPart sends one part as a raw body.
func (c *Client) UploadPart(ctx context.Context, sess apitypes.Session, partNumber int, data []byte) (*apitypes.PartRef, error) {
	path := "/uploads/" + url.PathEscape(sess.UploadID) + "/parts/" + strconv.Itoa(partNumber)
	return call[apitypes.PartRef](ctx, c, "UploadPart", http.MethodPut, c.endpoint(path, sessionQuery(sess)), data, "application/octet-stream")
}

// Progress lists the committed parts. When totalParts is positive the
// result also lists the missing part numbers.
func (c *Client) Progress(ctx context.Context, sess apitypes.Session, totalParts int) (*apitypes.Progress, error) {
	q := sessionQuery(sess)
	if totalParts > 0 {
		q.Set("totalParts", strconv.Itoa(totalParts))
	}
	path := "/uploads/" + url.PathEscape(sess.UploadID) + "/parts"
	return call[apitypes.Progress](ctx, c, "Progress", http.MethodGet, c.endpoint(path, q), nil, "")
}

// Complete commits the manifest. It is never resent after a connection
// failure: the returned error then wraps ErrNoResponse.
func (c *Client) Complete(ctx context.Context, sess apitypes.Session, parts []apitypes.PartRef) (*apitypes.Completed, error) {
	body, err := json.Marshal(apitypes.CompleteRequest{Key: sess.Key, Parts: parts})
	if err != nil {
		return nil, err
	}
	path := "/uploads/" + url.PathEscape(sess.UploadID) + "/complete"
	return call[apitypes.Completed](ctx, c, "Complete", http.MethodPost, c.endpoint(path, nil), body, "application/json")
}

// Abort discards the session. Aborting a closed or unknown session succeeds.
func (c *Client) Abort(ctx context.Context, sess apitypes.Session) error {
	path := "/uploads/" + url.PathEscape(sess.UploadID)
	_, err := call[apitypes.Aborted](ctx, c, "Abort", http.MethodDelete, c.endpoint(path, sessionQuery(sess)), nil, "")
	return err
}

// UploadFile sends a whole file in one request.
func (c *Client) UploadFile(ctx context.Context, fileName, category string, r io.Reader) (*apitypes.FileUploaded, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if category != "" {
		if err := mw.WriteField(apitypes.FormFieldCategory, category); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile(apitypes.FormFieldFile, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return call[apitypes.FileUploaded](ctx, c, "UploadFile", http.MethodPost, c.endpoint("/files", nil), buf.Bytes(), mw.FormDataContentType())
}

// ListInProgress returns the advisory list of open uploads.
func (c *Client) ListInProgress(ctx context.Context) ([]apitypes.InProgress, error) {
	out, err := call[[]apitypes.InProgress](ctx, c, "ListInProgress", http.MethodGet, c.endpoint("/uploads", nil), nil, "")
	if err != nil {
		return nil, err
	}
	return *out, nil
}
