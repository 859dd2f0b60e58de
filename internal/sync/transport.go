// Package sync implements the Sync Engine (C7): identity-based
// replication of rows between a local store and a remote peer,
// attached as a readable/writable relation over HTTP.
package sync

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

	"github.com/scbrown/irs/internal/model"
)

// Transport is the remote side of a sync exchange: list ids present
// remotely (optionally filtered), fetch rows by id, and push rows.
// HTTPTransport is the only implementation; the interface exists so
// Engine can be tested against a fake.
type Transport interface {
	ListIDs(ctx context.Context, table string, since, client, tag string) ([]string, error)
	FetchRows(ctx context.Context, table string, ids []string) (json.RawMessage, error)
	PushRows(ctx context.Context, table string, rows json.RawMessage) error
	// FetchBlob retrieves a blob by content hash, or ok=false if the
	// peer holds no such blob.
	FetchBlob(ctx context.Context, hash string) (BlobPayload, bool, error)
	// PushBlob uploads a blob to the peer.
	PushBlob(ctx context.Context, payload BlobPayload) error
}

// HTTPTransport talks to a peer's query+sync HTTP endpoint
// (internal/server), the same shape as the desire-path client's
// RemoteStore: an optional bearer token passed in by the caller and
// sent verbatim, a
// bounded-timeout client, JSON request/response bodies.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPTransport builds a transport pointed at baseURL (e.g.
// "https://peer.example:7273"), authenticating with token if
// non-empty.
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPTransport) ListIDs(ctx context.Context, table, since, client, tag string) ([]string, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if client != "" {
		q.Set("client", client)
	}
	if tag != "" {
		q.Set("tag", tag)
	}
	var ids []string
	if err := t.getJSON(ctx, "/api/v1/sync/"+table+"/ids", q, &ids); err != nil {
		return nil, fmt.Errorf("sync: list ids for %s: %w", table, err)
	}
	return ids, nil
}

func (t *HTTPTransport) FetchRows(ctx context.Context, table string, ids []string) (json.RawMessage, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	var raw json.RawMessage
	if err := t.getJSON(ctx, "/api/v1/sync/"+table+"/rows", q, &raw); err != nil {
		return nil, fmt.Errorf("sync: fetch rows for %s: %w", table, err)
	}
	return raw, nil
}

func (t *HTTPTransport) PushRows(ctx context.Context, table string, rows json.RawMessage) error {
	if err := t.postJSON(ctx, "/api/v1/sync/"+table+"/rows", rows, nil); err != nil {
		return fmt.Errorf("sync: push rows for %s: %w", table, err)
	}
	return nil
}

// FetchBlob downloads a blob's raw bytes alongside the registry
// metadata the destination needs to adopt it (tier, storage_path,
// byte_length), carried as response headers since the body is the
// raw byte stream, not JSON.
func (t *HTTPTransport) FetchBlob(ctx context.Context, hash string) (BlobPayload, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/v1/blobs/"+hash, nil)
	if err != nil {
		return BlobPayload{}, false, err
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return BlobPayload{}, false, model.NewError(model.KindRemoteUnavailable, "sync", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return BlobPayload{}, false, nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return BlobPayload{}, false, fmt.Errorf("sync: fetch blob %s: status %d: %s", hash, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return BlobPayload{}, false, fmt.Errorf("sync: read blob %s body: %w", hash, err)
	}
	byteLength, _ := strconv.ParseInt(resp.Header.Get("X-Blob-Byte-Length"), 10, 64)
	return BlobPayload{
		Hash:        hash,
		Tier:        model.StorageTier(resp.Header.Get("X-Blob-Tier")),
		StoragePath: resp.Header.Get("X-Blob-Storage-Path"),
		ByteLength:  byteLength,
		Data:        data,
	}, true, nil
}

// PushBlob uploads payload's bytes with its adoption metadata as
// request headers.
func (t *HTTPTransport) PushBlob(ctx context.Context, payload BlobPayload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/blobs/"+payload.Hash, bytes.NewReader(payload.Data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Blob-Tier", string(payload.Tier))
	req.Header.Set("X-Blob-Storage-Path", payload.StoragePath)
	req.Header.Set("X-Blob-Byte-Length", strconv.FormatInt(payload.ByteLength, 10))
	return t.do(req, nil)
}

func (t *HTTPTransport) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	u := t.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return t.do(req, dst)
}

func (t *HTTPTransport) postJSON(ctx context.Context, path string, body, dst any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, dst)
}

func (t *HTTPTransport) do(req *http.Request, dst any) error {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return model.NewError(model.KindRemoteUnavailable, "sync", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sync: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
