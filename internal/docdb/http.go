package docdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Header names shared by HTTPClient and Handler
const (
	HeaderAuthorization = "authorization"
	HeaderContinuation  = "x-ms-continuation"
	HeaderMaxItemCount  = "x-ms-max-item-count"
	HeaderThroughput    = "x-ms-offer-throughput"
	HeaderRetryAfterMs  = "x-ms-retry-after-ms"
)

// HTTPConfig holds the connection settings of an HTTPClient
type HTTPConfig struct {
	Endpoint string
	Key      string
	Timeout  time.Duration
}

// HTTPClient implements Client against the service's REST surface
type HTTPClient struct {
	config  HTTPConfig
	baseURL *url.URL
	client  *http.Client
}

// NewHTTPClient creates a new HTTPClient. Connect must be called before use.
func NewHTTPClient(config HTTPConfig) *HTTPClient {
	return &HTTPClient{config: config}
}

// Connect validates the endpoint and prepares the underlying http.Client
func (h *HTTPClient) Connect(ctx context.Context) error {
	parsed, err := url.Parse(h.config.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", h.config.Endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", h.config.Endpoint)
	}

	timeout := h.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	h.baseURL = parsed
	h.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return nil
}

// Close releases idle connections
func (h *HTTPClient) Close() error {
	if h.client != nil {
		h.client.CloseIdleConnections()
	}
	h.client = nil
	return nil
}

// do sends one request and decodes a JSON response into out (if not nil)
func (h *HTTPClient) do(ctx context.Context, op, method, path string, headers map[string]string, body, out any) (http.Header, error) {
	if h.client == nil {
		if err := h.Connect(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	target := h.baseURL.JoinPath(strings.Split(path, "?")[0])
	if i := strings.Index(path, "?"); i >= 0 {
		target.RawQuery = path[i+1:]
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.config.Key != "" {
		req.Header.Set(HeaderAuthorization, h.config.Key)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response: %w", op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeServiceError(op, resp, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("%s: unable to decode response: %w", op, err)
		}
	}
	return resp.Header, nil
}

func decodeServiceError(op string, resp *http.Response, data []byte) *ServiceError {
	svcErr := &ServiceError{}
	if err := json.Unmarshal(data, svcErr); err != nil || svcErr.Message == "" {
		svcErr.Message = strings.TrimSpace(string(data))
		if svcErr.Message == "" {
			svcErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	svcErr.Op = op
	svcErr.StatusCode = resp.StatusCode
	if svcErr.Reason == "" {
		svcErr.Reason = reasonForCode(resp.StatusCode)
	}
	if ms, err := strconv.ParseInt(resp.Header.Get(HeaderRetryAfterMs), 10, 64); err == nil && ms > 0 {
		svcErr.RetryAfter = time.Duration(ms) * time.Millisecond
	}
	return svcErr
}

func pageHeaders(opts ListOptions) map[string]string {
	headers := map[string]string{}
	if opts.PageSize > 0 {
		headers[HeaderMaxItemCount] = strconv.Itoa(opts.PageSize)
	}
	if opts.Continuation != "" {
		headers[HeaderContinuation] = opts.Continuation
	}
	return headers
}

func throughputHeaders(throughput int) map[string]string {
	if throughput <= 0 {
		return nil
	}
	return map[string]string{HeaderThroughput: strconv.Itoa(throughput)}
}

// ListDatabases returns one page of databases
func (h *HTTPClient) ListDatabases(ctx context.Context, opts ListOptions) (*DatabasePage, error) {
	page := &DatabasePage{}
	header, err := h.do(ctx, "ListDatabases", http.MethodGet, "/dbs", pageHeaders(opts), nil, page)
	if err != nil {
		return nil, err
	}
	page.Continuation = header.Get(HeaderContinuation)
	return page, nil
}

// CreateDatabase creates a database
func (h *HTTPClient) CreateDatabase(ctx context.Context, spec DatabaseSpec) (*DatabaseInfo, error) {
	db := &DatabaseInfo{}
	if _, err := h.do(ctx, "CreateDatabase", http.MethodPost, "/dbs", throughputHeaders(spec.Throughput), spec, db); err != nil {
		return nil, err
	}
	return db, nil
}

// ReadDatabase reads a database by id
func (h *HTTPClient) ReadDatabase(ctx context.Context, id string) (*DatabaseInfo, error) {
	db := &DatabaseInfo{}
	if _, err := h.do(ctx, "ReadDatabase", http.MethodGet, "/"+DatabaseLink(id), nil, nil, db); err != nil {
		return nil, err
	}
	return db, nil
}

// DeleteDatabase deletes a database
func (h *HTTPClient) DeleteDatabase(ctx context.Context, id string) error {
	_, err := h.do(ctx, "DeleteDatabase", http.MethodDelete, "/"+DatabaseLink(id), nil, nil, nil)
	return err
}

// ListCollections returns one page of a database's collections
func (h *HTTPClient) ListCollections(ctx context.Context, databaseID string, opts ListOptions) (*CollectionPage, error) {
	page := &CollectionPage{}
	header, err := h.do(ctx, "ListCollections", http.MethodGet, "/"+DatabaseLink(databaseID)+"/colls", pageHeaders(opts), nil, page)
	if err != nil {
		return nil, err
	}
	page.Continuation = header.Get(HeaderContinuation)
	return page, nil
}

// CreateCollection creates a collection
func (h *HTTPClient) CreateCollection(ctx context.Context, databaseID string, spec CollectionSpec) (*CollectionInfo, error) {
	coll := &CollectionInfo{}
	if _, err := h.do(ctx, "CreateCollection", http.MethodPost, "/"+DatabaseLink(databaseID)+"/colls", throughputHeaders(spec.Throughput), spec, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

// ReadCollection reads a collection by id
func (h *HTTPClient) ReadCollection(ctx context.Context, databaseID, id string) (*CollectionInfo, error) {
	coll := &CollectionInfo{}
	if _, err := h.do(ctx, "ReadCollection", http.MethodGet, "/"+CollectionLink(databaseID, id), nil, nil, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

// ReplaceCollection replaces a collection's mutable settings
func (h *HTTPClient) ReplaceCollection(ctx context.Context, databaseID string, spec CollectionSpec) (*CollectionInfo, error) {
	coll := &CollectionInfo{}
	if _, err := h.do(ctx, "ReplaceCollection", http.MethodPut, "/"+CollectionLink(databaseID, spec.ID), nil, spec, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

// DeleteCollection deletes a collection
func (h *HTTPClient) DeleteCollection(ctx context.Context, databaseID, id string) error {
	_, err := h.do(ctx, "DeleteCollection", http.MethodDelete, "/"+CollectionLink(databaseID, id), nil, nil, nil)
	return err
}

// ReadOffer reads the offer of a resource
func (h *HTTPClient) ReadOffer(ctx context.Context, resourceLink string) (*OfferInfo, error) {
	offer := &OfferInfo{}
	path := "/offers?resource=" + url.QueryEscape(resourceLink)
	if _, err := h.do(ctx, "ReadOffer", http.MethodGet, path, nil, nil, offer); err != nil {
		return nil, err
	}
	return offer, nil
}

// ReplaceOffer changes the throughput of a resource's offer
func (h *HTTPClient) ReplaceOffer(ctx context.Context, resourceLink string, throughput int) (*OfferInfo, error) {
	offer := &OfferInfo{}
	body := OfferInfo{ResourceLink: resourceLink, Throughput: throughput}
	if _, err := h.do(ctx, "ReplaceOffer", http.MethodPut, "/offers", nil, body, offer); err != nil {
		return nil, err
	}
	return offer, nil
}

// CreateDocument creates a document
func (h *HTTPClient) CreateDocument(ctx context.Context, collectionLink string, doc Document) (*Document, error) {
	out := &Document{}
	if _, err := h.do(ctx, "CreateDocument", http.MethodPost, "/"+collectionLink+"/docs", nil, doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadDocument reads a document by id
func (h *HTTPClient) ReadDocument(ctx context.Context, collectionLink, id string) (*Document, error) {
	out := &Document{}
	if _, err := h.do(ctx, "ReadDocument", http.MethodGet, "/"+documentKey(collectionLink, id), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceDocument replaces a document
func (h *HTTPClient) ReplaceDocument(ctx context.Context, collectionLink string, doc Document) (*Document, error) {
	out := &Document{}
	if _, err := h.do(ctx, "ReplaceDocument", http.MethodPut, "/"+documentKey(collectionLink, doc.ID), nil, doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDocument deletes a document
func (h *HTTPClient) DeleteDocument(ctx context.Context, collectionLink, id string) error {
	_, err := h.do(ctx, "DeleteDocument", http.MethodDelete, "/"+documentKey(collectionLink, id), nil, nil, nil)
	return err
}

// ListDocuments returns one page of a collection's documents
func (h *HTTPClient) ListDocuments(ctx context.Context, collectionLink string, opts ListOptions) (*DocumentPage, error) {
	page := &DocumentPage{}
	header, err := h.do(ctx, "ListDocuments", http.MethodGet, "/"+collectionLink+"/docs", pageHeaders(opts), nil, page)
	if err != nil {
		return nil, err
	}
	page.Continuation = header.Get(HeaderContinuation)
	return page, nil
}
