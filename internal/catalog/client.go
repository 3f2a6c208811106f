package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/plan"
)

// Client talks to a remote catalog over its HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	stats      *LatencyStats
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		stats: NewLatencyStats(time.Hour),
	}
}

// Stats returns the client's latency window.
func (c *Client) Stats() *LatencyStats { return c.stats }

// do sends one request. A nil body sends no payload; a nil out discards the
// response. Failures are mapped onto errreport categories so that only
// transport problems are retried.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any, ok ...int) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.stats.Record(op, time.Since(start), true)
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return errreport.Network(op, err)
	}
	defer resp.Body.Close()
	c.stats.Record(op, time.Since(start), !slices.Contains(ok, resp.StatusCode))

	if !slices.Contains(ok, resp.StatusCode) {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return statusError(op, resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func statusError(op string, code int, body []byte) error {
	msg := fmt.Sprintf("%s: status %d: %s", op, code, bytes.TrimSpace(body))
	switch {
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return errreport.Network(msg, nil)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return errreport.New(errreport.CategoryPermission, errreport.LevelError, errreport.CodeForbidden, msg, nil)
	case code == http.StatusNotFound:
		return errreport.New(errreport.CategoryAnnotation, errreport.LevelError, errreport.CodeNotFound, msg, plan.ErrNotFound)
	case code == http.StatusConflict:
		return errreport.Validation(errreport.CodeStoreRejected, msg, plan.ErrDuplicate)
	default:
		return errreport.Validation(errreport.CodeStoreRejected, msg, nil)
	}
}

func (c *Client) ListAnnotations(ctx context.Context, pageID string) ([]plan.Annotation, error) {
	var result struct {
		Annotations []plan.Annotation `json:"annotations"`
	}
	err := c.do(ctx, "listAnnotations", http.MethodGet, "/pages/"+url.PathEscape(pageID)+"/annotations", nil, &result, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return result.Annotations, nil
}

func (c *Client) CreateAnnotation(ctx context.Context, req CreateAnnotationRequest) (plan.Annotation, error) {
	var a plan.Annotation
	err := c.do(ctx, "createAnnotation", http.MethodPost, "/pages/"+url.PathEscape(req.PageID)+"/annotations", req, &a,
		http.StatusOK, http.StatusCreated)
	return a, err
}

func (c *Client) UpdateAnnotationGeometry(ctx context.Context, id string, box plan.Box) error {
	body := struct {
		Box plan.Box `json:"box"`
	}{box}
	return c.do(ctx, "updateAnnotationGeometry", http.MethodPut, "/annotations/"+url.PathEscape(id)+"/geometry", body, nil,
		http.StatusOK, http.StatusNoContent)
}

func (c *Client) UpdateAnnotationMetadata(ctx context.Context, id string, attrs map[string]any) error {
	body := struct {
		Metadata map[string]any `json:"metadata"`
	}{attrs}
	return c.do(ctx, "updateAnnotationMetadata", http.MethodPut, "/annotations/"+url.PathEscape(id)+"/metadata", body, nil,
		http.StatusOK, http.StatusNoContent)
}

func (c *Client) DeleteAnnotation(ctx context.Context, id string) error {
	return c.do(ctx, "deleteAnnotation", http.MethodDelete, "/annotations/"+url.PathEscape(id), nil, nil,
		http.StatusOK, http.StatusNoContent)
}

func (c *Client) ListEntities(ctx context.Context, t plan.AnnotationType, parentRef string) ([]plan.Entity, error) {
	q := url.Values{"type": {string(t)}, "parent": {parentRef}}
	var result struct {
		Entities []plan.Entity `json:"entities"`
	}
	if err := c.do(ctx, "listEntities", http.MethodGet, "/entities?"+q.Encode(), nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return result.Entities, nil
}

func (c *Client) FindEntityByLabel(ctx context.Context, t plan.AnnotationType, parentRef, label string) (*plan.Entity, error) {
	q := url.Values{"type": {string(t)}, "parent": {parentRef}, "label": {label}}
	var e plan.Entity
	err := c.do(ctx, "findEntityByLabel", http.MethodGet, "/entities/lookup?"+q.Encode(), nil, &e, http.StatusOK)
	if err != nil {
		if errreport.Code(err) == errreport.CodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (c *Client) GetEntity(ctx context.Context, id string) (plan.Entity, error) {
	var e plan.Entity
	err := c.do(ctx, "getEntity", http.MethodGet, "/entities/"+url.PathEscape(id), nil, &e, http.StatusOK)
	return e, err
}

func (c *Client) CreateEntity(ctx context.Context, e plan.Entity) (plan.Entity, error) {
	var out plan.Entity
	err := c.do(ctx, "createEntity", http.MethodPost, "/entities", e, &out, http.StatusOK, http.StatusCreated)
	return out, err
}

func (c *Client) GetPage(ctx context.Context, id string) (plan.Page, error) {
	var p plan.Page
	err := c.do(ctx, "getPage", http.MethodGet, "/pages/"+url.PathEscape(id), nil, &p, http.StatusOK)
	return p, err
}

func (c *Client) ListPages(ctx context.Context, documentID string) ([]plan.Page, error) {
	var result struct {
		Pages []plan.Page `json:"pages"`
	}
	err := c.do(ctx, "listPages", http.MethodGet, "/documents/"+url.PathEscape(documentID)+"/pages", nil, &result, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return result.Pages, nil
}

func (c *Client) CreatePage(ctx context.Context, p plan.Page) (plan.Page, error) {
	var out plan.Page
	err := c.do(ctx, "createPage", http.MethodPost, "/documents/"+url.PathEscape(p.DocumentID)+"/pages", p, &out,
		http.StatusOK, http.StatusCreated)
	return out, err
}

func (c *Client) SetPageType(ctx context.Context, id string, pt plan.PageType) error {
	body := struct {
		PageType plan.PageType `json:"pageType"`
	}{pt}
	return c.do(ctx, "setPageType", http.MethodPut, "/pages/"+url.PathEscape(id)+"/type", body, nil,
		http.StatusOK, http.StatusNoContent)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
