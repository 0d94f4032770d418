package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"

	"weather-tasks/domain"
)

// ErrInvalidCatalog is returned when the template feed has no tasks array.
var ErrInvalidCatalog = errors.New("Invalid data structure: expected an array of tasks.")

// Catalog supplies the templates a task can be scheduled from.
type Catalog interface {
	Templates(ctx context.Context) ([]domain.Template, error)
}

// HTTPCatalog reads a static `{tasks: [...]}` feed.
type HTTPCatalog struct {
	URL  string
	HTTP *http.Client
}

func NewHTTPCatalog(feedURL string) *HTTPCatalog {
	return &HTTPCatalog{URL: feedURL, HTTP: http.DefaultClient}
}

func (c *HTTPCatalog) Templates(ctx context.Context) ([]domain.Template, error) {
	const op = "fetch templates"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a template feed document.
func ParseCatalog(data []byte) ([]domain.Template, error) {
	node, err := sonic.Get(data, "tasks")
	if err != nil || node.TypeSafe() != ast.V_ARRAY {
		return nil, ErrInvalidCatalog
	}
	raw, err := node.Raw()
	if err != nil {
		return nil, ErrInvalidCatalog
	}
	var templates []domain.Template
	if err := sonic.UnmarshalString(raw, &templates); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	return templates, nil
}

// StaticCatalog serves a fixed template list.
type StaticCatalog []domain.Template

func (s StaticCatalog) Templates(context.Context) ([]domain.Template, error) {
	return append([]domain.Template(nil), s...), nil
}
