// Package api is a typed client for the POS backend. It expects an HTTP client whose transport authorizes
// requests, so its callers only ever see the final outcome of a request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	poserrors "github.com/jrsteele09/go-pos-client/internal/errors"
	"github.com/pkg/errors"
)

// Client calls the POS endpoints under baseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. httpClient should be the authorizing client; nil uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ListProducts returns the first page of the inventory.
func (c *Client) ListProducts(ctx context.Context) (ProductPage, error) {
	var page ProductPage
	err := c.do(ctx, http.MethodGet, "/product", nil, nil, &page)
	return page, errors.WithMessage(err, "[Client.ListProducts]")
}

// CreateProduct adds a product to the inventory.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (Product, error) {
	var p Product
	err := c.do(ctx, http.MethodPost, "/product", nil, req, &p)
	return p, errors.WithMessage(err, "[Client.CreateProduct]")
}

// ListCategories returns every product category.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &categories)
	return categories, errors.WithMessage(err, "[Client.ListCategories]")
}

// CreateCategory adds a category named name.
func (c *Client) CreateCategory(ctx context.Context, name string) (Category, error) {
	var category Category
	err := c.do(ctx, http.MethodPost, "/categories", nil, map[string]string{"name": name}, &category)
	return category, errors.WithMessage(err, "[Client.CreateCategory]")
}

// CashStatus returns the open cash register, or nil when none is open.
func (c *Client) CashStatus(ctx context.Context) (*CashRegister, error) {
	var register *CashRegister
	err := c.do(ctx, http.MethodGet, "/cash/status", nil, nil, &register)
	return register, errors.WithMessage(err, "[Client.CashStatus]")
}

// OpenCash opens the cash register with a float.
func (c *Client) OpenCash(ctx context.Context, req OpenCashRequest) (CashRegister, error) {
	var register CashRegister
	err := c.do(ctx, http.MethodPost, "/cash/open", nil, req, &register)
	return register, errors.WithMessage(err, "[Client.OpenCash]")
}

// CloseCash closes the open register with the counted amount.
func (c *Client) CloseCash(ctx context.Context, req CloseCashRequest) (CashRegister, error) {
	var register CashRegister
	err := c.do(ctx, http.MethodPost, "/cash/close", nil, req, &register)
	return register, errors.WithMessage(err, "[Client.CloseCash]")
}

// CreateSale records a sale.
func (c *Client) CreateSale(ctx context.Context, req CreateSaleRequest) (Sale, error) {
	var sale Sale
	err := c.do(ctx, http.MethodPost, "/sales", nil, req, &sale)
	return sale, errors.WithMessage(err, "[Client.CreateSale]")
}

// GetSale returns the sale with the given id.
func (c *Client) GetSale(ctx context.Context, id string) (Sale, error) {
	var sale Sale
	err := c.do(ctx, http.MethodGet, "/sales/"+url.PathEscape(id), nil, nil, &sale)
	return sale, errors.WithMessage(err, "[Client.GetSale]")
}

// ListSales returns the sales matching filter.
func (c *Client) ListSales(ctx context.Context, filter SalesFilter) ([]Sale, error) {
	query := url.Values{}
	if filter.From != "" {
		query.Set("from", filter.From)
	}
	if filter.To != "" {
		query.Set("to", filter.To)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		query.Set("search", s)
	}
	var sales []Sale
	err := c.do(ctx, http.MethodGet, "/sales", query, nil, &sales)
	return sales, errors.WithMessage(err, "[Client.ListSales]")
}

type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "json.Marshal")
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrap(err, "http.NewRequestWithContext")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb)
		return &poserrors.StatusError{Code: resp.StatusCode, Message: eb.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "json.Decode")
	}
	return nil
}
