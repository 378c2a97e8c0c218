// Package shopify reads product summaries from a Shopify storefront through
// the Storefront GraphQL API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	APIVersion = "2023-01"

	// MaxProducts is how many products one fetch returns at most.
	MaxProducts = 10

	// PlaceholderImage stands in for products without images.
	PlaceholderImage = "https://picsum.photos/400/400"
)

// ErrFetch wraps every failure of FetchProducts: transport, auth, GraphQL
// errors and unexpected response shapes alike.
var ErrFetch = errors.New("failed to fetch products")

type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	Price       string `json:"price"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

// DemoProducts are shown until a storefront is connected.
var DemoProducts = []Product{
	{ID: "1", Title: "Luxe Glow Serum", Handle: "luxe-glow", Price: "$49.00", Image: "https://picsum.photos/400/400?random=1", Description: "Transform your skin with our best-selling serum."},
	{ID: "2", Title: "Pure Hydration Cream", Handle: "pure-hydration", Price: "$35.00", Image: "https://picsum.photos/400/400?random=2", Description: "Deep hydration for 24-hour radiance."},
	{ID: "3", Title: "Midnight Recovery Oil", Handle: "midnight-recovery", Price: "$58.00", Image: "https://picsum.photos/400/400?random=3", Description: "Wake up to rejuvenated skin every morning."},
}

const productsQuery = `{
  products(first: 10) {
    edges {
      node {
        id
        title
        handle
        description
        images(first: 1) { edges { node { url } } }
        priceRange { minVariantPrice { amount currencyCode } }
      }
    }
  }
}`

// Client talks to storefront GraphQL endpoints.
type Client struct {
	http     *http.Client
	endpoint func(domain string) string
	logger   *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithEndpoint overrides how a shop domain maps to its GraphQL URL.
func WithEndpoint(fn func(domain string) string) Option {
	return func(c *Client) { c.endpoint = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client with a 10-second timeout.
func New(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 10 * time.Second},
		endpoint: StorefrontURL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StorefrontURL returns the GraphQL endpoint for a shop domain.
func StorefrontURL(domain string) string {
	return fmt.Sprintf("https://%s/api/%s/graphql.json", NormalizeDomain(domain), APIVersion)
}

// NormalizeDomain strips a scheme, path and trailing slash from a
// user-entered shop domain.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d, _, _ = strings.Cut(d, "/")
	return strings.ToLower(d)
}

type graphQLResponse struct {
	Data *struct {
		Products struct {
			Edges []struct {
				Node productNode `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type productNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	Description string `json:"description"`
	Images      struct {
		Edges []struct {
			Node struct {
				URL string `json:"url"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	PriceRange *struct {
		MinVariantPrice struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"minVariantPrice"`
	} `json:"priceRange"`
}

// FetchProducts returns up to MaxProducts products from the shop. Any
// failure yields an error wrapping ErrFetch and no products.
func (c *Client) FetchProducts(ctx context.Context, domain, token string) ([]Product, error) {
	if NormalizeDomain(domain) == "" || token == "" {
		return nil, fmt.Errorf("%w: domain and token are required", ErrFetch)
	}

	products, err := c.fetch(ctx, domain, token)
	if err != nil {
		c.logger.Warn("storefront fetch failed", "domain", domain, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return products, nil
}

func (c *Client) fetch(ctx context.Context, domain, token string) ([]Product, error) {
	body, err := json.Marshal(map[string]string{"query": productsQuery})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(domain), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result graphQLResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, errors.New(result.Errors[0].Message)
	}
	if result.Data == nil {
		return nil, errors.New("response has no data")
	}

	edges := result.Data.Products.Edges
	if len(edges) > MaxProducts {
		edges = edges[:MaxProducts]
	}
	products := make([]Product, 0, len(edges))
	for _, e := range edges {
		p, err := normalize(e.Node)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func normalize(n productNode) (Product, error) {
	if n.ID == "" {
		return Product{}, errors.New("product without id")
	}
	if n.PriceRange == nil {
		return Product{}, fmt.Errorf("product %s has no price range", n.ID)
	}

	image := PlaceholderImage
	if len(n.Images.Edges) > 0 && n.Images.Edges[0].Node.URL != "" {
		image = n.Images.Edges[0].Node.URL
	}

	price := n.PriceRange.MinVariantPrice
	return Product{
		ID:          n.ID,
		Title:       n.Title,
		Handle:      n.Handle,
		Description: n.Description,
		Price:       fmt.Sprintf("%s %s", price.Amount, price.CurrencyCode),
		Image:       image,
	}, nil
}
