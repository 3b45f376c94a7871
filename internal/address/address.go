// Package address resolves Brazilian postal codes (CEP) to structured
// addresses through a ViaCEP-compatible service, with a local cache.
package address

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/types"
)

// Config tunes the lookup client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
}

// Client looks up postal codes.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *ccache.Cache[types.Address]
	ttl     time.Duration
	logger  *zap.Logger
}

// NewClient creates a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1000
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		cache:   ccache.New(ccache.Configure[types.Address]().MaxSize(int64(size))),
		ttl:     cfg.CacheTTL,
		logger:  logger.Named("address"),
	}
}

// Stop releases the cache's background worker.
func (c *Client) Stop() {
	c.cache.Stop()
}

// NormalizeCEP strips punctuation and requires exactly eight digits.
func NormalizeCEP(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '.' || r == ' ':
		default:
			return "", apperror.Validation("cep", "must contain only digits")
		}
	}
	if b.Len() != 8 {
		return "", apperror.Validation("cep", "must have 8 digits")
	}
	return b.String(), nil
}

type viaCEPResponse struct {
	CEP         string          `json:"cep"`
	Logradouro  string          `json:"logradouro"`
	Complemento string          `json:"complemento"`
	Bairro      string          `json:"bairro"`
	Localidade  string          `json:"localidade"`
	UF          string          `json:"uf"`
	Erro        json.RawMessage `json:"erro"`
}

// notFound reports the service's error marker, sent as true or "true".
func (r viaCEPResponse) notFound() bool {
	s := strings.Trim(string(r.Erro), `"`)
	return s == "true"
}

// Lookup returns the address for cep. Unknown codes are NOT_FOUND.
func (c *Client) Lookup(ctx context.Context, cep string) (types.Address, error) {
	code, err := NormalizeCEP(cep)
	if err != nil {
		return types.Address{}, err
	}
	if item := c.cache.Get(code); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+code+"/json/", nil)
	if err != nil {
		return types.Address{}, fmt.Errorf("address: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return types.Address{}, apperror.Wrap(err, apperror.CodeInternal, "address lookup failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.Address{}, &apperror.Error{Code: apperror.CodeNotFound, Message: "cep " + code + " not found"}
	case resp.StatusCode == http.StatusBadRequest:
		return types.Address{}, apperror.Validation("cep", "rejected by lookup service")
	case resp.StatusCode != http.StatusOK:
		return types.Address{}, apperror.New(apperror.CodeInternal, fmt.Sprintf("address lookup returned %d", resp.StatusCode))
	}

	var body viaCEPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.Address{}, apperror.Wrap(err, apperror.CodeInternal, "decoding address lookup")
	}
	if body.notFound() {
		return types.Address{}, &apperror.Error{Code: apperror.CodeNotFound, Message: "cep " + code + " not found"}
	}

	addr := types.Address{
		Street:       body.Logradouro,
		Complement:   body.Complemento,
		Neighborhood: body.Bairro,
		City:         body.Localidade,
		State:        body.UF,
		ZipCode:      code,
	}
	c.cache.Set(code, addr, c.ttl)
	c.logger.Debug("cep resolved", zap.String("cep", code), zap.String("city", addr.City))
	return addr, nil
}
