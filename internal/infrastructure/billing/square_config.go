package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/infrastructure/config"
)

const (
	// SquareProductionAPIURL is the production API endpoint
	SquareProductionAPIURL = "https://connect.squareup.com"
	// SquareSandboxAPIURL is the sandbox API endpoint
	SquareSandboxAPIURL = "https://connect.squareupsandbox.com"

	defaultAPIVersion     = "2024-07-17"
	defaultRequestTimeout = 20 * time.Second
	defaultPageSize       = 100
	maxPageSize           = 200
)

// Errors for Square configuration
var (
	ErrSquareConfigMissingAccessToken = fmt.Errorf("%w: square access token is required", integration.ErrBillingNotConfigured)
	ErrSquareConfigMissingLocationID  = fmt.Errorf("%w: square location ID is required", integration.ErrBillingNotConfigured)
	ErrSquareConfigInvalidRate        = errors.New("square: requests per second must be positive")
	ErrSquareConfigInvalidFee         = errors.New("square: membership fee must be a non-negative decimal")
)

// SquareConfig holds configuration for the Square invoices, orders,
// customers and payments APIs
type SquareConfig struct {
	// AccessToken is the bearer token for API authorization
	AccessToken string
	// LocationID scopes invoice listing and creation
	LocationID string
	// APIBaseURL is the base URL for the API (production or sandbox)
	APIBaseURL string
	// APIVersion is sent as the Square-Version header
	APIVersion string
	// RequestTimeout bounds each HTTP request
	RequestTimeout time.Duration
	// RequestsPerSecond and Burst configure the client-side rate limiter
	RequestsPerSecond float64
	Burst             int
	// PageSize is the invoice listing page size
	PageSize int
	// MembershipFee is charged per membership line on replacement invoices
	MembershipFee decimal.Decimal
}

// NewSquareConfig builds a SquareConfig from application configuration
func NewSquareConfig(cfg config.BillingConfig) (*SquareConfig, error) {
	fee := decimal.Zero
	if cfg.MembershipFee != "" {
		parsed, err := decimal.NewFromString(cfg.MembershipFee)
		if err != nil {
			return nil, ErrSquareConfigInvalidFee
		}
		fee = parsed
	}
	c := &SquareConfig{
		AccessToken:       cfg.AccessToken,
		LocationID:        cfg.LocationID,
		APIBaseURL:        cfg.BaseURL,
		APIVersion:        cfg.APIVersion,
		RequestTimeout:    cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		PageSize:          cfg.PageSize,
		MembershipFee:     fee,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate validates the configuration and fills defaults
func (c *SquareConfig) Validate() error {
	if c.AccessToken == "" {
		return ErrSquareConfigMissingAccessToken
	}
	if c.LocationID == "" {
		return ErrSquareConfigMissingLocationID
	}
	if c.RequestsPerSecond < 0 {
		return ErrSquareConfigInvalidRate
	}
	if c.MembershipFee.IsNegative() {
		return ErrSquareConfigInvalidFee
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = SquareProductionAPIURL
	}
	if c.APIVersion == "" {
		c.APIVersion = defaultAPIVersion
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.PageSize > maxPageSize {
		c.PageSize = maxPageSize
	}
	return nil
}
