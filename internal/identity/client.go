// Package identity talks to the hosted identity provider (GoTrue-compatible
// REST API): bearer token verification and admin account creation.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrInvalidToken: the bearer token is missing, expired or unknown to the provider.
	ErrInvalidToken = errors.New("invalid session")
	// ErrRejected: the provider refused the request (duplicate email, weak password, ...).
	ErrRejected = errors.New("identity provider rejected request")
)

// User is the authenticated identity behind a token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Config struct {
	BaseURL    string
	AnonKey    string
	ServiceKey string
	Timeout    time.Duration
	RetryCount int
}

type Client struct {
	http       *resty.Client
	anonKey    string
	serviceKey string
	logger     *zap.Logger
}

type providerError struct {
	Message          string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *providerError) text() string {
	for _, s := range []string{e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryable).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: c, anonKey: cfg.AnonKey, serviceKey: cfg.ServiceKey, logger: logger}
}

// retryable retries transport failures and 5xx answers of idempotent requests
// only. A failed account creation may still have created the account.
func retryable(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil {
		return false
	}
	switch r.Request.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
	default:
		return false
	}
	return err != nil || r.StatusCode() >= http.StatusInternalServerError
}

// VerifyToken resolves a bearer token to its user.
func (c *Client) VerifyToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}

	var user User
	var perr providerError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("apikey", c.anonKey).
		SetAuthToken(token).
		SetResult(&user).
		SetError(&perr).
		Get("/auth/v1/user")
	if err != nil {
		return User{}, fmt.Errorf("verify token: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusForbidden:
		return User{}, ErrInvalidToken
	case resp.IsError():
		c.logger.Warn("identity provider error on token verification",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", perr.text()),
		)
		return User{}, fmt.Errorf("verify token: provider returned %d", resp.StatusCode())
	}
	if user.ID == "" {
		return User{}, ErrInvalidToken
	}
	return user, nil
}

type createAccountRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	EmailConfirm bool   `json:"email_confirm"`
}

// CreateAccount creates a confirmed account with a temporary password and returns its id.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (string, error) {
	var user User
	var perr providerError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("apikey", c.serviceKey).
		SetAuthToken(c.serviceKey).
		SetBody(createAccountRequest{Email: email, Password: password, EmailConfirm: true}).
		SetResult(&user).
		SetError(&perr).
		Post("/auth/v1/admin/users")
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}

	if resp.IsError() {
		msg := perr.text()
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Info("identity provider rejected account creation",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", msg),
		)
		if resp.StatusCode() >= http.StatusInternalServerError {
			return "", fmt.Errorf("create account: provider returned %d", resp.StatusCode())
		}
		return "", fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: Create failed", ErrRejected)
	}
	return user.ID, nil
}
