package upstreamsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/profile"
)

// Client talks to the core REST API. Transport failures on reads are retried
// exactly once before surfacing a profile.NetworkError; there is no further
// automatic retry loop (callers retry by re-evaluating).
type Client struct {
	base   string
	http   *http.Client
	logger core.Logger
}

var (
	_ profile.Authenticator       = (*Client)(nil)
	_ profile.Fetcher             = (*Client)(nil)
	_ profile.SubscriptionFetcher = (*Client)(nil)
)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	timeout := conf.Upstream.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:   conf.Upstream.BaseURL,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *Client) SignIn(ctx context.Context, username, password string) (profile.SignInResult, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return profile.SignInResult{}, errors.Wrap(err, "marshalling credentials")
	}

	resp, err := c.do(ctx, http.MethodPost, "/auth/sign-in", "", body, false /* retry */)
	if err != nil {
		return profile.SignInResult{}, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var res profile.SignInResult
		if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return profile.SignInResult{}, errors.Wrap(err, "decoding sign-in response")
		}
		return res, nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		return profile.SignInResult{}, core.NewValidationError(errors.New("invalid credentials"))
	default:
		return profile.SignInResult{}, errors.Errorf("sign-in: unexpected status %d", resp.StatusCode)
	}
}

func (c *Client) FetchProfile(ctx context.Context, token string) (profile.Profile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/me", token, nil, true /* retry */)
	if err != nil {
		return profile.Profile{}, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var p profile.Profile
		if err = json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return profile.Profile{}, errors.Wrap(err, "decoding profile")
		}
		return p, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return profile.Profile{}, profile.ErrAuth
	default:
		return profile.Profile{}, errors.Errorf("profile: unexpected status %d", resp.StatusCode)
	}
}

func (c *Client) FetchSubscription(ctx context.Context, token, companyID, userID string) (profile.Subscription, error) {
	path := "/companies/" + url.PathEscape(companyID) + "/subscription?user=" + url.QueryEscape(userID)
	resp, err := c.do(ctx, http.MethodGet, path, token, nil, true /* retry */)
	if err != nil {
		return profile.Subscription{}, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var sub profile.Subscription
		if err = json.NewDecoder(resp.Body).Decode(&sub); err != nil {
			return profile.Subscription{}, errors.Wrap(err, "decoding subscription")
		}
		return sub, nil
	case http.StatusNoContent, http.StatusNotFound:
		return profile.Subscription{}, nil // tenant has no subscription
	case http.StatusUnauthorized, http.StatusForbidden:
		return profile.Subscription{}, profile.ErrAuth
	default:
		return profile.Subscription{}, errors.Errorf("subscription: unexpected status %d", resp.StatusCode)
	}
}

// do issues one request. With retry set, a transport failure is retried
// exactly once; the request is rebuilt per attempt so the body reader is
// fresh. Mutations (sign-in) pass retry=false; their outcome on a dropped
// connection is unknown.
func (c *Client) do(ctx context.Context, method, path, token string, body []byte, retry bool) (*http.Response, error) {
	attempts := 1
	if retry {
		attempts = 2
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
		if err != nil {
			return nil, errors.Wrap(err, "building request")
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if c.logger != nil && attempt+1 < attempts {
			c.logger.Warn("upstream: retrying after transport failure", err)
		}
	}
	return nil, &profile.NetworkError{Err: lastErr}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
