// Package agency is a client for the Morocco View agency backend.
package agency

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mousybusiness/moroccoview/internal/errs"
	"github.com/pkg/errors"
)

const (
	metricsPath = "/agencies/metrics"
	usersPath   = "/agencies/users"

	commissionRate = 0.05
)

var ErrIncompleteTourist = errors.New("Please fill in all fields")

type (
	Metrics struct {
		Total        int     `json:"total"`
		LoggedIn     int     `json:"loggedIn"`
		TotalRevenue float64 `json:"totalRevenue"`
	}

	Tourist struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		// LastActive is milliseconds since epoch, 0 when never active.
		LastActive int64 `json:"lastActive"`
		LoggedIn   bool  `json:"loggedIn"`
		Purchases  int   `json:"purchases"`
	}

	NewTourist struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	}
)

// Commission is the agency's share of revenue.
func (m Metrics) Commission() float64 {
	return m.TotalRevenue * commissionRate
}

// LastActiveTime returns false when the tourist was never active.
func (t Tourist) LastActiveTime() (time.Time, bool) {
	if t.LastActive == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(t.LastActive), true
}

func (t Tourist) Name() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

func (n NewTourist) Validate() error {
	if strings.TrimSpace(n.FirstName) == "" || strings.TrimSpace(n.LastName) == "" || strings.TrimSpace(n.Email) == "" {
		return ErrIncompleteTourist
	}
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. httpClient should carry the session
// transport so requests are authenticated.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("require baseURL")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}, nil
}

func (c *Client) Metrics(ctx context.Context) (*Metrics, error) {
	var m Metrics
	if err := c.do(ctx, http.MethodGet, metricsPath, nil, &m, "Failed to fetch metrics"); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) Tourists(ctx context.Context) ([]Tourist, error) {
	var tourists []Tourist
	if err := c.do(ctx, http.MethodGet, usersPath, nil, &tourists, "Failed to fetch tourists"); err != nil {
		return nil, err
	}
	return tourists, nil
}

func (c *Client) CreateTourist(ctx context.Context, tourist NewTourist) (*Tourist, error) {
	if err := tourist.Validate(); err != nil {
		return nil, err
	}

	var created Tourist
	if err := c.do(ctx, http.MethodPost, usersPath, tourist, &created, "Failed to create tourist"); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, fallback string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%v %v", method, path)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "%v %v", method, path)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errs.NewHttpError(resp.StatusCode, b, fallback)
	}

	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrapf(err, "unexpected %v %v response", method, path)
	}
	return nil
}
