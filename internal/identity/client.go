// Package identity предоставляет клиент внешнего каталога пользователей.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrUserNotFound возвращается, если пользователь отсутствует в каталоге.
var ErrUserNotFound = errors.New("user not found")

// User описывает пользователя каталога: идентификатор, отображаемое имя и роли.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Client инкапсулирует HTTP-взаимодействие с каталогом пользователей.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент каталога пользователей по указанному адресу.
// Временные сетевые сбои скрываются повторами retryablehttp.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// GetUser запрашивает пользователя каталога по идентификатору.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("identity client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/users/%s", base, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	default:
		return nil, fmt.Errorf("unexpected status %d from users system", resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if u.ID == "" {
		u.ID = id
	}

	return &u, nil
}
