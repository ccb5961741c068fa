package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dirwatch/internal/listing"
)

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Client talks to a dirwatch server. The zero value is not usable; BaseURL
// is required.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
}

func New(baseURL, token string) *Client {
	return &Client{BaseURL: baseURL, Token: token}
}

// FetchDirs lists the given directories one level deep. With no paths the
// server answers with its configured roots. Unreadable paths are simply
// missing from the result.
func (c *Client) FetchDirs(ctx context.Context, paths ...string) ([]listing.Entry, error) {
	baseURL, err := c.baseURL()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		query.Add("paths[]", path)
	}
	target := baseURL + "/api/directory"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request failed: %w", err)
	}
	addToken(request, c.Token)

	response, err := ensureClient(c.HTTP).Do(request)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, readHTTPError(response)
	}

	var entries []listing.Entry
	if err := json.NewDecoder(response.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	return entries, nil
}

func (c *Client) Watch(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("directory path is required")
	}
	return c.sendPath(ctx, http.MethodPost, "/api/directory/watch", path)
}

func (c *Client) Unwatch(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("directory path is required")
	}
	return c.sendPath(ctx, http.MethodPut, "/api/directory/unwatch", path)
}

func (c *Client) UnwatchAll(ctx context.Context) error {
	return c.sendPath(ctx, http.MethodPut, "/api/directory/unwatch", "")
}

func (c *Client) sendPath(ctx context.Context, method, route, path string) error {
	baseURL, err := c.baseURL()
	if err != nil {
		return err
	}

	var body io.Reader
	if path != "" {
		encoded, err := json.Marshal(map[string]string{"path": path})
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, baseURL+route, body)
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	addToken(request, c.Token)

	response, err := ensureClient(c.HTTP).Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return readHTTPError(response)
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func (c *Client) baseURL() (string, error) {
	if c == nil {
		return "", errors.New("client is nil")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		return "", errors.New("base URL is required")
	}
	return baseURL, nil
}

func ensureClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return http.DefaultClient
}

func addToken(request *http.Request, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	request.Header.Set("Authorization", "Bearer "+token)
}

func readHTTPError(response *http.Response) *HTTPError {
	message, code := readErrorMessage(response)
	return &HTTPError{StatusCode: response.StatusCode, Code: code, Message: message}
}

func readErrorMessage(response *http.Response) (string, string) {
	if response == nil {
		return "request failed", ""
	}
	body, _ := io.ReadAll(response.Body)
	text := strings.TrimSpace(string(body))
	if text == "" {
		return response.Status, ""
	}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if strings.TrimSpace(payload.Error) != "" {
			return payload.Error, payload.Code
		}
	}
	return text, ""
}
