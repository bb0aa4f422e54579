package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/authz"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/override"
)

type overrideClient struct {
	baseURL string
	actor   string
	groups  string
	http    *http.Client
}

func newClient(opts *globalOptions) *overrideClient {
	return &overrideClient{
		baseURL: opts.server,
		actor:   opts.actor,
		groups:  opts.groups,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx reply from the server.
type apiError struct {
	Status int
	Body   override.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Body.Code, e.Body.Error)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body.Error)
}

func (c *overrideClient) getJSON(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

func (c *overrideClient) postJSON(path string, body, v any) error {
	return c.do(http.MethodPost, path, body, v)
}

func (c *overrideClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}

// do sends a request as the configured actor and decodes a JSON reply into v.
func (c *overrideClient) do(method, path string, body, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(authz.UserHeader, c.actor)
	}
	if c.groups != "" {
		req.Header.Set(authz.GroupHeader, c.groups)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(raw, &apiErr.Body) != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = string(bytes.TrimSpace(raw))
		}
		return apiErr
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
