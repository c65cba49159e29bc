package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"qtsettings/internal/utils"
)

// client talks to a running agent's control API.
type client struct {
	base string
	http *http.Client
}

func newClient(addr string) *client {
	return &client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// alive reports whether an agent answers on the configured address.
func (c *client) alive(ctx context.Context) bool {
	if c == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil)
	return err == nil
}

// apiError is a non-2xx response. The body is kept because taps return a
// result alongside the error status.
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(e.Body, &msg) == nil {
		if msg.Message != "" {
			return msg.Message
		}
		if msg.Error != "" {
			return msg.Error
		}
	}
	return fmt.Sprintf("agent returned %d", e.Status)
}

func (c *client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := utils.ReadAllLimited(resp.Body, utils.MaxHTTPBodySize)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return &apiError{Status: resp.StatusCode, Body: data}
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}
