package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPDoer is the interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// APIClient wraps HTTP calls to the vocrypt server API.
type APIClient struct {
	BaseURL    string
	HTTPClient HTTPDoer
}

// EncryptRequest is the API payload for encrypting and storing a text.
type EncryptRequest struct {
	Text string `json:"text"`
}

// EncryptResponse is the API response from storing a text.
type EncryptResponse struct {
	Key           string `json:"key"`
	EncryptedText string `json:"encrypted_text"`
	Created       bool   `json:"record_created"`
	Message       string `json:"message"`
}

// DecryptRequest is the API payload for retrieving a stored text.
type DecryptRequest struct {
	Key string `json:"key"`
}

// DecryptResponse is the API response from retrieving a text.
type DecryptResponse struct {
	Text          string `json:"text"`
	EncryptedText string `json:"encrypted_text"`
}

// StatsResponse is the per-address counter view.
type StatsResponse struct {
	VisitCount int `json:"visit_count"`
	TextCount  int `json:"text_count"`
	TextLimit  int `json:"text_limit"`
	Remaining  int `json:"remaining"`
}

// Encrypt uploads a plain text and returns the server response.
func (c *APIClient) Encrypt(text string) (EncryptResponse, error) {
	var result EncryptResponse
	err := c.post("/api/v1/texts", EncryptRequest{Text: text}, http.StatusCreated, &result)
	return result, err
}

// Decrypt retrieves and decrypts the text stored under key.
func (c *APIClient) Decrypt(key string) (DecryptResponse, error) {
	var result DecryptResponse
	err := c.post("/api/v1/texts/decrypt", DecryptRequest{Key: key}, http.StatusOK, &result)
	return result, err
}

// Stats returns the usage counters for the calling address.
func (c *APIClient) Stats() (StatsResponse, error) {
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodGet, c.BaseURL+"/api/v1/stats", nil)
	if err != nil {
		return StatsResponse{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return StatsResponse{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StatsResponse{}, readAPIError(resp)
	}

	var result StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return StatsResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func (c *APIClient) post(path string, payload any, wantStatus int, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return readAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("server error (%d)", resp.StatusCode)
}
