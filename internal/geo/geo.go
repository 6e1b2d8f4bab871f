// Package geo looks up coarse geolocation for an address. Results go
// through two layers the way the original page did: the document store is
// checked first, then the external API is called and the result registered.
// A short-lived in-process cache sits in front of both.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
)

// HTTPDoer is the interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type Client struct {
	apiURL string
	apiKey string
	http   HTTPDoer
	store  storage.Store
	cache  *gocache.Cache
}

func New(apiURL, apiKey string, httpClient HTTPDoer, store storage.Store) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		http:   httpClient,
		store:  store,
		cache:  gocache.New(10*time.Minute, 30*time.Minute),
	}
}

// apiResponse is the geolocation endpoint's wire format.
type apiResponse struct {
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
	Timezone    struct {
		CurrentTime string `json:"current_time"`
	} `json:"timezone"`
}

// Lookup returns geolocation for ip: from the in-process cache, else the
// store, else the external API (registering the result in the store).
func (c *Client) Lookup(ctx context.Context, ip string) (storage.GeoRecord, error) {
	if ip == "" {
		return storage.GeoRecord{}, errors.New("ip is required")
	}

	if v, ok := c.cache.Get(ip); ok {
		return v.(storage.GeoRecord), nil
	}

	rec, err := c.store.GetGeo(ctx, ip)
	if err == nil {
		c.cache.SetDefault(ip, rec)
		return rec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.GeoRecord{}, fmt.Errorf("read geo record: %w", err)
	}

	rec, err = c.fetch(ctx, ip)
	if err != nil {
		return storage.GeoRecord{}, err
	}

	if err := c.store.PutGeo(ctx, rec); err != nil {
		return storage.GeoRecord{}, fmt.Errorf("register geo record: %w", err)
	}
	c.cache.SetDefault(ip, rec)
	return rec, nil
}

func (c *Client) fetch(ctx context.Context, ip string) (storage.GeoRecord, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return storage.GeoRecord{}, fmt.Errorf("parse geo api url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("ip_address", ip)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return storage.GeoRecord{}, fmt.Errorf("build geo request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return storage.GeoRecord{}, fmt.Errorf("geo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return storage.GeoRecord{}, fmt.Errorf("geo api returned status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil {
		return storage.GeoRecord{}, fmt.Errorf("decode geo response: %w", err)
	}

	return storage.GeoRecord{
		IP:          ip,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		City:        body.City,
		LocalTime:   body.Timezone.CurrentTime,
	}, nil
}
