package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/cipher"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/config"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/ledger"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/ratelimit"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/web"
)

const maxBodyBytes = 64 * 1024

// GeoLookup is the slice of the geolocation client the server needs; nil
// means geolocation is not configured.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (storage.GeoRecord, error)
}

type Server struct {
	cfg    config.Config
	ledger *ledger.Ledger
	geo    GeoLookup

	storeLimiter *ratelimit.Limiter
	readLimiter  *ratelimit.Limiter

	mux *http.ServeMux
}

func NewServer(cfg config.Config, l *ledger.Ledger, geo GeoLookup) *Server {
	mux := http.NewServeMux()

	s := &Server{
		cfg:    cfg,
		ledger: l,
		geo:    geo,
		// Single-instance rate limits per IP. Tune as needed.
		storeLimiter: ratelimit.New(0.5, 6), // ~30/min burst 6 per IP
		readLimiter:  ratelimit.New(2.0, 20),
		mux:          mux,
	}

	// Sweep rate limiter buckets: every 2 minutes, evict after 10 minutes idle.
	s.storeLimiter.StartGC(2*time.Minute, 10*time.Minute)
	s.readLimiter.StartGC(2*time.Minute, 10*time.Minute)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /robots.txt", s.handleRobotsTxt)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(web.StaticFS())))

	mux.HandleFunc("POST /api/v1/texts", s.handleEncrypt)
	mux.HandleFunc("POST /api/v1/texts/decrypt", s.handleDecrypt)
	mux.HandleFunc("PUT /api/v1/texts/{fingerprint}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/texts/{fingerprint}", s.handleDelete)

	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("POST /api/v1/visits", s.handleVisit)
	mux.HandleFunc("GET /api/v1/identity", s.handleIdentity)
	mux.HandleFunc("GET /api/v1/geo", s.handleGeo)

	return s
}

func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux)
}

// Close stops background goroutines (rate limiter GC). Safe to call multiple times.
func (s *Server) Close() {
	s.storeLimiter.Stop()
	s.readLimiter.Stop()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleRobotsTxt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /api/\n")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	web.ServeIndex(w, r)
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.storeLimiter.Allow(ip) {
		rateLimited(w)
		return
	}

	var req EncryptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	encrypted, err := cipher.Encrypt(req.Text)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.ledger.StoreText(ctx, ip, encrypted)
	if err != nil {
		s.writeLedgerError(w, err, "store text")
		return
	}

	writeJSON(w, http.StatusCreated, EncryptResponse{
		Key:           res.Key,
		EncryptedText: encrypted,
		Created:       res.Created,
		Message:       res.Message,
	})
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.readLimiter.Allow(ip) {
		rateLimited(w)
		return
	}

	var req DecryptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		badRequest(w, "key is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	encrypted, err := s.ledger.RetrieveText(ctx, ip, strings.TrimSpace(req.Key))
	if err != nil {
		s.writeLedgerError(w, err, "retrieve text")
		return
	}

	writeJSON(w, http.StatusOK, DecryptResponse{
		Text:          cipher.Decrypt(encrypted),
		EncryptedText: encrypted,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.storeLimiter.Allow(ip) {
		rateLimited(w)
		return
	}

	fp := r.PathValue("fingerprint")
	if fp == "" {
		notFound(w)
		return
	}

	var req UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	encrypted, err := cipher.Encrypt(req.Text)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// The entry keeps its original key: the stored text changes but the
	// fingerprint it lives under does not, exactly like the page's edit flow.
	if err := s.ledger.UpdateText(ctx, ip, fp, encrypted); err != nil {
		s.writeLedgerError(w, err, "update text")
		return
	}

	writeJSON(w, http.StatusOK, UpdateResponse{Key: fp, EncryptedText: encrypted})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.storeLimiter.Allow(ip) {
		rateLimited(w)
		return
	}

	fp := r.PathValue("fingerprint")
	if fp == "" {
		notFound(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.ledger.DeleteText(ctx, ip, fp); err != nil {
		s.writeLedgerError(w, err, "delete text")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Snapshot never fails; a missing record reads as zeros.
	snap := s.ledger.UsageSnapshot(ctx, clientIP(r))
	writeJSON(w, http.StatusOK, StatsResponse{
		VisitCount: snap.VisitCount,
		TextCount:  snap.TextCount,
		TextLimit:  snap.TextLimit,
		Remaining:  snap.TextLimit - snap.TextCount,
	})
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	count, err := s.ledger.IncrementVisitCounter(ctx)
	if err != nil {
		slog.Error("increment visit counter error", "err", err)
		internalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, VisitResponse{VisitCount: count})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IdentityResponse{IP: clientIP(r)})
}

func (s *Server) handleGeo(w http.ResponseWriter, r *http.Request) {
	if s.geo == nil {
		writeError(w, http.StatusServiceUnavailable, "geolocation is not configured")
		return
	}
	if !s.readLimiter.Allow(clientIP(r)) {
		rateLimited(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rec, err := s.geo.Lookup(ctx, clientIP(r))
	if err != nil {
		slog.Error("geo lookup error", "err", err)
		writeError(w, http.StatusBadGateway, "geolocation lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, GeoResponse{
		Country:     rec.Country,
		CountryCode: rec.CountryCode,
		City:        rec.City,
		LocalTime:   rec.LocalTime,
	})
}

// writeLedgerError maps ledger and storage errors onto HTTP statuses; the
// sentinel messages double as the user-facing banner text.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, storage.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, storage.ErrQuotaExceeded.Error())
	case errors.Is(err, storage.ErrDuplicateText):
		writeError(w, http.StatusConflict, storage.ErrDuplicateText.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "no stored text for that key")
	case errors.Is(err, ledger.ErrIdentityMissing),
		errors.Is(err, ledger.ErrKeyMissing),
		errors.Is(err, ledger.ErrEmptyText):
		badRequest(w, err.Error())
	default:
		slog.Error(op+" error", "err", err)
		internalServerError(w)
	}
}

// decodeBody strictly decodes a JSON request body into v, writing the error
// response itself when the body is unacceptable.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if !isJSONContentType(r) {
		badRequest(w, "content-type must be application/json")
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		badRequest(w, mapDecodeError(err))
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	// Trust proxy headers only from loopback (nginx/reverse proxy on same host).
	if host == "127.0.0.1" || host == "::1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Leftmost IP is the original client.
			if i := strings.IndexByte(xff, ','); i > 0 {
				return strings.TrimSpace(xff[:i])
			}
			return strings.TrimSpace(xff)
		}
	}

	return host
}
