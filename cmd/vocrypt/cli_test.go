package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testDeps returns a Deps with captured stdout/stderr and sensible defaults.
func testDeps() (Deps, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return Deps{
		Stdin:       strings.NewReader(""),
		Stdout:      stdout,
		Stderr:      stderr,
		HTTPClient:  http.DefaultClient,
		IsStdoutTTY: func() bool { return false },
		Getenv:      func(string) string { return "" },
	}, stdout, stderr
}

// --- Dispatch tests ---

func TestRun_NoArgs(t *testing.T) {
	t.Parallel()
	deps, _, stderr := testDeps()
	code := run([]string{"vocrypt"}, deps)
	if code != 2 {
		t.Errorf("exit code: got %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "vocrypt") {
		t.Errorf("expected usage hint on stderr, got: %s", stderr.String())
	}
}

func TestRun_Version(t *testing.T) {
	t.Parallel()
	deps, stdout, _ := testDeps()
	code := run([]string{"vocrypt", "version"}, deps)
	if code != 0 {
		t.Errorf("exit code: got %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "vocrypt") {
		t.Errorf("expected version output, got: %s", stdout.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()
	deps, _, stderr := testDeps()
	code := run([]string{"vocrypt", "frobnicate"}, deps)
	if code != 2 {
		t.Errorf("exit code: got %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Errorf("stderr: %s", stderr.String())
	}
}

func TestRun_Help(t *testing.T) {
	t.Parallel()
	deps, _, stderr := testDeps()
	if code := run([]string{"vocrypt", "help"}, deps); code != 0 {
		t.Errorf("exit code: got %d, want 0", code)
	}
	if !strings.Contains(stderr.String(), "COMMANDS") {
		t.Errorf("expected help text, got: %s", stderr.String())
	}
}

// --- Flag parsing ---

func TestParseFlags(t *testing.T) {
	t.Parallel()

	pa, err := parseFlags([]string{"--server", "http://example.test", "--json", "--text", "casa", "abc"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if pa.server != "http://example.test" || !pa.serverFromFlag {
		t.Errorf("server = %q fromFlag=%v", pa.server, pa.serverFromFlag)
	}
	if !pa.json || pa.text != "casa" {
		t.Errorf("json=%v text=%q", pa.json, pa.text)
	}
	if len(pa.args) != 1 || pa.args[0] != "abc" {
		t.Errorf("positional = %v", pa.args)
	}
}

func TestParseFlags_MissingValue(t *testing.T) {
	t.Parallel()
	if _, err := parseFlags([]string{"--server"}); err == nil {
		t.Error("expected error for --server without value")
	}
	if _, err := parseFlags([]string{"--bogus"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestResolveGlobals_EnvFallback(t *testing.T) {
	t.Parallel()
	deps, _, _ := testDeps()
	deps.Getenv = func(key string) string {
		if key == "VOCRYPT_SERVER" {
			return "http://env.test/"
		}
		return ""
	}

	var pa parsedArgs
	resolveGlobals(&pa, deps)
	if pa.server != "http://env.test" {
		t.Errorf("server = %q, want env value without trailing slash", pa.server)
	}
}

// --- Encrypt / decrypt against a fake server ---

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/texts", func(w http.ResponseWriter, r *http.Request) {
		var req EncryptRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Text == "casa roja" {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(EncryptResponse{
				Key:           "deadbeef",
				EncryptedText: "caisai roberjai",
				Created:       true,
				Message:       "record created and encrypted text stored",
			})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"text must be lowercase words separated by single spaces"}`)
	})
	mux.HandleFunc("POST /api/v1/texts/decrypt", func(w http.ResponseWriter, r *http.Request) {
		var req DecryptRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Key == "deadbeef" {
			_ = json.NewEncoder(w).Encode(DecryptResponse{Text: "casa roja", EncryptedText: "caisai roberjai"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"no stored text for that key"}`)
	})
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(StatsResponse{VisitCount: 7, TextCount: 3, TextLimit: 10, Remaining: 7})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEncrypt_TextFlag(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	deps, stdout, _ := testDeps()

	code := run([]string{"vocrypt", "encrypt", "--server", srv.URL, "--text", "casa roja"}, deps)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "caisai roberjai") || !strings.Contains(out, "deadbeef") {
		t.Errorf("output: %s", out)
	}
}

func TestEncrypt_Stdin(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	deps, stdout, _ := testDeps()
	deps.Stdin = strings.NewReader("casa roja\n")

	code := run([]string{"vocrypt", "encrypt", "--server", srv.URL}, deps)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "deadbeef") {
		t.Errorf("output: %s", stdout.String())
	}
}

func TestEncrypt_EmptyStdin(t *testing.T) {
	t.Parallel()
	deps, _, stderr := testDeps()
	code := run([]string{"vocrypt", "encrypt", "--server", "http://unused.test"}, deps)
	if code != 2 {
		t.Errorf("exit code: got %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "no text") {
		t.Errorf("stderr: %s", stderr.String())
	}
}

func TestEncrypt_ServerRejects(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	deps, _, stderr := testDeps()

	code := run([]string{"vocrypt", "encrypt", "--server", srv.URL, "--text", "Casa Roja"}, deps)
	if code != 1 {
		t.Errorf("exit code: got %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "server error (400)") {
		t.Errorf("stderr: %s", stderr.String())
	}
}

func TestEncrypt_JSONOutput(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	deps, stdout, _ := testDeps()

	code := run([]string{"vocrypt", "encrypt", "--server", srv.URL, "--text", "casa roja", "--json"}, deps)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}
	var resp EncryptResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %s", stdout.String())
	}
	if resp.Key != "deadbeef" || !resp.Created {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDecrypt(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	deps, stdout, _ := testDeps()

	code := run([]string{"vocrypt", "decrypt", "--server", srv.URL, "deadbeef"}, deps)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}
	if got := strings.TrimSpace(stdout.String()); got != "casa roja" {
		t.Errorf("output = %q, want plain text only", got)
	}
}

func TestDecrypt_UnknownKey(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	deps, _, stderr := testDeps()

	code := run([]string{"vocrypt", "decrypt", "--server", srv.URL, "nope"}, deps)
	if code != 1 {
		t.Errorf("exit code: got %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "no stored text for that key") {
		t.Errorf("stderr: %s", stderr.String())
	}
}

func TestDecrypt_NoKey(t *testing.T) {
	t.Parallel()
	deps, _, stderr := testDeps()
	code := run([]string{"vocrypt", "decrypt"}, deps)
	if code != 2 {
		t.Errorf("exit code: got %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "exactly one key") {
		t.Errorf("stderr: %s", stderr.String())
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	deps, stdout, _ := testDeps()

	code := run([]string{"vocrypt", "stats", "--server", srv.URL}, deps)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "7") || !strings.Contains(out, "3/10") {
		t.Errorf("output: %s", out)
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	lookup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ip":"198.51.100.7"}`)
	}))
	t.Cleanup(lookup.Close)

	deps, stdout, _ := testDeps()
	deps.Getenv = func(key string) string {
		if key == "VOCRYPT_IP_LOOKUP_URL" {
			return lookup.URL
		}
		return ""
	}

	code := run([]string{"vocrypt", "identity"}, deps)
	if code != 0 {
		t.Fatalf("exit code: got %d, want 0", code)
	}
	if got := strings.TrimSpace(stdout.String()); got != "198.51.100.7" {
		t.Errorf("output = %q", got)
	}
}

func TestIdentity_LookupFails(t *testing.T) {
	t.Parallel()

	lookup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(lookup.Close)

	deps, _, stderr := testDeps()
	deps.Getenv = func(key string) string {
		if key == "VOCRYPT_IP_LOOKUP_URL" {
			return lookup.URL
		}
		return ""
	}

	code := run([]string{"vocrypt", "identity"}, deps)
	if code != 1 {
		t.Errorf("exit code: got %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "status 500") {
		t.Errorf("stderr: %s", stderr.String())
	}
}
