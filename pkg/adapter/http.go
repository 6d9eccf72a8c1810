package adapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shipsight/shipsight/pkg/config"
)

// maxResponseBytes bounds adapter response bodies read into memory.
const maxResponseBytes = 1 << 20

// httpSource is the shared HTTP transport for the built-in adapters:
// endpoint, auth method, credential handle, timeout. Connections are pooled
// by the embedded client, so stateless sources are shareable across
// investigations.
type httpSource struct {
	name       string
	cfg        config.AdapterConfig
	client     *http.Client
	credential string
}

func newHTTPSource(name string, cfg config.AdapterConfig) *httpSource {
	credential := ""
	if cfg.CredentialEnv != "" {
		credential = os.Getenv(cfg.CredentialEnv)
	}
	return &httpSource{
		name:       name,
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		credential: credential,
	}
}

// getJSON performs an authenticated GET and decodes the response into out.
// The raw body is returned for the evidence raw field. Errors carry the
// adapter taxonomy kind.
func (s *httpSource) getJSON(ctx context.Context, path string, params url.Values, out any) ([]byte, error) {
	u := strings.TrimRight(s.cfg.Endpoint, "/") + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, NewError(s.name, ErrMalformed, err)
	}
	return s.do(req, path, out)
}

// postJSON performs an authenticated POST with a JSON body.
func (s *httpSource) postJSON(ctx context.Context, path string, body any, out any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(s.name, ErrMalformed, err)
	}
	u := strings.TrimRight(s.cfg.Endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(payload)))
	if err != nil {
		return nil, NewError(s.name, ErrMalformed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, path, out)
}

func (s *httpSource) do(req *http.Request, path string, out any) ([]byte, error) {
	s.authenticate(req, path)
	resp, err := s.client.Do(req)
	if err != nil {
		kind := ErrTransient
		if req.Context().Err() != nil {
			kind = ErrDeadline
		}
		return nil, NewError(s.name, kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewError(s.name, ErrTransient, err)
	}
	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return raw, NewError(s.name, kind, fmt.Errorf("%s %s: HTTP %d", req.Method, path, resp.StatusCode))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, NewError(s.name, ErrMalformed, fmt.Errorf("decode %s response: %w", path, err))
		}
	}
	return raw, nil
}

func (s *httpSource) authenticate(req *http.Request, path string) {
	switch s.cfg.Auth {
	case config.AuthHMACSHA1:
		date := time.Now().UTC().Format(http.TimeFormat)
		mac := hmac.New(sha1.New, []byte(s.credential))
		fmt.Fprintf(mac, "%s\n%s\n%s", req.Method, path, date)
		req.Header.Set("X-Signature-Date", date)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	case config.AuthBasic:
		user, pass, _ := strings.Cut(s.credential, ":")
		req.SetBasicAuth(user, pass)
	case config.AuthAPIKey:
		req.Header.Set("X-API-Key", s.credential)
	case config.AuthIAM:
		req.Header.Set("Authorization", "Bearer "+s.credential)
	}
}

// classifyStatus maps an HTTP status to the error taxonomy. The second
// return is false for success statuses.
func classifyStatus(status int) (ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth, true
	case status == http.StatusNotFound:
		return ErrNotFound, true
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return ErrTransient, true
	default:
		return ErrMalformed, true
	}
}
