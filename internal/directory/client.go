package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"socialservice/internal/config"
	"socialservice/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Client looks up academic identities by institutional code.
type Client struct {
	URL     string
	HTTP    *http.Client
	Timeout time.Duration
	Logger  *slog.Logger
	cache   *expirable.LRU[string, domain.Identity]
}

// New builds a client from cfg. A cache size of zero disables caching.
func New(cfg config.Directory, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		URL:     cfg.URL,
		HTTP:    &http.Client{Timeout: timeout},
		Timeout: timeout,
		Logger:  logger,
	}
	if cfg.CacheSize > 0 {
		c.cache = expirable.NewLRU[string, domain.Identity](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return c
}

type record struct {
	Names     string `json:"stu_nombres"`
	Paternal  string `json:"stu_apellido_paterno"`
	Maternal  string `json:"stu_apellido_materno"`
	Faculty   string `json:"stu_facultad"`
	Program   string `json:"stu_programa"`
	Code      string `json:"stu_codigo"`
	Email     string `json:"stu_email"`
	Telephone string `json:"stu_celular"`
}

// Lookup returns nil without error when the directory has no record for code.
func (c *Client) Lookup(ctx context.Context, code string) (*domain.Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	if c.cache != nil {
		if id, ok := c.cache.Get(code); ok {
			return &id, nil
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	endpoint := strings.ReplaceAll(c.URL, "{code}", url.QueryEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		c.Logger.Warn("directory lookup failed", slog.String("code", code), slog.String("error", err.Error()))
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("directory status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var records []record
	if err := json.NewDecoder(res.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	rec := records[0]
	id := domain.Identity{
		Code:     code,
		FullName: joinName(rec.Names, rec.Paternal, rec.Maternal),
		Faculty:  strings.TrimSpace(rec.Faculty),
		Program:  strings.TrimSpace(rec.Program),
	}
	if c.cache != nil {
		c.cache.Add(code, id)
	}
	return &id, nil
}

func joinName(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
