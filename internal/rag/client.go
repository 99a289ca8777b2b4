// Package rag queries OpenAI-compatible retrieval servers.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"agentic-edit/internal/cache"
	"agentic-edit/internal/logger"
)

const (
	DefaultModel   = "default"
	DefaultTimeout = 60 * time.Second
	// RAG 服务通常不校验 key，但 SDK 需要一个非空值。
	placeholderAPIKey = "none"
)

var ErrUnknownServer = errors.New("unknown rag server")

var log = logger.Named("rag")

type ServerDef struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

type Options struct {
	Servers []ServerDef
	// Default applies to servers addressed by URL and fills blanks in named servers.
	Default  ServerDef
	Timeout  time.Duration
	Cache    *cache.Cache
	CacheTTL time.Duration
	// Extra request options, e.g. a custom HTTP client in tests.
	RequestOptions []option.RequestOption
}

type Answer struct {
	Server string `json:"server"`
	Query  string `json:"query"`
	Answer string `json:"answer"`
	Cached bool   `json:"cached,omitempty"`
}

type Client struct {
	servers map[string]ServerDef
	def     ServerDef
	timeout time.Duration
	cache   *cache.Cache
	ttl     time.Duration
	extra   []option.RequestOption

	mu   sync.Mutex
	apis map[string]*openai.Client
}

func New(opts Options) *Client {
	c := &Client{
		servers: make(map[string]ServerDef, len(opts.Servers)),
		def:     opts.Default,
		timeout: opts.Timeout,
		cache:   opts.Cache,
		ttl:     opts.CacheTTL,
		extra:   opts.RequestOptions,
		apis:    make(map[string]*openai.Client),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	for _, s := range opts.Servers {
		if strings.TrimSpace(s.Name) == "" {
			continue
		}
		c.servers[s.Name] = s
	}
	return c
}

// Query asks server the question and returns its answer. server is either a configured
// name or a base URL. Answers are cached per server and query.
func (c *Client) Query(ctx context.Context, server, query string) (Answer, error) {
	def, err := c.resolve(server)
	if err != nil {
		return Answer{}, err
	}
	key := cache.Key("rag", def.BaseURL, def.Model, query)
	if cached, ok := cache.GetJSON[Answer](ctx, c.cache, key); ok {
		cached.Cached = true
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.api(def).Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(def.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(query),
		},
	})
	if err != nil {
		return Answer{}, wrapHTTPError(err)
	}
	if len(resp.Choices) == 0 {
		return Answer{}, errors.New("rag server returned no choices")
	}
	ans := Answer{Server: server, Query: query, Answer: resp.Choices[0].Message.Content}
	if err := cache.SetJSON(ctx, c.cache, key, ans, c.ttl); err != nil {
		log.Warnf("cache rag answer: %v", err)
	}
	return ans, nil
}

func (c *Client) resolve(server string) (ServerDef, error) {
	server = strings.TrimSpace(server)
	def, ok := c.servers[server]
	switch {
	case ok:
	case strings.HasPrefix(server, "http://") || strings.HasPrefix(server, "https://"):
		def = ServerDef{Name: server, BaseURL: server}
	case server == "" && c.def.BaseURL != "":
		def = c.def
	default:
		return ServerDef{}, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}
	if def.BaseURL == "" {
		def.BaseURL = c.def.BaseURL
	}
	if def.APIKey == "" {
		def.APIKey = c.def.APIKey
	}
	if def.APIKey == "" {
		def.APIKey = placeholderAPIKey
	}
	if def.Model == "" {
		def.Model = c.def.Model
	}
	if def.Model == "" {
		def.Model = DefaultModel
	}
	if def.BaseURL == "" {
		return ServerDef{}, fmt.Errorf("rag server %s has no base_url", server)
	}
	return def, nil
}

func (c *Client) api(def ServerDef) *openai.Client {
	base := normalizeBaseURL(def.BaseURL)
	id := base + "\x00" + def.APIKey
	c.mu.Lock()
	defer c.mu.Unlock()
	if api, ok := c.apis[id]; ok {
		return api
	}
	cfg := []option.RequestOption{
		option.WithAPIKey(def.APIKey),
		option.WithBaseURL(strings.TrimRight(base, "/") + "/"),
		option.WithMaxRetries(1),
	}
	cfg = append(cfg, c.extra...)
	client := openai.NewClient(cfg...)
	c.apis[id] = &client
	return &client
}

func wrapHTTPError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		if raw := strings.TrimSpace(apiErr.RawJSON()); raw != "" {
			return &HTTPError{StatusCode: apiErr.StatusCode, Body: raw, err: err}
		}
		return &HTTPError{StatusCode: apiErr.StatusCode, err: err}
	}
	return err
}

// HTTPError is a non-2xx response from a RAG server.
type HTTPError struct {
	StatusCode int
	Body       string
	err        error
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http_%d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http_%d: %v", e.StatusCode, e.err)
}

func (e *HTTPError) Unwrap() error { return e.err }
