package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Resolver 把包标识映射为归档下载 URL。
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// Options 是构造解析器的公共参数。
type Options struct {
	Client        *http.Client
	CatalogURL    string
	RepositoryURL string
	UserAgent     string
	Logger        logrus.FieldLogger
}

// Factory 根据 Options 构造某一类解析器。
type Factory func(opts Options) (Resolver, error)

var globalRegistry = newRegistry()

type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func newRegistry() *registry {
	return &registry{factories: make(map[string]Factory)}
}

// Register 将解析器工厂加入全局注册表，重复键会返回错误。
func Register(kind string, factory Factory) error {
	return globalRegistry.register(kind, factory)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(kind string, factory Factory) {
	if err := Register(kind, factory); err != nil {
		panic(err)
	}
}

// New 按 kind 构造解析器。
func New(kind string, opts Options) (Resolver, error) {
	factory, ok := globalRegistry.resolve(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownResolver, kind, strings.Join(Kinds(), ", "))
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		opts.Logger = discard
	}
	return factory(opts)
}

// Kinds 返回按字母排序的已注册解析器名称。
func Kinds() []string {
	return globalRegistry.keys()
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

func (r *registry) register(kind string, factory Factory) error {
	key := normalizeKind(kind)
	if key == "" {
		return fmt.Errorf("resolver kind is required")
	}
	if factory == nil {
		return fmt.Errorf("resolver %s: factory is required", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("resolver %s already registered", key)
	}
	r.factories[key] = factory
	return nil
}

func (r *registry) resolve(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[normalizeKind(kind)]
	return factory, ok
}

func (r *registry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// get 发起 GET 请求，非 200 响应视为错误。
func get(ctx context.Context, opts Options, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, target)
	}
	return resp, nil
}
