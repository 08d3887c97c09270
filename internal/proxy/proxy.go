package proxy

import (
	"math/rand"
	"net/http"
	"net/url"
	"sync"

	"github.com/williampepple1/eudract-scraper/internal/config"
)

// Manager handles proxy configuration and rotation
type Manager struct {
	Config *config.ProxyConfig

	mu      sync.Mutex
	current *url.URL
}

// NewManager creates a new proxy manager
func NewManager(config *config.ProxyConfig) *Manager {
	return &Manager{
		Config: config,
	}
}

// Enabled reports whether requests should go through a proxy.
func (m *Manager) Enabled() bool {
	return m.Config != nil && m.Config.Enabled && len(m.Config.List) > 0
}

// GetProxyURL returns a proxy URL from the configuration
func (m *Manager) GetProxyURL() (*url.URL, error) {
	if !m.Enabled() {
		return nil, nil
	}

	// Select a proxy
	proxyStr := m.Config.List[0]
	if m.Config.Rotate && len(m.Config.List) > 1 {
		proxyStr = m.Config.List[rand.Intn(len(m.Config.List))]
	}

	// Parse the proxy URL
	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, err
	}

	// Add authentication if provided
	if m.Config.Auth.Username != "" && m.Config.Auth.Password != "" {
		proxyURL.User = url.UserPassword(m.Config.Auth.Username, m.Config.Auth.Password)
	}

	return proxyURL, nil
}

// Next selects the proxy used by subsequent requests and returns it,
// redacted for logging. It returns "" when proxies are disabled.
func (m *Manager) Next() (string, error) {
	proxyURL, err := m.GetProxyURL()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.current = proxyURL
	m.mu.Unlock()

	if proxyURL == nil {
		return "", nil
	}
	return proxyURL.Redacted(), nil
}

// ApplyToTransport routes the transport through whichever proxy Next last selected.
func (m *Manager) ApplyToTransport(transport *http.Transport) (string, error) {
	used, err := m.Next()
	if err != nil {
		return "", err
	}
	if !m.Enabled() {
		return "", nil
	}

	transport.Proxy = func(*http.Request) (*url.URL, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.current, nil
	}
	return used, nil
}

// CanRotate reports whether a retry may switch to another proxy.
func (m *Manager) CanRotate() bool {
	return m.Enabled() && m.Config.Rotate && len(m.Config.List) > 1
}
