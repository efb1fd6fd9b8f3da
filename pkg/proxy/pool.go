// Package proxy provides the rotating proxy credential pool handed to the
// fetch tool.
//
// Rotation itself happens at the proxy service; this package only selects
// which credential to pass through on each call. No connection logic lives
// here.
package proxy

import (
	"fmt"
	"math/rand"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultEndpoint is the rotating proxy gateway host:port.
const DefaultEndpoint = "p.webshare.io:80"

// Pool is a static set of proxy credentials sharing one password and
// endpoint. Safe for concurrent use.
type Pool struct {
	endpoint  string
	password  string
	usernames []string

	mu  sync.Mutex
	rng *rand.Rand
}

// Config configures a credential pool. It doubles as the YAML file schema
// for LoadFile.
type Config struct {
	// Endpoint is the proxy gateway. Defaults to DefaultEndpoint.
	Endpoint string `yaml:"endpoint"`

	// Password is shared across all usernames (required for a non-empty pool).
	Password string `yaml:"password"`

	// Usernames are the rotation identities. May be empty, in which case
	// the pool is disabled and URL() returns "".
	Usernames []string `yaml:"usernames"`
}

// New creates a pool from cfg. A pool with no usernames or no password is
// valid but disabled.
func New(cfg Config, seed int64) *Pool {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Pool{
		endpoint:  endpoint,
		password:  cfg.Password,
		usernames: append([]string(nil), cfg.Usernames...),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Rotations expands a Webshare account name into its numbered rotation
// identities: base-1 through base-count. Returns nil when either input is
// empty.
func Rotations(base string, count int) []string {
	if base == "" || count <= 0 {
		return nil
	}
	names := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		names = append(names, fmt.Sprintf("%s-%d", base, i))
	}
	return names
}

// LoadFile reads a YAML credential file and builds a pool from it.
func LoadFile(path string, seed int64) (*Pool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proxy credentials: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse proxy credentials: %w", err)
	}
	return New(cfg, seed), nil
}

// Enabled reports whether the pool has usable credentials.
func (p *Pool) Enabled() bool {
	return p != nil && p.password != "" && len(p.usernames) > 0
}

// URL returns a proxy URL with a randomly selected username, or "" when the
// pool is disabled.
func (p *Pool) URL() string {
	if !p.Enabled() {
		return ""
	}

	p.mu.Lock()
	username := p.usernames[p.rng.Intn(len(p.usernames))]
	p.mu.Unlock()

	return fmt.Sprintf("http://%s:%s@%s", username, p.password, p.endpoint)
}

// Size returns the number of rotation identities.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.usernames)
}
