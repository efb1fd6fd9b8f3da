package proxy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no usernames", Config{Password: "secret"}},
		{"no password", Config{Usernames: []string{"user-1"}}},
		{"empty", Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, 1)
			assert.False(t, p.Enabled())
			assert.Empty(t, p.URL())
		})
	}
}

func TestPool_URLFormat(t *testing.T) {
	p := New(Config{
		Password:  "secret",
		Usernames: []string{"lvzvdcev-1"},
	}, 1)

	require.True(t, p.Enabled())
	assert.Equal(t, "http://lvzvdcev-1:secret@"+DefaultEndpoint, p.URL())
}

func TestPool_RotatesAcrossUsernames(t *testing.T) {
	usernames := []string{"u-1", "u-2", "u-3", "u-4"}
	p := New(Config{Password: "pw", Usernames: usernames, Endpoint: "proxy.example:8080"}, 42)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		u := p.URL()
		require.True(t, strings.HasSuffix(u, "@proxy.example:8080"))
		seen[u] = true
	}
	assert.Len(t, seen, len(usernames), "all identities should appear in rotation")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.yaml")
	data := `
endpoint: proxy.example:80
password: hunter2
usernames:
  - acct-1
  - acct-2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	p, err := LoadFile(path, 7)
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.Equal(t, 2, p.Size())
	assert.Contains(t, p.URL(), "@proxy.example:80")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), 1)
	require.Error(t, err)
}

func TestRotations(t *testing.T) {
	names := Rotations("wsuser", 3)
	require.Equal(t, []string{"wsuser-1", "wsuser-2", "wsuser-3"}, names)

	assert.Nil(t, Rotations("", 3))
	assert.Nil(t, Rotations("wsuser", 0))
}
