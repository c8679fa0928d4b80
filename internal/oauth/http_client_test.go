package oauth

import (
	"encoding/pem"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	t.Run("defaults timeout without CA", func(t *testing.T) {
		client, err := NewHTTPClient("", 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultHTTPTimeout, client.Timeout)
	})

	t.Run("missing CA file", func(t *testing.T) {
		_, err := NewHTTPClient(filepath.Join(t.TempDir(), "missing.pem"), time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read CA file")
	})

	t.Run("invalid CA file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))
		_, err := NewHTTPClient(path, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse CA certificate")
	})

	t.Run("trusts a custom CA", func(t *testing.T) {
		server := httptest.NewTLSServer(nil)
		defer server.Close()

		path := filepath.Join(t.TempDir(), "ca.pem")
		certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
		require.NoError(t, os.WriteFile(path, certPEM, 0o600))

		client, err := NewHTTPClient(path, 5*time.Second)
		require.NoError(t, err)

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	})
}
