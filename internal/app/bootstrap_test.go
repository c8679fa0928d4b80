package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixmcp/internal/config"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(true, "/etc/matrix-mcp", "1.2.3")
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/etc/matrix-mcp", cfg.ConfigPath)
	assert.Equal(t, "1.2.3", cfg.Version)
}

func TestNewApplication_ConfigErrorsAreReturnedUnwrapped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [broken"), 0o600))

	_, err := NewApplication(NewConfig(false, dir, "test"))
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestNewApplicationWithSettings_JSONLogging(t *testing.T) {
	settings := config.GetDefaultConfig()
	settings.Logging.Format = "json"

	var buf bytes.Buffer
	application, err := NewApplicationWithSettings(NewConfig(false, "", "test"), settings, &buf)
	require.NoError(t, err)
	t.Cleanup(application.Services().Provider.Shutdown)

	assert.Contains(t, buf.String(), `"msg":"Registered 20 tools"`)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	settings := config.GetDefaultConfig()
	settings.Server.Port = freePort(t)

	application, err := NewApplicationWithSettings(NewConfig(false, "", "test"), settings, io.Discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	url := "http://" + settings.Server.Host + ":" + strconv.Itoa(settings.Server.Port) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, 0, application.Services().Sessions.Stats().Size)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
