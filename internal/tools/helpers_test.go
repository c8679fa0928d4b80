package tools

import (
	"context"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"matrixmcp/internal/matrix"
	"matrixmcp/internal/matrix/matrixtest"
)

const self = "@alice:example.org"

type fakeSource struct {
	mu          sync.Mutex
	session     *matrixtest.Session
	err         error
	invalidated int
}

func (f *fakeSource) Session(ctx context.Context, rc matrix.RequestCredentials) (matrix.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeSource) Invalidate(rc matrix.RequestCredentials) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeSource) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

func newFixture() (*Toolset, *fakeSource, *matrixtest.Session) {
	s := matrixtest.New(self, "https://matrix.example.org")
	src := &fakeSource{session: s}
	return New(src), src, s
}

func callTool(t *testing.T, ts *Toolset, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	for _, tool := range ts.Tools() {
		if tool.Definition.Name != name {
			continue
		}
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		ctx := matrix.ContextWithRequestCredentials(context.Background(), matrix.RequestCredentials{
			Identity:    self,
			HeaderToken: "syt_token",
		})
		res, err := tool.Handler(ctx, req)
		require.NoError(t, err)
		require.NotNil(t, res)
		return res
	}
	t.Fatalf("tool %s not registered", name)
	return nil
}

// texts returns the text of every text content item.
func texts(t *testing.T, res *mcp.CallToolResult) []string {
	t.Helper()
	var out []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out = append(out, tc.Text)
		}
	}
	return out
}

func firstText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	all := texts(t, res)
	require.NotEmpty(t, all)
	return all[0]
}
