package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/syncache/internal/server"
	"github.com/roach88/syncache/internal/store"
)

// backend is a demo server on an httptest listener. SYNCACHE_SERVER_URL
// points at it for the rest of the test.
type backend struct {
	srv *server.Server
	ts  *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(server.Config{Logger: logger}, st)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Broadcaster().Close()
		ts.Close()
		st.Close()
	})
	t.Setenv("SYNCACHE_SERVER_URL", ts.URL)
	return &backend{srv: srv, ts: ts}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// syncBuffer is a bytes.Buffer safe for a command goroutine writing while the
// test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// start runs the root command in the background until the returned cancel
// is called. The returned channel yields the command's error.
func start(t *testing.T, args ...string) (*syncBuffer, context.CancelFunc, <-chan error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	t.Cleanup(cancel)
	return out, cancel, done
}
