package cli

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/syncache/internal/cache"
	"github.com/roach88/syncache/internal/realtime"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <collection>",
		Short: "Follow a collection over realtime",
		Long: `Load a collection, subscribe to its realtime events and print the
collection again after every change. Stops on interrupt or when the
server closes the connection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, rootOpts, args[0])
		},
	}
}

func runWatch(cmd *cobra.Command, opts *RootOptions, collection string) error {
	s, err := openSession(opts, cmd, collection, true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsURL, err := realtimeURL(s.cfg.Server.URL, collection)
	if err != nil {
		return WrapExitError(ExitCommandError, "server url", err)
	}
	t, err := realtime.DialWebSocket(ctx, wsURL, nil, realtime.WithTransportLogger(s.logger))
	if err != nil {
		return s.out.Fail(ExitFailure, CodeRealtime, "connect realtime", err)
	}
	defer t.Close()

	if err := s.manager.ConnectRealtime(t); err != nil {
		return s.out.Fail(ExitFailure, CodeRealtime, "connect realtime", err)
	}

	changed := make(chan struct{}, 1)
	unsubscribe := s.manager.Subscribe(func(cache.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if err := s.refetch(ctx); err != nil {
		return err
	}
	// The initial load is printed below; drop its notification.
	select {
	case <-changed:
	default:
	}
	if err := s.print(collection); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Done():
			return s.out.Fail(ExitFailure, CodeRealtime, "realtime", fmt.Errorf("connection closed"))
		case <-changed:
			if err := s.print(collection); err != nil {
				return err
			}
		}
	}
}

func (s *session) print(collection string) error {
	recs := s.manager.List()
	if s.out.Format != "json" {
		fmt.Fprintf(s.out.Writer, "-- %s (%d records)\n", collection, len(recs))
	}
	return s.out.Records(recs)
}

// realtimeURL maps the server base URL to its websocket endpoint.
func realtimeURL(base, collection string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/v1/realtime"
	u.RawQuery = url.Values{"collection": {collection}}.Encode()
	return u.String(), nil
}
