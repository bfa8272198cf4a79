package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/syncache/internal/config"
	"github.com/roach88/syncache/internal/engine"
	"github.com/roach88/syncache/internal/record"
	"github.com/roach88/syncache/internal/remote"
)

// session is one manager bound to a collection on the configured server.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *engine.Client
	manager *engine.Manager
	out     *OutputFormatter
}

// openSession builds a client and a manager for collection. realtime enables
// the manager's ingestor.
func openSession(opts *RootOptions, cmd *cobra.Command, collection string, realtime bool) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := opts.logger(cmd, cfg)

	cc := cfg.Cache(collection)
	cc.Name = collection
	cc.Realtime = cc.Realtime || realtime
	ecfg, mopts, err := cc.EngineConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cache config", err)
	}
	mopts = append(mopts, engine.WithoutDeferredRefetch())

	client := engine.NewClient(engine.WithLogger(logger))
	src := remote.NewHTTPSource(cfg.Server.URL, collection, client.Origin())
	m, err := client.NewManager(ecfg, src, mopts...)
	if err != nil {
		client.Close()
		return nil, WrapExitError(ExitCommandError, "create manager", err)
	}
	logger.Debug("session opened", "collection", collection, "server", cfg.Server.URL, "origin", client.Origin())

	return &session{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		manager: m,
		out:     opts.formatter(cmd),
	}, nil
}

func (s *session) Close() {
	s.client.Close()
}

// refetch loads the collection and reports failures as exit code 1.
func (s *session) refetch(ctx context.Context) error {
	if err := s.manager.Refetch(ctx); err != nil {
		return s.out.Fail(ExitFailure, CodeFetch, "fetch failed", err)
	}
	return nil
}

// mutationFailed reports a rolled-back mutation.
func (s *session) mutationFailed(err error) error {
	var merr *engine.MutationError
	if errors.As(err, &merr) {
		return s.out.Fail(ExitFailure, CodeMutation, fmt.Sprintf("%s rejected", merr.Kind), merr.Err)
	}
	return s.out.Fail(ExitFailure, CodeMutation, "mutation failed", err)
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection>",
		Short: "Print every record in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, args[0], false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.refetch(cmd.Context()); err != nil {
				return err
			}
			return s.out.Records(s.manager.List())
		},
	}
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <collection> <field=value>...",
		Short: "Create a record",
		Long: `Create a record through the optimistic pipeline.

Values are parsed as JSON when they can be (numbers, true, false, null,
quoted strings, arrays, objects) and taken as plain strings otherwise.

Examples:
  syncache create todos title="buy milk" done=false
  syncache create todos title=x tags='["a","b"]'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseAssignments(args[1:])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			s, err := openSession(rootOpts, cmd, args[0], false)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.manager.Create(cmd.Context(), input)
			if err != nil {
				return s.mutationFailed(err)
			}
			return s.out.Records([]record.Record{rec})
		},
	}
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <collection> <id> <field=value>...",
		Short: "Update fields of a record",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := parseAssignments(args[2:])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			s, err := openSession(rootOpts, cmd, args[0], false)
			if err != nil {
				return err
			}
			defer s.Close()

			// Load first so the update speculates against the cached record.
			if err := s.refetch(cmd.Context()); err != nil {
				return err
			}
			rec, err := s.manager.Update(cmd.Context(), args[1], partial)
			if err != nil {
				return s.mutationFailed(err)
			}
			return s.out.Records([]record.Record{rec})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, args[0], false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.refetch(cmd.Context()); err != nil {
				return err
			}
			if err := s.manager.Remove(cmd.Context(), args[1]); err != nil {
				return s.mutationFailed(err)
			}
			return s.out.Success(fmt.Sprintf("deleted %s/%s", args[0], args[1]))
		},
	}
}

// parseAssignments turns field=value arguments into a record.
func parseAssignments(args []string) (record.Record, error) {
	out := make(record.Record, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%q: expected field=value", arg)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%q: empty field name", arg)
		}
		if key == record.IDField {
			return nil, fmt.Errorf("%q: the id is assigned by the server", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}
