package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/d60-Lab/postsync/config"
	"github.com/d60-Lab/postsync/internal/remote"
	"github.com/d60-Lab/postsync/internal/store"
	"github.com/d60-Lab/postsync/internal/syncclient"
	"github.com/d60-Lab/postsync/pkg/logger"
	"github.com/d60-Lab/postsync/pkg/tracing"
)

// session is one command invocation: configuration, a synced store and an
// output formatter. The store has been refreshed once when openSession returns.
type session struct {
	cfg      *config.Config
	client   *syncclient.Client
	out      *OutputFormatter
	shutdown tracing.ShutdownFunc
}

func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	ctx := cmd.Context()
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		_ = out.Error(CodeConfig, err.Error())
		return nil, reportedError(ExitCommandError, err)
	}
	loc, err := loadLocation(cfg.Client.TimeZone)
	if err != nil {
		_ = out.Error(CodeConfig, err.Error())
		return nil, reportedError(ExitCommandError, err)
	}
	out.Location = loc

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	if err := logger.Init(level, cfg.Log.Format); err != nil {
		_ = out.Error(CodeConfig, err.Error())
		return nil, reportedError(ExitCommandError, err)
	}

	shutdown, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		_ = out.Error(CodeConfig, err.Error())
		return nil, reportedError(ExitCommandError, err)
	}

	client, err := newSyncClient(cfg)
	if err != nil {
		_ = shutdown(ctx)
		_ = out.Error(CodeConfig, err.Error())
		return nil, reportedError(ExitCommandError, err)
	}

	s := &session{cfg: cfg, client: client, out: out, shutdown: shutdown}
	out.VerboseLog("refreshing from %s", cfg.Client.BaseURL)
	if err := client.Refresh(ctx); err != nil {
		s.close()
		_ = out.SyncError(err)
		return nil, reportedError(ExitFailure, err)
	}
	out.VerboseLog("loaded %d post(s)", client.Store().Len())
	return s, nil
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.LoadFrom(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Endpoint != "" {
		cfg.Client.BaseURL = opts.Endpoint
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid client.time_zone: %w", err)
	}
	return loc, nil
}

func newSyncClient(cfg *config.Config) (*syncclient.Client, error) {
	policy, err := syncclient.ParseDeletePolicy(cfg.Client.DeletePolicy)
	if err != nil {
		return nil, err
	}
	ordering, err := syncclient.ParseOrdering(cfg.Client.Ordering)
	if err != nil {
		return nil, err
	}
	rc := remote.NewClient(cfg.Client.BaseURL, remote.WithTimeout(cfg.Client.Timeout))
	return syncclient.New(rc, store.New(),
		syncclient.WithDeletePolicy(policy),
		syncclient.WithOrdering(ordering),
	), nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.shutdown(ctx)
	_ = logger.Sync()
}

// resolveID maps an id typed by the user to the id of a local post, falling
// back to a parsed id for posts the store does not hold.
func (s *session) resolveID(text string) store.ID {
	if id, ok := s.client.Store().Lookup(text); ok {
		return id
	}
	return store.ParseID(text)
}

// render prints the current collection.
func (s *session) render() error {
	return s.out.Posts(s.client.Store().List())
}

// fail prints a sync failure and returns the matching exit error.
func (s *session) fail(err error) error {
	_ = s.out.SyncError(err)
	return reportedError(ExitFailure, err)
}
