package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/mailvault/internal/archive"
	"github.com/nhle/mailvault/internal/credential"
	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/source"
	"github.com/nhle/mailvault/internal/source/email"
	"github.com/nhle/mailvault/internal/source/gmail"
	"github.com/nhle/mailvault/internal/store"
	"github.com/nhle/mailvault/internal/sync"
)

// runtime is the fully wired service built from configuration.
type runtime struct {
	slot    string
	logger  *slog.Logger
	backend store.Backend
	cursors store.CursorStore
	runs    store.RunLog
	source  source.ChangeSource
	engine  *sync.Engine
	poller  *sync.Poller
}

// mailSource is what both provider adapters implement.
type mailSource interface {
	source.ChangeSource
	source.ContentFetcher
	source.Acknowledger
}

// openBackend opens the configured store and returns the backend with the
// cursor slot for the configured mailbox.
func openBackend(opts *RootOptions) (store.Backend, store.CursorStore, error) {
	backend, err := store.Open(opts.Config.Store.DSN, opts.Logger)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return backend, backend.Cursor(opts.Config.Source.Mailbox), nil
}

// buildRuntime wires store, source, archive pipeline, engine and poller.
func buildRuntime(ctx context.Context, opts *RootOptions) (*runtime, error) {
	cfg := opts.Config
	logger := opts.Logger

	backend, cursors, err := openBackend(opts)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		slot:    cfg.Source.Mailbox,
		logger:  logger,
		backend: backend,
		cursors: cursors,
	}

	if err := rt.wire(ctx, opts); err != nil {
		_ = backend.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build sync engine", err)
	}
	return rt, nil
}

func (rt *runtime) wire(ctx context.Context, opts *RootOptions) error {
	cfg := opts.Config

	tokens, err := buildTokenProvider(ctx, cfg.Credential, opts.LookupSecret)
	if err != nil {
		return err
	}

	src, err := buildSource(cfg, tokens, opts.LookupSecret)
	if err != nil {
		return err
	}
	rt.source = src

	docs, err := buildDocumentStore(cfg.Archive, tokens)
	if err != nil {
		return err
	}

	var ack source.Acknowledger
	if cfg.Source.MarkRead {
		ack = src
	}
	var archiver archive.Archiver = archive.NewPipeline(src, docs, ack, rt.logger)

	ledger, hasLedger := rt.backend.(store.Ledger)
	if cfg.Archive.Dedupe {
		if hasLedger {
			archiver = archive.NewDedupe(archiver, ledger, rt.slot, rt.logger)
		} else {
			rt.logger.Warn("archive dedupe requested but the store has no ledger", "dsn", cfg.Store.DSN)
		}
	}

	var recorder sync.RunRecorder
	if runs, ok := rt.backend.(store.RunLog); ok {
		rt.runs = runs
		recorder = runs
	}

	rt.engine, err = sync.New(sync.Deps{
		Cursors:  rt.cursors,
		Source:   src,
		Archiver: archiver,
		Runs:     recorder,
		Logger:   rt.logger,
	}, sync.Options{
		Slot:     rt.slot,
		Lookback: cfg.Sync.Lookback,
		Policy:   cfg.Sync.Policy,
	})
	if err != nil {
		return err
	}

	interval := time.Duration(cfg.Sync.PollIntervalSec) * time.Second
	rt.poller = sync.NewPoller(interval, cfg.Sync.Timeout, rt.logger)
	rt.poller.Register(rt.engine, src)
	return nil
}

func (rt *runtime) Close() error {
	return rt.backend.Close()
}

func buildTokenProvider(
	ctx context.Context,
	cfg model.CredentialConfig,
	lookup func(string) (string, error),
) (credential.Provider, error) {
	switch cfg.Type {
	case "", "static":
		return credential.NewLookupProvider(cfg.Key, lookup), nil
	case "oauth":
		// The token source keeps ctx for refreshes, so it must outlive
		// the command's setup phase.
		provider, err := credential.NewOAuthProviderFromKeyring(
			context.WithoutCancel(ctx), lookup, cfg.Key, cfg.ClientID, cfg.TokenURL)
		if err != nil {
			return nil, fmt.Errorf("building oauth provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown credential.type %q", cfg.Type)
	}
}

func buildSource(
	cfg *model.AppConfig,
	tokens credential.Provider,
	lookup func(string) (string, error),
) (mailSource, error) {
	sc := cfg.Source
	switch model.SourceType(sc.Type) {
	case model.SourceTypeGmail:
		return gmail.NewSource(gmail.NewClient(sc.BaseURL, tokens), sc.Mailbox, sc.Label), nil
	case model.SourceTypeIMAP:
		password, err := lookup(cfg.Credential.Key)
		if err != nil {
			return nil, fmt.Errorf("reading imap password: %w", err)
		}
		return email.NewAdapter(sc.Host, sc.Port, sc.Mailbox, password, sc.TLS, sc.Folder), nil
	default:
		return nil, fmt.Errorf("unknown source.type %q", sc.Type)
	}
}

func buildDocumentStore(cfg model.ArchiveConfig, tokens credential.Provider) (archive.DocumentStore, error) {
	switch cfg.Type {
	case "folder":
		folder, err := archive.NewFolderStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return folder, nil
	case "drive":
		if cfg.FolderID == "" {
			return nil, errors.New("archive.folder_id is required for drive")
		}
		return archive.NewDriveStore(cfg.BaseURL, cfg.FolderID, tokens), nil
	default:
		return nil, fmt.Errorf("unknown archive.type %q", cfg.Type)
	}
}
