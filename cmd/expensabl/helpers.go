package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/xtendabl/expensabl/internal/common"
	"github.com/xtendabl/expensabl/internal/config"
	"github.com/xtendabl/expensabl/internal/engine"
	"github.com/xtendabl/expensabl/internal/model"
	"github.com/xtendabl/expensabl/internal/service"
	"github.com/xtendabl/expensabl/internal/storage"
)

// openRepository wires the persistent provider, transaction manager, read
// cache, and repository together. The returned cleanup closes the store.
func openRepository(ctx context.Context) (*storage.TemplateRepository, func(), error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	dbPath = config.ExpandPath(dbPath)

	provider, err := storage.NewSQLiteProvider(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open template store: %w", err)
	}

	// Migration can lose a race with another process holding the write
	// lock; a short retry covers it.
	err = common.WithRetry(ctx, func() error {
		return provider.Migrate(ctx)
	}, service.RetryOptions{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond})
	if err != nil {
		_ = provider.Close()
		return nil, nil, fmt.Errorf("failed to migrate template store: %w", err)
	}

	cache := storage.NewCache()
	txm := storage.NewManager(provider, cache)
	repo := storage.NewTemplateRepository(provider, txm, cache)

	return repo, func() { _ = provider.Close() }, nil
}

// openManager builds the orchestration layer over the repository.
func openManager(ctx context.Context) (*engine.TemplateManager, *storage.TemplateRepository, func(), error) {
	repo, cleanup, err := openRepository(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	scheduler := engine.NewQueueScheduler(repo, dryRunExecutor{})
	mgr := engine.NewTemplateManager(repo, scheduler)
	return mgr, repo, cleanup, nil
}

// dryRunExecutor stands in for the vendor expense client, which lives in
// the browser extension. It records a synthetic expense id so scheduling
// can be exercised end to end from the CLI.
type dryRunExecutor struct{}

func (dryRunExecutor) Execute(_ context.Context, t *model.Template) (string, error) {
	return fmt.Sprintf("dry-run-%s-%d", t.ID, time.Now().Unix()), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
