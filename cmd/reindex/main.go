package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/app"
	"github.com/darioristic/crmflow/internal/service/indexer"
)

const defaultTimeout = 10 * time.Minute

// reindex перестраивает поисковые индексы из хранилища. Используется
// после потери событий индексации или смены схемы индекса.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var indexes string
	flag.StringVar(&indexes, "indexes", "", "comma-separated index uids (default: all)")
	flag.Parse()

	cfg := app.LoadConfig()
	if cfg.PostgresDSN == "" {
		fail("CRM_POSTGRES_DSN is required: there is nothing to reindex from memory")
	}
	if cfg.MeiliHost == "" {
		fail("CRM_MEILI_HOST is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	deps, err := app.NewDependencies(ctx, cfg, log.WithField("component", "reindex"))
	if err != nil {
		fail("build dependencies: %v", err)
	}
	defer deps.Close()

	wanted := map[string]bool{}
	for _, uid := range strings.Split(indexes, ",") {
		if uid = strings.TrimSpace(uid); uid != "" {
			wanted[uid] = true
		}
	}

	var done []string
	for _, ix := range deps.Indexers {
		uid := indexUID(ix)
		if len(wanted) > 0 && !wanted[uid] {
			continue
		}
		if err := ix.EnsureIndex(ctx); err != nil {
			fail("ensure index %s: %v", uid, err)
		}
		if err := ix.ReindexAll(ctx); err != nil {
			fail("reindex %s: %v", uid, err)
		}
		done = append(done, uid)
	}

	if len(done) == 0 {
		fail("no indexes matched %q (known: %s)", indexes, strings.Join(knownIndexes(), ", "))
	}
	fmt.Printf("reindex ok: %s\n", strings.Join(done, ", "))
}

func indexUID(ix *indexer.Indexer) string {
	return ix.IndexUID()
}

func knownIndexes() []string {
	return []string{indexer.IndexOffers, indexer.IndexOrders, indexer.IndexDeliveries, indexer.IndexInvoices}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
