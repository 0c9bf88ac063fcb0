// Command fhoundd runs the file-search daemon: the scan cache, the job
// registry and the HTTP API, wired together from the loaded configuration.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	internal "github.com/filehound/filehound/fhound"
	"github.com/filehound/filehound/fhound/cache"
	"github.com/filehound/filehound/fhound/config"
	"github.com/filehound/filehound/fhound/content"
	"github.com/filehound/filehound/fhound/extract"
	"github.com/filehound/filehound/fhound/history"
	"github.com/filehound/filehound/fhound/search"
	"github.com/filehound/filehound/fhound/search/jobs"
	"github.com/filehound/filehound/fhound/server"

	"github.com/ZanzyTHEbar/assert-lib"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	listenAddr := flag.String("listen", "", "listen address, overrides config")
	flag.Parse()

	log := internal.GetLogger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	fh := cfg.Filehound

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.Open(fh.Cache.Path, time.Duration(fh.Cache.TTLMinutes)*time.Minute)
	if err != nil {
		log.Fatal().Err(err).Str("path", fh.Cache.Path).Msg("Failed to open scan cache")
	}
	defer store.Close()

	var scannerCache search.CacheStore = store
	if fh.Cache.WatchRoots {
		watcher, err := cache.NewWatcher(store)
		if err != nil {
			log.Warn().Err(err).Msg("Filesystem watching unavailable, relying on TTL invalidation")
		} else {
			watcher.Start(ctx)
			defer watcher.Close()
			scannerCache = &cache.TrackedStore{Store: store, Watcher: watcher}
		}
	}

	scanner := search.NewScanner(
		search.WithWorkers(fh.Search.Workers),
		search.WithCache(scannerCache),
	)

	textCache := extract.NewCache(fh.Content.TextCacheDir, fh.Content.MaxTextBytes)
	extractor := extract.NewService(
		extract.WithMaxTextBytes(fh.Content.MaxTextBytes),
		extract.WithTextCache(textCache),
	)
	engine := content.NewEngine(extractor, content.WithWorkers(fh.Content.Workers))

	registry := jobs.NewRegistry(
		time.Duration(fh.Jobs.RetentionMinutes)*time.Minute,
		assert.NewAssertHandler(),
	)
	registry.StartJanitor(ctx, time.Duration(fh.Jobs.SweepSeconds)*time.Second)

	var opts []server.Option
	if fh.History.Enabled {
		hist, err := history.Open(fh.History.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", fh.History.Path).Msg("Search history unavailable")
		} else {
			defer hist.Close()
			opts = append(opts, server.WithHistory(hist))
		}
	}

	addr := fh.Server.Listen
	if *listenAddr != "" {
		addr = *listenAddr
	}

	srv := server.New(scanner, engine, registry, log, opts...)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Fatal().Err(err).Msg("API server failed")
	}
	log.Info().Msg("Shutdown complete")
}
