// Command yaskkserv2 runs the SKK dictionary network server: it opens a
// sealed container built by yaskkserv2-make-dictionary, builds the
// in-memory index, optionally wires a remote suggestion client and its
// persistent cache, and serves protocol requests until interrupted.
//
// CLI wiring follows the teacher's main.go: urfave/cli/v2 app with a
// context cancelled on SIGTERM/SIGINT, klog.Fatal on startup failure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/wachikun/yaskkserv2/internal/codec"
	"github.com/wachikun/yaskkserv2/internal/container"
	"github.com/wachikun/yaskkserv2/internal/dictindex"
	"github.com/wachikun/yaskkserv2/internal/lookup"
	"github.com/wachikun/yaskkserv2/internal/server"
	"github.com/wachikun/yaskkserv2/internal/suggest"
	"github.com/wachikun/yaskkserv2/internal/suggestcache"
)

const pkgVersion = "yaskkserv2-go 2.0.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "yaskkserv2",
		Version:     pkgVersion,
		Description: "SKK dictionary network server",
		ArgsUsage:   "<dictionary-file>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Value: 1178, Usage: "TCP port"},
			&cli.IntFlag{Name: "max-connections", Value: 16, Usage: "slot table size"},
			&cli.StringFlag{Name: "listen-address", Value: "0.0.0.0", Usage: "bind address"},
			&cli.StringFlag{Name: "hostname-and-ip-address-for-protocol-3", Value: "", Usage: "exact bytes returned for a '3' request"},
			&cli.IntFlag{Name: "google-timeout-milliseconds", Value: 1000, Usage: "remote suggestion timeout"},
			&cli.StringFlag{Name: "google-cache-filename", Value: "/tmp/yaskkserv2.google_cache", Usage: "persistent suggestion cache path"},
			&cli.IntFlag{Name: "google-cache-entries", Value: 1024, Usage: "cache capacity"},
			&cli.Int64Flag{Name: "google-cache-expire-seconds", Value: 30 * 24 * 60 * 60, Usage: "cache TTL"},
			&cli.IntFlag{Name: "google-max-candidates-length", Value: 25, Usage: "per-request suggestion cap"},
			&cli.IntFlag{Name: "max-server-completions", Value: 64, Usage: "per-request completion cap"},
			&cli.StringFlag{Name: "google-japanese-input", Value: "disable", Usage: "{notfound, disable, last, first}"},
			&cli.BoolFlag{Name: "google-suggest", Usage: "enable the suggest remote source instead of japanese_input"},
			&cli.BoolFlag{Name: "google-use-http", Usage: "switch remote scheme from https to http"},
			&cli.BoolFlag{Name: "no-daemonize", Value: true, Usage: "run in the foreground (the only supported mode)"},
		},
		Action: runServer,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	dictionaryPath := c.Args().Get(0)
	if dictionaryPath == "" {
		return cli.Exit("must provide a dictionary file", 1)
	}

	db, err := container.OpenFile(dictionaryPath)
	if err != nil {
		klog.Fatalf("yaskkserv2: open dictionary: %v", err)
	}
	defer db.Close()

	index, err := dictindex.Build(db)
	if err != nil {
		klog.Fatalf("yaskkserv2: build index: %v", err)
	}

	table, err := db.EncodingTable()
	if err != nil {
		klog.Fatalf("yaskkserv2: read encoding table: %v", err)
	}
	parsedTable, err := codec.ParseTable(table)
	if err != nil {
		klog.Fatalf("yaskkserv2: parse encoding table: %v", err)
	}
	cd := codec.New(parsedTable)

	timing, remoteClient := buildRemote(c)

	var cache *suggestcache.Cache
	if path := c.String("google-cache-filename"); remoteClient != nil && path != "" {
		cache, err = suggestcache.Load(path, c.Int("google-cache-entries"), c.Int64("google-cache-expire-seconds"))
		if err != nil {
			klog.Warningf("yaskkserv2: suggestion cache unusable, starting empty: %v", err)
			cache = suggestcache.New(c.Int("google-cache-entries"), c.Int64("google-cache-expire-seconds"))
		}
	}

	var engineCache lookup.Cache
	if cache != nil {
		engineCache = cachingAdapter{cache: cache, path: c.String("google-cache-filename")}
	}

	engine := lookup.NewEngine(db, index, cd, remoteClient, engineCache, timing, c.Int("max-server-completions"))
	defer engine.Close()

	hostnameAndIP := c.String("hostname-and-ip-address-for-protocol-3")
	if hostnameAndIP == "" {
		hostnameAndIP = defaultHostnameAndIP()
	}

	srv, err := server.New(server.Config{
		ListenAddress:  c.String("listen-address"),
		Port:           c.Int("port"),
		MaxConnections: c.Int("max-connections"),
		Version:        pkgVersion,
		HostnameAndIP:  hostnameAndIP,
	}, engine)
	if err != nil {
		klog.Fatalf("yaskkserv2: listen: %v", err)
	}

	klog.Infof("yaskkserv2: version %s port=%d", pkgVersion, c.Int("port"))
	if err := srv.Run(c.Context); err != nil && c.Context.Err() == nil {
		return err
	}
	return nil
}

func buildRemote(c *cli.Context) (lookup.GoogleTiming, lookup.RemoteClient) {
	var timing lookup.GoogleTiming
	switch c.String("google-japanese-input") {
	case "first":
		timing = lookup.GoogleTimingFirst
	case "last":
		timing = lookup.GoogleTimingLast
	case "notfound":
		timing = lookup.GoogleTimingNotFound
	default:
		timing = lookup.GoogleTimingDisabled
	}
	if timing == lookup.GoogleTimingDisabled && !c.Bool("google-suggest") {
		return lookup.GoogleTimingDisabled, nil
	}

	mode := suggest.ModeJapaneseInput
	if c.Bool("google-suggest") {
		mode = suggest.ModeSuggest
		if timing == lookup.GoogleTimingDisabled {
			timing = lookup.GoogleTimingNotFound
		}
	}

	client := suggest.New(suggest.Config{
		Mode:                mode,
		UseHTTP:             c.Bool("google-use-http"),
		TimeoutMilliseconds: c.Int("google-timeout-milliseconds"),
		MaxCandidatesLength: c.Int("google-max-candidates-length"),
	})
	return timing, client
}

func defaultHostnameAndIP() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// cachingAdapter implements lookup.Cache by passing every Put through to
// suggestcache.Cache.Put, which rewrites the backing file unless the
// stored candidates for that midashi are unchanged.
type cachingAdapter struct {
	cache *suggestcache.Cache
	path  string
}

func (a cachingAdapter) Get(midashi []byte) ([][]byte, bool) { return a.cache.Get(midashi) }

func (a cachingAdapter) Put(midashi []byte, candidates [][]byte) {
	if err := a.cache.Put(a.path, midashi, candidates); err != nil {
		klog.V(2).Infof("yaskkserv2: suggestion cache write failed: %v", err)
	}
}
