package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/driftline/driftline-internal/internal/common/logtrace"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/internal/driftsrv/materialize"
	"github.com/driftline/driftline-internal/internal/driftsrv/stream"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/rs/zerolog/log"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile *string
	tenant     *string
	connectors *string
	name       *string
}

// The materializer worker consumes one tenant's connector streams and
// upserts delivered batches into the destination store.
func main() {
	slog := log.With().Str("state", "init").Logger()
	opt := parseFlags()

	slog.Info().Str("config_file", *opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(*opt.configFile); err != nil {
		slog.Error().Str("config_file", *opt.configFile).Err(err).Msg("unable to load config file")
		os.Exit(1)
	}

	tenantID := types.TenantId(*opt.tenant)
	if tenantID == "" {
		tenantID = types.TenantId(config.Config().DefaultTenantID)
	}
	if *opt.connectors == "" {
		slog.Error().Msg("no connectors given")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Init(ctx); err != nil {
		slog.Error().Err(err).Msg("unable to initialize metadata store")
		os.Exit(1)
	}

	rdb, err := stream.NewClient(ctx)
	if err != nil {
		slog.Error().Err(err).Msg("unable to connect to transport store")
		os.Exit(1)
	}
	defer rdb.Close()

	idemp := stream.NewIdempotencyStore(rdb)
	store := materialize.NewStore()

	var wg sync.WaitGroup
	for _, connector := range splitConnectors(*opt.connectors) {
		consumer := stream.NewConsumer(rdb, idemp, store, *opt.name+":"+connector)
		wg.Add(1)
		go func(connector string) {
			defer wg.Done()
			if err := consumer.Run(ctx, tenantID, connector); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("connector", connector).Msg("consumer stopped")
			}
		}(connector)
	}

	wg.Wait()
	slog.Info().Msg("materializer shut down")
}

func splitConnectors(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func parseFlags() cmdoptions {
	var opt cmdoptions
	opt.configFile = flag.String("config", driftcommon.DefaultConfigFile, "Path to the config file")
	opt.tenant = flag.String("tenant", "", "Tenant to consume for (defaults to the configured default tenant)")
	opt.connectors = flag.String("connectors", "", "Comma-separated connectors to consume")
	opt.name = flag.String("name", "materializer-1", "Consumer name within the group")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
