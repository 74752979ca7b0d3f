package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/driftline/driftline-internal/internal/common/logtrace"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/internal/driftsrv/repair"
	"github.com/driftline/driftline-internal/internal/driftsrv/server"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/rs/zerolog/log"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile *string
}

func main() {
	slog := log.With().Str("state", "init").Logger()
	opt := parseFlags()

	slog.Info().Str("config_file", *opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(*opt.configFile); err != nil {
		slog.Error().Str("config_file", *opt.configFile).Err(err).Msg("unable to load config file")
		os.Exit(1)
	}
	if config.Config().ServerPort == "" {
		slog.Error().Msg("server port not defined")
		os.Exit(1)
	}

	ctx := context.Background()
	if err := db.Init(ctx); err != nil {
		slog.Error().Err(err).Msg("unable to initialize metadata store")
		os.Exit(1)
	}

	if config.Config().SingleUserMode {
		slog.Info().Msg("single user mode enabled")
		if err := createDefaultTenant(ctx); err != nil {
			slog.Error().Err(err).Msg("unable to create default tenant")
			os.Exit(1)
		}
	}

	repair.StartSupervisor(ctx)

	s, err := server.CreateNewServer()
	if err != nil {
		slog.Error().Err(err).Msg("unable to create server")
		os.Exit(1)
	}
	s.MountHandlers()

	slog.Info().Str("port", config.Config().ServerPort).Msg("starting drift server")
	if err := http.ListenAndServe(":"+config.Config().ServerPort, s.Router); err != nil {
		slog.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func createDefaultTenant(ctx context.Context) error {
	ctx, err := db.ConnCtx(ctx)
	if err != nil {
		return err
	}
	defer db.DB(ctx).Close(ctx)
	tenantID := types.TenantId(config.Config().DefaultTenantID)
	if err := db.DB(ctx).CreateTenant(ctx, tenantID); err != nil {
		if !errors.Is(err, dberror.ErrAlreadyExists) {
			return err
		}
	}
	return nil
}

func parseFlags() cmdoptions {
	var opt cmdoptions
	opt.configFile = flag.String("config", driftcommon.DefaultConfigFile, "Path to the config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
