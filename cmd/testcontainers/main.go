package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/formentries/internal/config"
	"github.com/localnerve/formentries/internal/logging"
	"github.com/localnerve/formentries/internal/testutil"
	"github.com/rs/zerolog/log"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	flag.Parse()

	usage := `
Run the formentries database container with the environment variables from the .env file.

Usage:

testcontainers [-h] [-f ENV_FILE_PATH]

ENV_FILE_PATH: path to the .env file, it must set DB_IMAGE, DB_TYPE,
DB_DATABASE, DB_APP_USER and DB_APP_PASSWORD

example
  testcontainers -f /path/to/something/.env
`
	// if -h flag print usage and return
	if showHelp {
		fmt.Println(usage)
		return
	}
	logging.Setup("info", "console")

	if envFilename != "" {
		log.Info().Str("file", envFilename).Msg("loading environment variables")
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatal().Err(err).Msg("failed to load environment variables")
		}
	} else {
		log.Info().Msg("no environment file specified, using current environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx := context.Background()
	dbc, err := testutil.StartDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create test container")
	}
	log.Info().
		Str("type", cfg.DBType).
		Str("host", dbc.Host).
		Str("port", dbc.Port.Port()).
		Msg("database container running, set DB_HOST and DB_PORT to these values")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigs
	log.Info().Str("signal", sig.String()).Msg("terminating test container")
	if err := dbc.Terminate(ctx); err != nil {
		log.Error().Err(err).Msg("failed to terminate test container")
	}
}
