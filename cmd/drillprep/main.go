package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/logging"
)

type CLI struct {
	LogLevel string `help:"Log level." default:"info" enum:"debug,info,warn,error" env:"DRILLPREP_LOG_LEVEL"`
	LogFile  string `help:"Also write JSON logs to this file, rotated." type:"path" env:"DRILLPREP_LOG_FILE"`
	LogJSON  bool   `help:"Write JSON logs to stderr." env:"DRILLPREP_LOG_JSON"`

	Serve    ServeCmd    `cmd:"" help:"Run the wizard API server."`
	Map      MapCmd      `cmd:"" help:"Show how a log's columns map to standard channels."`
	Decimate DecimateCmd `cmd:"" help:"Map and decimate a log file to a depth interval."`
	Fetch    FetchCmd    `cmd:"" help:"List, download or store logs from a rig FTP drop."`
	Catalog  CatalogCmd  `cmd:"" help:"Inspect the channel catalog."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("drillprep"),
		kong.Description("Prepare drilling sensor logs: map channels, normalise timestamps, decimate by depth."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	logger, err := logging.Init(logging.Config{
		Level: cli.LogLevel,
		File:  cli.LogFile,
		JSON:  cli.LogJSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "drillprep: logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := ctx.Run(); err != nil {
		zap.S().Errorf("%s: %v", ctx.Command(), err)
		logger.Sync()
		os.Exit(1)
	}
}
