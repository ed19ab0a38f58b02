package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pco-network/pco/internal/config"
	service_interface "github.com/pco-network/pco/internal/interface"
	restservice "github.com/pco-network/pco/internal/interface/rest"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// flags
var (
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "the url of the daemon to connect to",
		Value: fmt.Sprintf("http://localhost:%d", config.DefaultPort),
	}
	callerFlag = &cli.StringFlag{
		Name:    "caller",
		Usage:   "the identity on whose behalf commands are sent",
		EnvVars: []string{"PCO_CALLER"},
	}
)

func mainAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	svcConfig := restservice.Config{
		Port:                  cfg.Port,
		OtelCollectorEndpoint: cfg.OtelCollectorEndpoint,
	}

	svc, err := service_interface.NewService(svcConfig, cfg)
	if err != nil {
		return err
	}

	log.Infof("pcod config: %s", cfg)

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)

	return nil
}

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
	app.Name = "pcod"
	app.Usage = "run or manage the partial common ownership daemon"
	app.UsageText = "Run the daemon with no subcommand, or use the subcommands to interact with a running one"
	app.Commands = append(
		app.Commands,
		infoCmd,
		assetCmd,
		remittanceCmd,
	)
	app.Action = mainAction
	app.Flags = append(app.Flags, urlFlag, callerFlag)

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
