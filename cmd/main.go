package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	cmd_commons "github.com/BeamlakAschalew/flixquest-betterplayer/cmd/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/service"
	log "github.com/sirupsen/logrus"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "betterplayer [command]",
	Short:         "Run BetterPlayer media service",
	Long:          "Run BetterPlayer media service that caches, pre-caches and plays media for its controllers.",
	RunE:          processRootCommand,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the service in foreground",
	RunE:  processServeCommand,
}

func Execute() error {
	return rootCmd.Execute()
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000000",
		FullTimestamp:   true,
	})

	log.SetLevel(log.InfoLevel)

	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "main",
	})

	// attach common flags
	cmd_commons.SetCommonFlags(rootCmd)

	cmd_commons.SetServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)

	addClientCommands(rootCmd)

	err := Execute()
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func processRootCommand(command *cobra.Command, args []string) error {
	cont, err := cmd_commons.ProcessCommonFlags(command)
	if err != nil || !cont {
		return err
	}

	return command.Usage()
}

func processServeCommand(command *cobra.Command, args []string) error {
	cont, err := cmd_commons.ProcessCommonFlags(command)
	if err != nil || !cont {
		return err
	}

	config, logWriter, err := cmd_commons.ProcessServeFlags(command)
	if logWriter != nil {
		defer logWriter.Close()
	}

	if err != nil {
		return err
	}

	return run(config)
}

// run runs the service until interrupted
func run(config *commons.Config) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "run",
	})

	versionInfo := commons.GetVersion()
	logger.Infof("BetterPlayer media service version - %s, commit - %s", versionInfo.ServiceVersion, versionInfo.GitCommit)

	// make work dirs required
	err := config.MakeWorkDirs()
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return err
	}

	// profile
	if config.Profile && config.ProfileServicePort > 0 {
		go func() {
			profileServiceAddr := fmt.Sprintf(":%d", config.ProfileServicePort)

			logger.Infof("Starting profile service at %s", profileServiceAddr)
			http.ListenAndServe(profileServiceAddr, nil)
		}()

		prof := profile.Start(profile.MemProfile)
		defer prof.Stop()
	}

	var prometheusExporterServer *http.Server
	if config.PrometheusExporterPort > 0 {
		prometheusExporterAddr := fmt.Sprintf(":%d", config.PrometheusExporterPort)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		prometheusExporterServer = &http.Server{Addr: prometheusExporterAddr, Handler: mux}

		go func() {
			logger.Infof("Starting prometheus exporter at %s", prometheusExporterAddr)
			prometheusExporterServer.ListenAndServe()
		}()
	}

	// no media engine is linked into the daemon binary, sessions are served by embedders
	svc, err := service.NewPlayerService(config, nil)
	if err != nil {
		logger.WithError(err).Error("failed to create the service")
		return err
	}

	serviceErrChan := make(chan error, 1)
	go func() {
		serviceErrChan <- svc.Start()
	}()

	defer func() {
		if prometheusExporterServer != nil {
			prometheusExporterServer.Shutdown(context.TODO())
		}

		svc.Destroy()
	}()

	// wait
	select {
	case err := <-serviceErrChan:
		if err != nil {
			logger.WithError(err).Error("failed to start the service")
			return err
		}
	case <-waitForSignal():
		logger.Info("Interrupted, stopping the service")
	}

	return nil
}

func waitForSignal() <-chan bool {
	endWaiter := make(chan bool)

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChannel
		close(endWaiter)
	}()

	return endWaiter
}
