// Package main runs the development backend used by the POS client.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-pos-client/devserver"
	"github.com/jrsteele09/go-pos-client/internal/config"
	"github.com/jrsteele09/go-pos-client/internal/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running devserver, restarting")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Devserver stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load(config.WithConfigFile(os.Getenv("POS_CONFIG")))
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg, os.Stderr)
	displayAppname(cfg.GetAppName() + " dev")

	handler, err := devserver.New(cfg, devserver.WithLogger(logger))
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              ":" + cfg.GetDevServerPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	failed := make(chan error, 1)
	go func() { failed <- listenAndServe(server) }()

	select {
	case err := <-failed:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Devserver listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
