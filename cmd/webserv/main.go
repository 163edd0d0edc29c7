// Command webserv starts the HTTP/1.1 server from a JSON configuration
// file, the way main.go in the teacher repository starts its listener,
// generalized to multiple listening ports and graceful shutdown.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/webserv/webserv/internal/routetable"
	"github.com/webserv/webserv/internal/webconfig"
	"github.com/webserv/webserv/internal/weblog"
	"github.com/webserv/webserv/internal/webloop"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.json>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := webconfig.Load(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "webserv: %v\n", err)
		os.Exit(1)
	}

	logger := weblog.New(os.Getenv("WEBSERV_VERBOSE") != "")
	routes := routetable.New(cfg.Routes)

	loop, err := webloop.New(cfg, routes, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "webserv: %v\n", err)
		os.Exit(1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info("shutting down")
		loop.Stop()
	}()

	logger.Info("webserv listening on ports %v", cfg.ListeningPorts)
	if err := loop.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "webserv: %v\n", err)
		os.Exit(1)
	}
}
