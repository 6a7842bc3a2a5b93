// The server command is the main entrypoint for running the game server.
// It takes care of initializing everything and runs the per-dialect
// listeners plus the optional proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mvantor/ragol/internal/core"
	"github.com/mvantor/ragol/internal/server"
)

var configFlag = flag.String("config", "./", "Path to the directory containing the server config file")

func main() {
	flag.Parse()

	config := core.LoadConfig(*configFlag)
	fmt.Println("using configuration file:", *configFlag)

	// Change to the same directory as the config file so that any relative
	// paths in the config file will resolve.
	if err := os.Chdir(*configFlag); err != nil {
		fmt.Println("error changing to config directory:", err)
		os.Exit(1)
	}

	// Bind the controller to one top-level context so that we can shut down cleanly.
	ctx, cancel := context.WithCancel(context.Background())

	// Register a SIGTERM handler so that Ctrl-C will shut the servers down gracefully.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("waiting to shut down gracefully...")
		cancel()
	}()

	controller := &server.Controller{Config: config}
	if err := controller.Start(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Println(err)
			os.Exit(1)
		}
	}
	fmt.Println("shut down")
}
