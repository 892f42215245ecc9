package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/deskpilot/cmd/root"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := root.Execute(ctx, os.Stdout, os.Stderr, os.Args[1:]...)
	cancel()
	os.Exit(code)
}
