package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/lobinuxsoft/devkit-deploy/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli.ExecuteContext(ctx)
}
