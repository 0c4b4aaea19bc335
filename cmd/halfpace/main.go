package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/halfpace/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.Options{Version: version}, os.Args[1:])
	stop()
	os.Exit(code)
}
