package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ligun0805/lurantis-go/internal/config"
)

var Version = "dev"

func main() {
	config.LoadDotenv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	runCleanups()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}
