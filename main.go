package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/makibytes/seltest/cmd"
	"github.com/makibytes/seltest/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		log.Error("%s", err)
		stop()
		os.Exit(1)
	}
}
