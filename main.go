package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"dex-swap/cmd"
)

func main() {
	// .env is optional; the environment may already hold PRIVATE_KEY
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(cmd.ExitConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	code := cmd.ExitCode(err)
	if code != cmd.ExitOK {
		cmd.PrintError(os.Stderr, err)
	}
	os.Exit(code)
}
