package main

import (
	"os"

	"github.com/shamank/snet-custody-go/internal/cli"
	"go.uber.org/zap"
)

func main() {
	defer func() { _ = zap.L().Sync() }()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		format, _ := cmd.PersistentFlags().GetString("format")
		f := &cli.OutputFormatter{Format: format, Writer: os.Stderr}
		f.Error(err)
		os.Exit(cli.GetExitCode(err))
	}
}
