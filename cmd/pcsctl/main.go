package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	pcsctlcmd "github.com/pcs-tools/pcsctl/pkg/pcsctl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := pcsctlcmd.DefaultConfig()
	cfg.BaseContext = ctx

	root := pcsctlcmd.NewRootCommand(cfg)
	err := root.Execute()
	pcsctlcmd.Cleanup(root)
	if err != nil {
		os.Exit(1)
	}
}
