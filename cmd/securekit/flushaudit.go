package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omniai-app/securekit/internal/audit"
	"github.com/omniai-app/securekit/internal/audit/remote"
	"github.com/omniai-app/securekit/internal/certpin"
	"github.com/omniai-app/securekit/internal/config"
	"github.com/omniai-app/securekit/internal/model"
	"github.com/omniai-app/securekit/internal/securenet"
)

var flushAuditCmd = &cobra.Command{
	Use:   "flush-audit",
	Short: "Drain the local audit queue to the remote store",
	RunE:  runFlushAudit,
}

func init() {
	rootCmd.AddCommand(flushAuditCmd)
}

func runFlushAudit(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cfg.Audit.QueuePath == "" {
		return fmt.Errorf("audit.queue_path is not configured")
	}
	if cfg.Audit.StoreURL == "" {
		return fmt.Errorf("audit.store_url is not configured")
	}

	queue, err := audit.OpenQueue(cfg.Audit.QueuePath)
	if err != nil {
		return err
	}
	defer queue.Close()

	validator := certpin.NewValidator(cfg.Pins, cfg.TrustMode, nil, log)
	client := securenet.NewClient(validator, model.DeviceInfo{}, securenet.Config{
		RequestTimeout:  cfg.Network.RequestTimeout,
		TransferTimeout: cfg.Network.TransferTimeout,
	}, log)
	sink := remote.NewSink(client, cfg.Audit.StoreURL, func() string { return cfg.StoreToken })

	auditor, err := audit.New(queue, sink, model.DeviceInfo{}, log, audit.DefaultConfig())
	if err != nil {
		return err
	}

	before := len(auditor.Pending())
	if before == 0 {
		fmt.Println("queue empty")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Network.TransferTimeout)
	defer cancel()

	auditor.Flush(ctx)
	remaining := len(auditor.Pending())
	fmt.Printf("delivered %d of %d event(s)\n", before-remaining, before)
	if remaining > 0 {
		return fmt.Errorf("%d event(s) still pending", remaining)
	}
	return nil
}
