package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omniai-app/securekit/internal/config"
	"github.com/omniai-app/securekit/internal/securemigrate"
)

var migrateStorageCmd = &cobra.Command{
	Use:   "migrate-storage",
	Short: "Move sensitive legacy preferences into the sealed keystore",
	RunE:  runMigrateStorage,
}

func init() {
	rootCmd.AddCommand(migrateStorageCmd)
}

func runMigrateStorage(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	secure, legacy, err := openStores(cfg)
	if err != nil {
		return err
	}

	m := securemigrate.NewMigrator(legacy, secure, nil, log)
	done, err := m.Completed()
	if err != nil {
		return err
	}
	if done {
		fmt.Println("migration already completed")
		return nil
	}
	if err := m.Run(); err != nil {
		return err
	}
	fmt.Println("migration complete")
	return nil
}
