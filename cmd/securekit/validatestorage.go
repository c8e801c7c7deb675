package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omniai-app/securekit/internal/config"
	"github.com/omniai-app/securekit/internal/securemigrate"
)

var validateStorageCmd = &cobra.Command{
	Use:   "validate-storage",
	Short: "Scan the legacy preference store for values that belong in sealed storage",
	Long:  "Exits non-zero when any finding is reported, so it can gate CI and QA builds.",
	RunE:  runValidateStorage,
}

func init() {
	rootCmd.AddCommand(validateStorageCmd)
}

func runValidateStorage(cmd *cobra.Command, args []string) error {
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
	findings, err := m.ValidateSecureStorage()
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		fmt.Println("no findings")
		return nil
	}
	for _, f := range findings {
		fmt.Printf("  %s: %s\n", f.Key, f.Reason)
	}
	return fmt.Errorf("%d finding(s): sensitive data in unencrypted storage", len(findings))
}
