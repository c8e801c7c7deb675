package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/omniai-app/securekit/internal/config"
	"github.com/omniai-app/securekit/internal/devicetrust"
)

var trustCheckCmd = &cobra.Command{
	Use:   "trust-check",
	Short: "Run the device trust probes and print the verdict",
	RunE:  runTrustCheck,
}

func init() {
	rootCmd.AddCommand(trustCheckCmd)
}

func runTrustCheck(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	host := devicetrust.DefaultHost()
	eval := devicetrust.NewEvaluator(devicetrust.DefaultProbes(host), host, cfg.TrustMode, nil, log)

	verdict := eval.Evaluate()
	names := make([]string, 0, len(verdict.Results))
	for name := range verdict.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mark := "-"
		if verdict.Results[name] {
			mark = "FIRED"
		}
		fmt.Printf("  %-22s %s\n", name, mark)
	}

	fmt.Printf("compromised: %v\n", verdict.Compromised)
	fmt.Printf("debugger:    %v\n", eval.DebuggerAttached())
	fmt.Printf("policy:      %s\n", eval.DecidePolicy())

	if verdict.Compromised {
		return fmt.Errorf("device integrity check failed")
	}
	return nil
}
