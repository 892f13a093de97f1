// Command paxossim runs the single-decree Paxos key-value simulation
// scenarios, mirroring the -l/-g/-r/-v flag surface of the reference
// test runner this project's scenarios were distilled from.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yurriy/paxossim/kv"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		list    bool
		grep    string
		repeat  int
		verbose bool
		seed    int64
	)
	failed := false

	root := &cobra.Command{
		Use:          "paxossim",
		Short:        "Run the single-decree Paxos key-value simulation scenarios",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}

			scenarios := selectScenarios(grep)
			if list {
				for _, s := range scenarios {
					fmt.Fprintln(cmd.OutOrStdout(), s.Name)
				}
				return nil
			}
			if len(scenarios) == 0 {
				return fmt.Errorf("no scenario matches --grep %q", grep)
			}

			for iteration := 0; iteration < repeat; iteration++ {
				entry := logrus.WithField("iteration", iteration+1)
				for _, s := range scenarios {
					entry.WithField("scenario", s.Name).Debug("running scenario")
					if err := s.Run(seed + int64(iteration)); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s (iteration %d): %v\n", s.Name, iteration+1, err)
						failed = true
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "PASS %s (iteration %d)\n", s.Name, iteration+1)
				}
			}
			return nil
		},
	}

	root.Flags().BoolVarP(&list, "list", "l", false, "list the scenarios that would run and exit")
	root.Flags().StringVarP(&grep, "grep", "g", "", "run only scenarios whose name contains this substring")
	root.Flags().IntVarP(&repeat, "repeat", "r", 1, "repeat the selected scenarios this many times")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.Flags().Int64Var(&seed, "seed", 1, "base random seed; iteration N uses seed+N-1")
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if failed {
		return 42
	}
	return 0
}

func selectScenarios(grep string) []kv.Scenario {
	if grep == "" {
		return kv.Scenarios
	}
	needle := strings.ToLower(grep)
	var out []kv.Scenario
	for _, s := range kv.Scenarios {
		if strings.Contains(strings.ToLower(s.Name), needle) {
			out = append(out, s)
		}
	}
	return out
}
