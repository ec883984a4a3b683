package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "libforge",
		Short:         "Package component libraries into archives with verifiable digests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	v := viper.New()
	registerSettings(v, root.PersistentFlags())

	root.AddCommand(newVersionCmd())
	root.AddCommand(newCompileCmd(v))
	root.AddCommand(newOptimizeCmd(v))
	root.AddCommand(newCatalogCmd(v))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "libforge "+version)
		},
	}
}
