package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/odvcencio/libforge/pkg/artifact"
	"github.com/odvcencio/libforge/pkg/assemble"
	"github.com/odvcencio/libforge/pkg/compiler"
	"github.com/odvcencio/libforge/pkg/project"
)

func newCompileCmd(v *viper.Viper) *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Package the library archive and its locale bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), s.LogLevel)
			if err != nil {
				return err
			}
			p, err := project.Load(projectPath)
			if err != nil {
				return err
			}

			orch := &assemble.Orchestrator{
				Project:  p,
				Compiler: &compiler.Packager{Version: version},
				Resolver: &artifact.LocalRepository{Root: s.Repository},
				Logger:   logger,
			}
			ctx := cmd.Context()
			out, err := orch.Build(ctx, p.Includes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", out)

			pub := artifact.NewPublisher()
			reqs, err := orch.LocaleRequests(p.RuntimeLocales, p.Includes.ResourceBundles)
			if err != nil {
				return err
			}
			if len(reqs) > 0 {
				attached, err := orch.GenerateLocales(ctx, out, reqs, s.Jobs, pub)
				if err != nil {
					return err
				}
				for _, a := range attached {
					fmt.Fprintf(cmd.OutOrStdout(), "built %s (%s %s)\n", a.Path, a.Kind, a.Classifier)
				}
			}
			return pub.WriteManifest(p.AttachmentsPath())
		},
	}
	cmd.Flags().StringVarP(&projectPath, "project", "p", project.DescriptorName, "path to the project descriptor")
	return cmd
}
