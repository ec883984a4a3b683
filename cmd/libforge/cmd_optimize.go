package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/odvcencio/libforge/pkg/artifact"
	"github.com/odvcencio/libforge/pkg/catalog"
	"github.com/odvcencio/libforge/pkg/digest"
	"github.com/odvcencio/libforge/pkg/optimize"
	"github.com/odvcencio/libforge/pkg/pipeline"
	"github.com/odvcencio/libforge/pkg/project"
)

func newOptimizeCmd(v *viper.Viper) *cobra.Command {
	var (
		projectPath string
		signed      bool
		algorithm   string
	)

	cmd := &cobra.Command{
		Use:   "optimize [archive...]",
		Short: "Optimize the program image and update the archive digest",
		Long: "Optimize the program image of each archive, record the digest of the\n" +
			"optimized image in the archive catalog and write the image next to it.\n" +
			"Without arguments the project's primary archive is processed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), s.LogLevel)
			if err != nil {
				return err
			}

			var (
				targets      []pipeline.Target
				manifestPath string
			)
			pub := artifact.NewPublisher()
			if len(args) == 0 {
				p, err := project.Load(projectPath)
				if err != nil {
					return err
				}
				t := pipeline.TargetFor(p)
				t.Signed = t.Signed || signed
				targets = append(targets, t)
				if algorithm == "" {
					algorithm = p.Optimize.Algorithm
				}

				manifestPath = p.AttachmentsPath()
				existing, err := artifact.ReadManifest(manifestPath)
				if err != nil {
					return err
				}
				for _, a := range existing {
					pub.Attach(a.Kind, a.Classifier, a.Path)
				}
			} else {
				for _, arg := range args {
					targets = append(targets, pipeline.Target{
						Archive: arg,
						Output:  strings.TrimSuffix(arg, filepath.Ext(arg)) + ".swf",
						Signed:  signed,
					})
				}
			}

			alg, err := digest.ParseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			digester := &digest.Digester{Algorithm: alg}
			if anySigned(targets) {
				signer, keyPath, err := digest.NewSSHSigner(s.SigningKey)
				if err != nil {
					return err
				}
				logger.Debug("loaded signing key", "path", keyPath)
				digester.Signer = signer
			}

			var opt optimize.Optimizer = optimize.Recompress{}
			if strings.TrimSpace(s.Optimizer) != "" {
				c, err := optimize.ParseCommand(s.Optimizer)
				if err != nil {
					return err
				}
				opt = c
			}

			cache, err := catalog.NewCache(catalog.DefaultSize)
			if err != nil {
				return err
			}
			pl := &pipeline.Pipeline{
				Cache:     cache,
				Optimizer: opt,
				Digester:  digester,
				Publisher: pub,
				Logger:    logger,
				Timeout:   s.Timeout,
			}
			results, err := pl.RunAll(cmd.Context(), targets, s.Jobs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Skipped {
					fmt.Fprintf(out, "skipped %s\n", r.Archive)
					continue
				}
				fmt.Fprintf(out, "optimized %s -> %s (%s %s)\n", r.Archive, r.Optimized, r.Digest.Type, r.Digest.Value)
			}
			if manifestPath != "" {
				return pub.WriteManifest(manifestPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectPath, "project", "p", project.DescriptorName, "path to the project descriptor")
	cmd.Flags().BoolVar(&signed, "signed", false, "record a signed digest")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "digest algorithm (SHA-256 or BLAKE3)")
	return cmd
}

func anySigned(targets []pipeline.Target) bool {
	for _, t := range targets {
		if t.Signed {
			return true
		}
	}
	return false
}
