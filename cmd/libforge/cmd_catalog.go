package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/odvcencio/libforge/pkg/archive"
	"github.com/odvcencio/libforge/pkg/catalog"
	"github.com/odvcencio/libforge/pkg/digest"
)

func newCatalogCmd(v *viper.Viper) *cobra.Command {
	var imagePath string

	cmd := &cobra.Command{
		Use:   "catalog <archive>",
		Short: "Show the catalog of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadSettings(v); err != nil {
				return err
			}
			cache, err := catalog.NewCache(1)
			if err != nil {
				return err
			}
			a, err := cache.Library(args[0])
			if err != nil {
				return err
			}

			var image []byte
			if imagePath != "" {
				image, err = os.ReadFile(imagePath)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			cat := a.Catalog
			fmt.Fprintf(out, "archive %s\n", a.Path)
			fmt.Fprintf(out, "producer %s %s\n", cat.Producer.Name, cat.Producer.Version)
			fmt.Fprintf(out, "debug %t\n", cat.Features.Debug)
			for _, locale := range cat.Features.Locales {
				fmt.Fprintf(out, "locale %s\n", locale)
			}

			for _, lib := range cat.Libraries {
				entry, err := cache.Entry(a.Path, lib.Path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "library %s\n", entry.Key)
				for _, d := range entry.Digests {
					status := ""
					if image != nil {
						status = " ok"
						if err := digest.Verify(d, image); err != nil {
							status = " MISMATCH"
						}
					}
					fmt.Fprintf(out, "  digest %s signed=%t %s%s\n", d.Type, d.Signed, d.Value, status)
				}
				for _, dep := range lib.Dependencies {
					fmt.Fprintf(out, "  dependency %s %s\n", dep.Name, dep.Hash)
				}
				for _, c := range lib.Components {
					fmt.Fprintf(out, "  %s %s\n", c.Kind, c.Name)
				}
				for _, b := range lib.Bundles {
					fmt.Fprintf(out, "  %s %s\n", archive.KindResourceBundle, b)
				}
				for _, s := range lib.Stylesheets {
					fmt.Fprintf(out, "  %s %s\n", archive.KindStylesheet, s)
				}
			}
			for _, f := range cat.Files {
				fmt.Fprintf(out, "file %s %d\n", f.Path, f.Size)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "verify digests against this program image")
	return cmd
}
