package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"slipway/pkg/basefetch"
	"slipway/pkg/image"
)

func shortDigest(d digest.Digest) string {
	enc := d.Encoded()
	if len(enc) > 12 {
		return enc[:12]
	}
	return enc
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List built images and catalogued base images",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := image.NewStore(storeDir)
		if err != nil {
			return err
		}
		images, err := store.List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
		fmt.Fprintln(w, "REFERENCE\tIMAGE ID\tPORT\tCREATED")
		for _, img := range images {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				img.Ref, shortDigest(img.ID), img.Config.ExposedPort,
				img.Created.Local().Format(time.DateTime))
		}
		w.Flush()

		catalog, err := basefetch.NewCatalog(catalogDir)
		if err != nil {
			return err
		}
		bases, err := catalog.List()
		if err != nil {
			return err
		}
		if len(bases) > 0 {
			fmt.Fprintln(os.Stdout)
			fmt.Fprintln(w, "BASE\t")
			for _, ref := range bases {
				fmt.Fprintf(w, "%s\t\n", ref)
			}
			w.Flush()
		}
		return nil
	},
}
