package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TreeWu/mongo-perf/report"
	"github.com/TreeWu/mongo-perf/web"
)

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags(), map[string]string{
				"serve.addr":      "addr",
				"store.mongo_uri": "store-mongo",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := v.GetString("store.mongo_uri")
			if uri == "" {
				return fmt.Errorf("--store-mongo is required")
			}
			store, err := report.OpenMongoStore(cmd.Context(), uri, report.RunInfo{})
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context())
			return web.NewServer(v.GetString("serve.addr"), store).Start()
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().String("store-mongo", "", "MongoDB holding stored results")
	return cmd
}
