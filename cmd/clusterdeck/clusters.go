package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clusterdeck/clusterdeck/pkg/client"
)

var (
	urlFlag      string
	tokenFlag    string
	insecureFlag bool
)

func clustersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Query a running server",
	}
	cmd.PersistentFlags().StringVar(&urlFlag, "url", envOr("CLUSTERDECK_URL", "http://localhost:8080"), "server URL")
	cmd.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv("CLUSTERDECK_TOKEN"), "API token (name:key)")
	cmd.PersistentFlags().BoolVar(&insecureFlag, "insecure", false, "skip TLS verification")

	var opts client.ListOptions
	var selector string
	list := &cobra.Command{
		Use:   "list",
		Short: "List clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := parseSelector(selector)
			if err != nil {
				return err
			}
			opts.Labels = labels
			return runList(cmd.Context(), newClient(), opts, cmd.OutOrStdout())
		},
	}
	list.Flags().StringVar(&opts.Name, "name", "", "filter by name")
	list.Flags().StringVar(&opts.State, "state", "", "filter by state")
	list.Flags().StringVarP(&selector, "selector", "l", "", "label selector, e.g. env=prod,tier=web")

	cmd.AddCommand(list)
	return cmd
}

func newClient() *client.Client {
	var opts []client.Option
	if insecureFlag {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	return client.New(urlFlag, tokenFlag, opts...)
}

func runList(ctx context.Context, c *client.Client, opts client.ListOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	clusters, err := c.ListClusters(ctx, opts)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tPROVIDER\tCREATED")
	for _, cl := range clusters {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", cl.ID, cl.Name, cl.State, cl.Provider, cl.Created.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func parseSelector(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	labels := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid selector %q", pair)
		}
		labels[k] = v
	}
	return labels, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
