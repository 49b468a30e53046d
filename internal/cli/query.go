package cli

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/filmgraph/backend/pkg/query"
)

var (
	queryParams []string
	queriesJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query <name>",
	Short: "Run a catalog query and print its result as JSON",
	Long: `Run one entry of the query catalog.

Examples:
  filmgraph query highest-revenue-film
  filmgraph query co-actors --param actor="Tom Hanks"
  filmgraph query shortest-actor-path -p from="Tom Hanks" -p to="Meg Ryan"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(queryParams)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		b, err := openBackends(ctx, true)
		if err != nil {
			return err
		}
		defer b.Close()

		catalog := query.NewCatalog(b.Docs, b.Graph, query.WithTracer(query.LogTracer{}))
		res, err := catalog.Run(ctx, args[0], params)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "List the query catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := query.NewCatalog(nil, nil)
		if queriesJSON {
			return printJSON(cmd.OutOrStdout(), catalog.Describe())
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header("Name", "Adapter", "Kind", "Params")
		for _, e := range catalog.List() {
			names := make([]string, len(e.Params))
			for i, p := range e.Params {
				names[i] = p.Name
			}
			if err := table.Append(e.Name, string(e.Adapter), string(e.Kind), strings.Join(names, ",")); err != nil {
				return err
			}
		}
		return table.Render()
	},
}

// parseParams turns repeated key=value flags into catalog parameters.
func parseParams(raw []string) (map[string]string, error) {
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", kv)
		}
		params[key] = value
	}
	return params, nil
}

func init() {
	queryCmd.Flags().StringArrayVarP(&queryParams, "param", "p", nil, "query parameter as key=value (repeatable)")
	queriesCmd.Flags().BoolVar(&queriesJSON, "json", false, "print entries with their row schemas as JSON")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(queriesCmd)
}
