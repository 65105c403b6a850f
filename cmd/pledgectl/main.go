// Command pledgectl is the operator CLI: password hashing, CSV exports,
// stats and audit queries against the production database.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cachepledge.org/internal/store/pg"
)

var (
	// dsn is set by --dsn or CACHEPLEDGE_PG_DSN.
	dsn string

	// jsonOutput switches table output to JSON where a command supports both.
	jsonOutput bool

	// store is opened by PersistentPreRunE for commands that need it.
	store *pg.Store
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pledgectl",
	Short: "Operate the cache pledge registry",
	Long: `pledgectl runs administrative tasks against the cache pledge database:
hashing the admin password, exporting CSVs, and reading stats and audit logs.`,
	SilenceUsage:      true,
	PersistentPreRunE: openStore,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			return store.Close()
		}
		return nil
	},
}

func init() {
	v := viper.New()
	v.SetEnvPrefix("CACHEPLEDGE")
	v.AutomaticEnv()

	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", v.GetString("pg_dsn"), "PostgreSQL DSN (env CACHEPLEDGE_PG_DSN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")

	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(auditCmd)
}

func openStore(cmd *cobra.Command, args []string) error {
	if cmd.Annotations["db"] != "true" {
		return nil
	}
	if dsn == "" {
		return errors.New("missing DSN: provide via --dsn or CACHEPLEDGE_PG_DSN")
	}
	s, err := pg.Open(dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	store = s
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
