package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cachepledge.org/internal/export"
	"cachepledge.org/internal/registry"
)

var (
	exportOut    string
	exportPrefix string
	exportFilter filterFlags
)

var exportCmd = &cobra.Command{
	Use:   "export <pledges|submissions|confirmations>",
	Short: "Write a CSV export",
	Long: `export writes the same CSV the admin dashboard downloads. Without --out the
file is named like the download and written to the working directory; use
--out - for stdout.

Example:
  pledgectl export pledges --state NSW
  pledgectl export confirmations --out - --start-date 2026-01-01`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"db": "true"},
	RunE:        runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file, - for stdout")
	exportCmd.Flags().StringVar(&exportPrefix, "prefix", export.DefaultPrefix, "file name prefix")
	exportFilter.register(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	kind, ok := export.ParseKind(args[0])
	if !ok {
		return fmt.Errorf("unknown export %q", args[0])
	}
	f, err := exportFilter.filter()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	name := exportOut
	if name == "" {
		name = export.Filename(exportPrefix, kind, time.Now())
	}
	if name != "-" {
		file, err := os.Create(name)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}

	if err := writeExport(cmd.Context(), w, kind, f); err != nil {
		return err
	}
	if name != "-" {
		fmt.Fprintln(os.Stderr, "wrote", name)
	}
	return nil
}

func writeExport(ctx context.Context, w io.Writer, kind export.Kind, f registry.Filter) error {
	if kind == export.KindPledges {
		recs, err := store.ListPledges(ctx, f)
		if err != nil {
			return err
		}
		return export.WritePledges(w, recs)
	}
	recs, err := store.ListSubmissions(ctx, f)
	if err != nil {
		return err
	}
	if kind == export.KindConfirmations {
		return export.WriteConfirmations(w, recs)
	}
	return export.WriteSubmissions(w, recs)
}
