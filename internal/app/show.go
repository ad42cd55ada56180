package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Collection string
	Limit      int
}

// Show prints the most recent canonical floor records for a collection.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	_, repo, err := a.openStore()
	if err != nil {
		return err
	}

	records, err := repo.RecentCanonicalRecords(ctx, opts.Collection, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no canonical records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Timestamp (UTC)\tCollection\tFloor")
	for _, record := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", record.Timestamp, record.Collection, record.OraclePrice.String())
	}
	writer.Flush()
	return nil
}
