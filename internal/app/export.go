package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"floor-oracle/internal/storage"
)

// ExportOptions hold parameters for exporting canonical floor history.
type ExportOptions struct {
	Collection string
	MaxPoints  int
	CSVPath    string
	PNGPath    string
}

// Export renders a collection's canonical floor history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Collection == "" {
		return errors.New("--collection is required")
	}

	opts.MaxPoints = a.resolveMaxPoints(opts.MaxPoints)

	_, repo, err := a.openStore()
	if err != nil {
		return err
	}

	records, err := repo.RecentCanonicalRecords(ctx, opts.Collection, opts.MaxPoints)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("collection", opts.Collection).Msg("no canonical records to export")
		return nil
	}

	// Newest-first from the store; chronological for output.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	a.Logger.Info().
		Str("collection", opts.Collection).
		Int("records", len(records)).
		Msg("exporting canonical floor history")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, records); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, records); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) resolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return a.Config.Export.MaxDataPoints
}

func writeRecordsCSV(path string, records []storage.CanonicalRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "collection", "oracle_price"}); err != nil {
		return err
	}
	for _, record := range records {
		row := []string{record.Timestamp, record.Collection, record.OraclePrice.String()}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeRecordsPNG(path string, records []storage.CanonicalRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	xs := make([]time.Time, 0, len(records))
	ys := make([]float64, 0, len(records))
	for _, record := range records {
		ts, err := time.ParseInLocation(storage.TimestampLayout, record.Timestamp, time.UTC)
		if err != nil {
			continue
		}
		value, _ := record.OraclePrice.Float64()
		xs = append(xs, ts)
		ys = append(ys, value)
	}
	if len(xs) < 2 {
		return errors.New("not enough timestamped records to chart")
	}

	graph := chart.Chart{
		Title: "Canonical floor (" + records[0].Collection + ")",
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02 15:04"),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "floor",
				XValues: xs,
				YValues: ys,
			},
		},
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
