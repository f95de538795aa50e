package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taxlien/internal"
	"taxlien/internal/inference"
	"taxlien/internal/scoring"
	"taxlien/internal/source"
)

type RunResult struct {
	Mapping internal.ColumnMapping    `json:"columnMapping"`
	Report  internal.ValidationReport `json:"report"`
	Stats   internal.PortfolioStats   `json:"stats"`
}

// RunOnce scores a list file straight to an export without touching the database.
// The output format follows the output extension (.csv or .xlsx).
func RunOnce(ctx context.Context, engine *scoring.Engine, input, output string) (RunResult, error) {
	blob, err := os.ReadFile(input)
	if err != nil {
		return RunResult{}, err
	}
	table, err := source.Read(filepath.Base(input), blob)
	if err != nil {
		return RunResult{}, err
	}
	parsed := inference.Parse(table.Headers, table.Rows)
	analyzed, err := engine.AnalyzeBatch(ctx, parsed.Records)
	if err != nil {
		return RunResult{}, err
	}

	switch strings.ToLower(filepath.Ext(output)) {
	case ".csv":
		err = ExportCSVFile(analyzed, output)
	case ".xlsx":
		err = ExportXLSX(analyzed, output)
	default:
		err = fmt.Errorf("unsupported output type: %s", output)
	}
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Mapping: parsed.Mapping, Report: parsed.Report, Stats: scoring.Aggregate(analyzed)}, nil
}
