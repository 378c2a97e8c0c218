package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shopboost/shopboost/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export pages with their analytics",
	Long: `Export every page with its analytics record in CSV, JSON or YAML.

Examples:
  shopboost export --format csv > pages.csv
  shopboost export --format json > pages.json
  shopboost export --format yaml > pages.yaml`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv, json or yaml)")
	rootCmd.AddCommand(exportCmd)
}

type pageExport struct {
	ID             string `json:"id" yaml:"id"`
	Title          string `json:"title" yaml:"title"`
	Status         string `json:"status" yaml:"status"`
	Blocks         int    `json:"blocks" yaml:"blocks"`
	Views          int64  `json:"views" yaml:"views"`
	Revenue        string `json:"revenue" yaml:"revenue"`
	Sales          int64  `json:"sales" yaml:"sales"`
	TrackedViews   int64  `json:"tracked_views" yaml:"tracked_views"`
	TrackedRevenue string `json:"tracked_revenue" yaml:"tracked_revenue"`
	LastModified   int64  `json:"last_modified" yaml:"last_modified"`
}

type exportDoc struct {
	ExportedAt int64        `json:"exported_at" yaml:"exported_at"`
	Pages      []pageExport `json:"pages" yaml:"pages"`
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" && exportFormat != "yaml" {
		return fmt.Errorf("invalid format: must be 'csv', 'json' or 'yaml'")
	}

	return withStore(func(ctx context.Context, s store.Store) error {
		pages, err := s.ListPages(ctx)
		if err != nil {
			return fmt.Errorf("failed to list pages: %w", err)
		}
		records, err := s.GetAnalytics(ctx)
		if err != nil {
			return fmt.Errorf("failed to get analytics: %w", err)
		}

		rows := buildExport(pages, records)
		out := cmd.OutOrStdout()
		switch exportFormat {
		case "json":
			return exportJSON(out, rows)
		case "yaml":
			return exportYAML(out, rows)
		}
		return exportCSV(out, rows)
	})
}

func buildExport(pages []store.Page, records map[string]store.AnalyticsRecord) []pageExport {
	rows := make([]pageExport, len(pages))
	for i, p := range pages {
		rec := records[p.ID]
		rows[i] = pageExport{
			ID:             p.ID,
			Title:          p.Title,
			Status:         string(p.Status),
			Blocks:         len(p.Blocks),
			Views:          p.Views,
			Revenue:        p.Revenue.StringFixed(2),
			Sales:          rec.Sales,
			TrackedViews:   rec.Views,
			TrackedRevenue: rec.Revenue.StringFixed(2),
			LastModified:   p.LastModified.Unix(),
		}
	}
	return rows
}

func exportCSV(out io.Writer, rows []pageExport) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	header := []string{"id", "title", "status", "blocks", "views", "revenue", "sales", "tracked_views", "tracked_revenue", "last_modified"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		row := []string{
			r.ID,
			r.Title,
			r.Status,
			strconv.Itoa(r.Blocks),
			strconv.FormatInt(r.Views, 10),
			r.Revenue,
			strconv.FormatInt(r.Sales, 10),
			strconv.FormatInt(r.TrackedViews, 10),
			r.TrackedRevenue,
			strconv.FormatInt(r.LastModified, 10),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

func exportJSON(out io.Writer, rows []pageExport) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportDoc{ExportedAt: time.Now().Unix(), Pages: rows})
}

func exportYAML(out io.Writer, rows []pageExport) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(exportDoc{ExportedAt: time.Now().Unix(), Pages: rows}); err != nil {
		return fmt.Errorf("failed to write yaml: %w", err)
	}
	return encoder.Close()
}
