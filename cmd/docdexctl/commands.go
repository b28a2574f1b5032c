package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/docdex/internal/db/memory"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
	"github.com/kailas-cloud/docdex/internal/version"
)

const fileCollection = "file"

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "docdexctl",
		Short:         "Query JSON document files with docdex filters and pipelines",
		Long:          `Loads a JSON array of documents into an in-memory docdex store and runs find, aggregate or diff against it.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(newFindCmd(), newAggregateCmd(), newDiffCmd())
	return root
}

func newFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <file.json>",
		Short: "Print the documents matching a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filterStr, _ := cmd.Flags().GetString("filter")
			projectStr, _ := cmd.Flags().GetString("project")
			sortStr, _ := cmd.Flags().GetString("sort")
			limit, _ := cmd.Flags().GetInt("limit")

			f := filter.New()
			if filterStr != "" {
				spec, err := parseObject("filter", filterStr)
				if err != nil {
					return err
				}
				f = filter.Parse(spec)
			}
			var proj pipeline.Projection
			if projectStr != "" {
				spec, err := parseObject("project", projectStr)
				if err != nil {
					return err
				}
				proj = pipeline.ParseProjection(spec)
			}
			var keys []pipeline.SortKey
			if sortStr != "" {
				spec, err := parseObject("sort", sortStr)
				if err != nil {
					return err
				}
				keys = pipeline.ParseSort(spec)
			}

			store := memory.New()
			col := store.Collection(fileCollection)
			if _, err := loadFile(col, args[0]); err != nil {
				return err
			}
			cur := col.Find(f, proj).Sort(keys...)
			if limit > 0 {
				cur = cur.Limit(limit)
			}
			return writeJSON(cmd.OutOrStdout(), cur.All())
		},
	}
	cmd.Flags().String("filter", "", "filter document, e.g. '{\"cmc\": {\"$lte\": 2}}'")
	cmd.Flags().String("project", "", "projection document, e.g. '{\"name\": 1, \"_id\": 0}'")
	cmd.Flags().String("sort", "", "sort document, e.g. '{\"released_at\": -1}'")
	cmd.Flags().Int("limit", 0, "maximum number of documents (0 for all)")
	return cmd
}

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate <file.json>",
		Short: "Run an aggregation pipeline over a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelineStr, _ := cmd.Flags().GetString("pipeline")
			pipelineFile, _ := cmd.Flags().GetString("pipeline-file")

			raw := pipelineStr
			if pipelineFile != "" {
				b, err := os.ReadFile(pipelineFile) //nolint:gosec // operator-supplied path
				if err != nil {
					return fmt.Errorf("failed to read pipeline: %w", err)
				}
				raw = string(b)
			}
			if strings.TrimSpace(raw) == "" {
				return fmt.Errorf("--pipeline or --pipeline-file is required")
			}

			var spec document.Value
			if err := json.Unmarshal([]byte(raw), &spec); err != nil {
				return fmt.Errorf("invalid pipeline JSON: %w", err)
			}
			p, err := pipeline.Parse(spec)
			if err != nil {
				return fmt.Errorf("invalid pipeline: %w", err)
			}

			store := memory.New()
			col := store.Collection(fileCollection)
			if _, err := loadFile(col, args[0]); err != nil {
				return err
			}
			out := col.Aggregate(p)
			if out == nil {
				out = []*document.Document{}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("pipeline", "", "pipeline as a JSON array of stages")
	cmd.Flags().String("pipeline-file", "", "read the pipeline from a file")
	return cmd
}

// diffReport summarises an upsert-by-diff pass of one file over another.
type diffReport struct {
	Inserted  []string     `json:"inserted"`
	Updated   []diffChange `json:"updated"`
	Removed   []string     `json:"removed"`
	Unchanged int          `json:"unchanged"`
}

type diffChange struct {
	Key   string   `json:"key"`
	Paths []string `json:"paths"`
}

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old.json> <new.json>",
		Short: "Report which documents a new file inserts, updates or removes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")

			store := memory.New()
			col := store.Collection(fileCollection)
			old, err := loadFile(col, args[0])
			if err != nil {
				return err
			}

			report := diffReport{Inserted: []string{}, Updated: []diffChange{}, Removed: []string{}}
			seen := make(map[string]bool)
			err = decodeFile(args[1], func(d *document.Document) error {
				kv, ok := d.Lookup(key)
				if !ok {
					return fmt.Errorf("%s: document without %q", args[1], key)
				}
				seen[kv.Key()] = true
				res, err := col.UpsertByDiff(d, key)
				if err != nil {
					return fmt.Errorf("upsert %s: %w", kv.Render(), err)
				}
				switch {
				case res.Inserted:
					report.Inserted = append(report.Inserted, kv.Render())
				case res.Updated():
					report.Updated = append(report.Updated, diffChange{Key: kv.Render(), Paths: res.Changes.Paths()})
				default:
					report.Unchanged++
				}
				return nil
			})
			if err != nil {
				return err
			}

			for _, d := range old {
				if kv, ok := d.Lookup(key); ok && !seen[kv.Key()] {
					report.Removed = append(report.Removed, kv.Render())
				}
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().String("key", "id", "field identifying a document across both files")
	return cmd
}

func parseObject(flag, raw string) (*document.Document, error) {
	var v document.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid --%s JSON: %w", flag, err)
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, fmt.Errorf("--%s must be a JSON object", flag)
	}
	return obj, nil
}

// loadFile inserts every document of a JSON array file into col and
// returns them in file order.
func loadFile(col *memory.Collection, path string) ([]*document.Document, error) {
	var docs []*document.Document
	err := decodeFile(path, func(d *document.Document) error {
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	col.InsertMany(docs)
	return docs, nil
}

func decodeFile(path string, fn func(*document.Document) error) error {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := document.DecodeArray(f, fn); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
