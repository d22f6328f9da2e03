package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/datalab/pkg/cache"
	"github.com/ajitpratap0/datalab/pkg/config"
	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/engine"
	"github.com/ajitpratap0/datalab/pkg/json"
	"github.com/ajitpratap0/datalab/pkg/logger"
	"github.com/ajitpratap0/datalab/pkg/operation"
	"github.com/ajitpratap0/datalab/pkg/ops"
	"github.com/ajitpratap0/datalab/pkg/source"
)

func builtinRegistry() (*operation.Registry, error) {
	reg := operation.NewRegistry()
	if err := ops.RegisterAll(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (a *app) opsCommand() *cobra.Command {
	opsCmd := &cobra.Command{
		Use:   "ops",
		Short: "Inspect the operation catalog",
	}

	var task string
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List available operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := builtinRegistry()
			if err != nil {
				return err
			}
			infos := reg.List()
			if task != "" {
				infos = reg.ListByTask(task)
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tTASK\tFIELDS\tDESCRIPTION")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.Name, info.Category, info.Task,
					strings.Join(info.ProcessedFields, ","), info.Description)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&task, "task", "", "Only list operations of this task")
	list.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	opsCmd.AddCommand(list)
	return opsCmd
}

type applyFlags struct {
	input          string
	name           string
	op             string
	template       string
	fields         []string
	generatedField string
	resources      map[string]string
	output         string
	noCache        bool
	inferTypes     bool
}

func (a *app) applyCommand() *cobra.Command {
	var f applyFlags
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply an operation to a dataset file",
		Long: `Apply a registered operation, or an ad-hoc prompt template, to a JSONL or
CSV file. Output records are written as JSONL to --output or stdout; a JSON
summary with the output fingerprint and statistics goes to stderr.

Example:
  datalab apply -i reviews.jsonl --op get_length --mode persisting --num-proc 4 -o out.jsonl.zst`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.op == "" && f.template == "" {
				return fmt.Errorf("one of --op or --template is required")
			}
			if f.noCache {
				a.cfg.Cache.Enabled = false
			}
			return a.runApply(cmd.Context(), &f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "Input dataset (.jsonl, .ndjson or .csv, optionally .gz/.zst/.lz4/.sz)")
	flags.StringVar(&f.name, "name", "", "Dataset name, defaults to the input file name")
	flags.StringVar(&f.op, "op", "", "Registered operation name")
	flags.StringVar(&f.template, "template", "", "Prompt template with {field} placeholders, used instead of --op")
	flags.StringSliceVar(&f.fields, "fields", nil, "Override the processed fields of the operation")
	flags.StringVar(&f.generatedField, "generated-field", "", "Field receiving scalar results; may override an input field")
	flags.StringToStringVar(&f.resources, "resource", nil, "Operation resources as key=value")
	flags.StringVarP(&f.output, "output", "o", "", "Output JSONL file")
	flags.BoolVar(&f.noCache, "no-cache", false, "Disable the persisted cache for this run")
	flags.BoolVar(&f.inferTypes, "infer-types", false, "Parse numbers and booleans in CSV input")
	flags.String("mode", "", "Execution mode: streaming, materializing or persisting")
	flags.Int("num-proc", 0, "Worker count for per-record operations (0 = one per core)")
	_ = a.v.BindPFlag(config.KeyEngineMode, flags.Lookup("mode"))
	_ = a.v.BindPFlag(config.KeyEngineNumProc, flags.Lookup("num-proc"))
	_ = cmd.MarkFlagRequired("input")
	cmd.MarkFlagsMutuallyExclusive("op", "template")
	return cmd
}

func (a *app) runApply(ctx context.Context, f *applyFlags) error {
	desc, err := resolveOperation(f)
	if err != nil {
		return err
	}

	src, err := source.ReadFile(f.input, source.Options{Name: f.name, InferTypes: f.inferTypes})
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, logger.DatasetKey, src.Name())
	ctx = context.WithValue(ctx, logger.OperationKey, desc.Name())
	log := logger.WithContext(ctx)

	eng, err := engine.NewFromConfig(ctx, a.cfg)
	if err != nil {
		return err
	}
	log.Info("applying operation",
		zap.String("input", f.input),
		zap.Int("records", src.Len()),
		zap.String("fingerprint", src.Fingerprint().Short()),
		zap.String("mode", a.cfg.Engine.Mode),
		zap.Bool("cache", eng.CachingEnabled()))

	res, err := eng.Apply(ctx, src, desc, engine.ApplyOptions{})
	if err != nil {
		return err
	}

	if res.Stream != nil {
		return writeStream(ctx, res.Stream, f.output)
	}

	out := res.Dataset
	if f.output != "" {
		if err := source.WriteFile(f.output, out.RecordSlice()); err != nil {
			return err
		}
	} else if err := source.WriteJSONL(os.Stdout, out.RecordSlice()); err != nil {
		return err
	}

	return json.NewEncoder(os.Stderr).Encode(summary{
		Dataset:     out.Name(),
		Operation:   desc.Name(),
		Mode:        string(res.Mode),
		Records:     out.Len(),
		Fingerprint: out.Fingerprint().String(),
		CacheHit:    res.CacheHit,
		Schema:      out.Schema().Fields,
		Statistics:  out.Statistics(),
	})
}

type summary struct {
	Dataset     string                 `json:"dataset"`
	Operation   string                 `json:"operation"`
	Mode        string                 `json:"mode"`
	Records     int                    `json:"records"`
	Fingerprint string                 `json:"fingerprint"`
	CacheHit    bool                   `json:"cache_hit"`
	Schema      []dataset.Field        `json:"schema"`
	Statistics  map[string]interface{} `json:"statistics,omitempty"`
}

func resolveOperation(f *applyFlags) (*operation.Descriptor, error) {
	var desc *operation.Descriptor
	var err error
	if f.template != "" {
		desc, err = ops.PromptTemplate("prompt", f.template)
	} else {
		var reg *operation.Registry
		if reg, err = builtinRegistry(); err == nil {
			desc, err = reg.Get(f.op)
		}
	}
	if err != nil {
		return nil, err
	}

	if len(f.fields) > 0 {
		if desc, err = desc.WithProcessedFields(f.fields...); err != nil {
			return nil, err
		}
	}
	if f.generatedField != "" {
		desc = desc.WithGeneratedField(f.generatedField)
	}
	if len(f.resources) > 0 {
		desc = desc.WithResources(parseResources(f.resources))
	}
	return desc, nil
}

// parseResources converts flag values into bools and numbers where they parse
// as such.
func parseResources(in map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, s := range in {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			out[k] = i
		} else if fl, err := strconv.ParseFloat(s, 64); err == nil {
			out[k] = fl
		} else if s == "true" || s == "false" {
			out[k] = s == "true"
		} else {
			out[k] = s
		}
	}
	return out
}

func writeStream(ctx context.Context, s *engine.Stream, output string) error {
	if output != "" {
		records, err := s.Collect()
		if err != nil {
			return err
		}
		return source.WriteFile(output, records)
	}
	lw := json.NewLineWriter(os.Stdout)
	for rec, err := range s.All() {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := lw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) cacheCommand() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persisted cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cache.Open(cmd.Context(), a.cfg.Cache)
			if err != nil {
				return err
			}
			st, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(st)
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cache.Open(cmd.Context(), a.cfg.Cache)
			if err != nil {
				return err
			}
			n, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", n)
			return nil
		},
	})
	return cacheCmd
}
