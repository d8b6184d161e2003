package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// outputOptions selects between the table view and JSON, optionally
// projected through a JMESPath expression.
type outputOptions struct {
	JSON  bool
	Query string
}

func addOutputFlags(fs *flag.FlagSet, o *outputOptions) {
	fs.BoolVar(&o.JSON, "json", false, "Print JSON instead of a table")
	fs.StringVar(&o.Query, "query", "", "JMESPath expression applied to the JSON output (implies -json)")
}

func (o outputOptions) validate() error {
	if strings.TrimSpace(o.Query) == "" {
		return nil
	}
	if _, err := jmespath.Compile(o.Query); err != nil {
		return fmt.Errorf("invalid -query: %w", err)
	}
	return nil
}

// emit prints v as JSON when requested, or through table otherwise.
func emit(w io.Writer, o outputOptions, v any, table func(*tabwriter.Writer) error) error {
	if !o.JSON && o.Query == "" && table != nil {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		if err := table(tw); err != nil {
			return err
		}
		return tw.Flush()
	}

	out := v
	if q := strings.TrimSpace(o.Query); q != "" {
		projected, err := project(q, v)
		if err != nil {
			return err
		}
		out = projected
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// project evaluates expr against the JSON form of v, so the expression sees
// the same field names -json prints.
func project(expr string, v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	res, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate -query: %w", err)
	}
	return res, nil
}
