package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"eagerload/internal/eager"
	"eagerload/internal/relation"
	"eagerload/pkg/fastjson"
)

var errCheckFailed = errors.New("check failed")

func HandleCheck(args []string) {
	if err := RunCheck(LoadConfig(), args, os.Stdout); err != nil {
		if !errors.Is(err, errCheckFailed) {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}
}

type checkReport struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
	Plan    []string `json:"plan,omitempty"`
}

// RunCheck validates the relation schema and, with --type and --with, prints
// the order the relation tree would be loaded in without querying anything.
func RunCheck(cfg Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	schemaPath := fs.String("schema", cfg.SchemaPath, "relation schema file")
	isJSON := fs.Bool("json", false, "print the report as JSON")
	typ := fs.String("type", "", "root entity type to plan for")
	with := fs.String("with", "", "comma separated relation paths to plan")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("usage: eagerload check [--json] [--schema file] [--type <type> --with a,b.c]: %w", err)
	}
	if fs.NArg() > 0 {
		*schemaPath = fs.Arg(0)
	}

	report := checkReport{Errors: []string{}}

	schema, err := relation.LoadSchemaFile(*schemaPath)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	} else {
		for _, e := range schema.Validate() {
			report.Errors = append(report.Errors, e.Error())
		}
	}

	if schema != nil && len(report.Errors) == 0 && *typ != "" && *with != "" {
		specs, _ := relationSpecs(*with, "")
		plan, err := eager.New(schema, nil).Plan(*typ, specs...)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
		report.Plan = plan
	}
	report.Success = len(report.Errors) == 0

	if *isJSON {
		b, err := fastjson.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
	} else if report.Success {
		fmt.Fprintf(out, "✅ Schema Valid (%d types)\n", len(schema.Types()))
		for i, alias := range report.Plan {
			fmt.Fprintf(out, "  %d. %s\n", i+1, alias)
		}
	} else {
		fmt.Fprintf(out, "❌ Schema Check Failed (%d errors):\n", len(report.Errors))
		for _, e := range report.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	if !report.Success {
		return errCheckFailed
	}
	return nil
}
