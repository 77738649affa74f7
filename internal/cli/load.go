package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"eagerload/internal/api"
	"eagerload/internal/eager"
	"eagerload/internal/memstore"
	"eagerload/internal/relation"
	"eagerload/internal/sqlstore"
	"eagerload/pkg/fastjson"
	"eagerload/pkg/logger"
)

func HandleLoad(args []string) {
	cfg := LoadConfig()
	logger.SetupWriter(cfg.Env, os.Stderr)
	if err := RunLoad(context.Background(), cfg, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// RunLoad reads root rows by id, eager-loads the requested relations and
// writes the tree as JSON to out.
func RunLoad(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	schemaPath := fs.String("schema", cfg.SchemaPath, "relation schema file")
	typ := fs.String("type", "", "root entity type")
	ids := fs.String("ids", "", "comma separated root ids")
	key := fs.String("key", "id", "root key column")
	with := fs.String("with", "", "comma separated relation paths")
	withJSON := fs.String("with-json", "", "relation spec as JSON")
	fixtures := fs.String("fixtures", "", "JSON fixture file to load from instead of the database")
	parallel := fs.Bool("parallel", cfg.Parallel, "load top-level relations concurrently")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("usage: eagerload load --type <type> --ids 1,2 [--with a,b.c] [--with-json '{...}'] [--schema file] [--fixtures file]: %w", err)
	}

	if *typ == "" || *ids == "" {
		return errors.New("--type and --ids are required")
	}

	specs, err := relationSpecs(*with, *withJSON)
	if err != nil {
		return err
	}

	schema, err := relation.LoadSchemaFile(*schemaPath)
	if err != nil {
		return err
	}
	if !schema.HasType(*typ) {
		return fmt.Errorf("type %q is not in the relation schema", *typ)
	}

	exec, closeFn, err := openExecutor(cfg, *fixtures)
	if err != nil {
		return err
	}
	defer closeFn()

	q := exec.Query(*typ)
	q.WhereIn(*key, parseIDs(*ids))
	roots, err := q.Fetch(ctx)
	if err != nil {
		return err
	}

	if len(specs) > 0 {
		eng := eager.New(schema, exec, eager.WithLogger(logger.Log), eager.WithParallelBranches(*parallel))
		if _, err := eng.Load(ctx, eager.Many(roots), *typ, specs...); err != nil {
			return err
		}
	}

	if roots == nil {
		roots = []eager.Entity{}
	}
	b, err := fastjson.MarshalIndent(roots, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func relationSpecs(with, withJSON string) ([]any, error) {
	var specs []any
	if with != "" {
		var paths []string
		for _, p := range strings.Split(with, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		specs = append(specs, paths)
	}
	if withJSON != "" {
		var ws api.WithSpec
		if err := fastjson.Unmarshal([]byte(withJSON), &ws); err != nil {
			return nil, fmt.Errorf("--with-json: %w", err)
		}
		if err := ws.Validate(); err != nil {
			return nil, fmt.Errorf("--with-json: %w", err)
		}
		specs = append(specs, ws.Relations())
	}
	return specs, nil
}

// openExecutor returns the fixture-backed memstore when fixtures is set,
// the configured database otherwise.
func openExecutor(cfg Config, fixtures string) (eager.Executor, func(), error) {
	if fixtures != "" {
		store := memstore.New()
		if err := store.LoadFile(fixtures); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	dbMgr, err := cfg.OpenDB()
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlstore.FromManager(dbMgr, "default")
	if err != nil {
		dbMgr.Close()
		return nil, nil, err
	}
	return store, func() { dbMgr.Close() }, nil
}

// parseIDs keeps integer ids as int64 so they bind as numbers.
func parseIDs(s string) []interface{} {
	var out []interface{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, n)
			continue
		}
		out = append(out, p)
	}
	return out
}
