package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/asakaida/remotemodel/internal/connectors/remote"
	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/infrastructure/logger"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/services/parser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// caller invokes a method on a ModelService server
type caller interface {
	Call(ctx context.Context, modelName, method string, id interface{}, args model.Args) (interface{}, error)
	Close() error
}

// dial opens the connection invoke commands use. Tests replace it.
var dial = func(addr string, timeout time.Duration, zl *zap.Logger) (caller, error) {
	return remote.Dial(addr, remote.WithTimeout(timeout), remote.WithLogger(zl))
}

type globalOptions struct {
	addr    string
	timeout time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "modelctl",
		Short:        "Command line client for remotemodel servers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.addr, "addr", "a", "localhost:50051", "ModelService server address")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per call timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log remote calls")

	root.AddCommand(newSchemaCmd())
	root.AddCommand(newCallCmd(opts))
	root.AddCommand(newStaticCmd(opts, "create <model> <data>", "Create a record", model.MethodCreate, "data"))
	root.AddCommand(newStaticCmd(opts, "upsert <model> <data>", "Create or update a record", model.MethodUpsert, "data"))
	root.AddCommand(newStaticCmd(opts, "find <model> [filter]", "Find records", model.MethodFind, "filter"))
	root.AddCommand(newStaticCmd(opts, "find-one <model> [filter]", "Find the first matching record", model.MethodFindOne, "filter"))
	root.AddCommand(newStaticCmd(opts, "count <model> [where]", "Count records", model.MethodCount, "where"))
	root.AddCommand(newStaticCmd(opts, "find-by-id <model> <id>", "Find a record by id", model.MethodFindByID, "id"))
	root.AddCommand(newStaticCmd(opts, "exists <model> <id>", "Check whether a record exists", model.MethodExists, "id"))
	root.AddCommand(newStaticCmd(opts, "delete-by-id <model> <id>", "Delete a record by id", model.MethodDeleteByID, "id"))
	return root
}

func newSchemaCmd() *cobra.Command {
	schema := &cobra.Command{
		Use:   "schema",
		Short: "Work with model schema files",
	}

	schema.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Parse and validate a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := readSchema(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d model(s) OK\n", args[0], len(defs))
			return nil
		},
	})

	var write bool
	format := &cobra.Command{
		Use:   "format <file>",
		Short: "Print a schema in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsl, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read schema: %w", err)
			}
			ast, err := parser.Parse(string(dsl))
			if err != nil {
				return err
			}
			if err := parser.NewValidator(ast).Validate(); err != nil {
				return err
			}
			out := parser.NewGenerator().Generate(ast) + "\n"
			if write {
				return os.WriteFile(args[0], []byte(out), 0o644)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	format.Flags().BoolVarP(&write, "write", "w", false, "Write the result back to the file")
	schema.AddCommand(format)

	return schema
}

// newCallCmd invokes any method, including instance methods and relation accessors
func newCallCmd(opts *globalOptions) *cobra.Command {
	var (
		id      string
		rawArgs string
	)
	cmd := &cobra.Command{
		Use:   "call <model> <method>",
		Short: "Invoke a model method",
		Long: `Invoke a model method by name.
Instance methods such as prototype.updateAttributes or prototype.__get__orders
need --id. Arguments are passed as a JSON object with --args.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs := model.Args{}
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &callArgs); err != nil {
					return fmt.Errorf("invalid --args: %w", err)
				}
			}
			var instanceID interface{}
			if id != "" {
				instanceID = parseJSONValue(id)
			}
			return invoke(cmd, opts, args[0], args[1], instanceID, callArgs)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Instance id for prototype methods")
	cmd.Flags().StringVar(&rawArgs, "args", "", "JSON object of method arguments")
	return cmd
}

// newStaticCmd builds a shortcut for a static method taking a single argument
func newStaticCmd(opts *globalOptions, use, short, method, argName string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs := model.Args{}
			if len(args) == 2 {
				callArgs[argName] = parseJSONValue(args[1])
			}
			return invoke(cmd, opts, args[0], method, nil, callArgs)
		},
	}
}

func invoke(cmd *cobra.Command, opts *globalOptions, modelName, method string, id interface{}, args model.Args) error {
	zl := zap.NewNop()
	if opts.verbose {
		var err error
		zl, err = logger.New(&logger.Config{Level: "debug", Format: "console", Output: "stderr"})
		if err != nil {
			return err
		}
	}

	c, err := dial(opts.addr, opts.timeout, zl)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Call(cmd.Context(), modelName, method, id, args)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

// parseJSONValue decodes s as JSON, falling back to the raw string so that
// bare ids like abc need no quoting
func parseJSONValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func readSchema(path string) ([]*entities.ModelDefinition, error) {
	dsl, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return parser.ParseModels(string(dsl))
}
