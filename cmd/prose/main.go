// Command prose is the OpenProse frontend driver: it checks programs,
// rewrites them in canonical form, and dumps semantic tokens for editor
// integration debugging.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/irl-dan/openprose/core/types"
	"github.com/irl-dan/openprose/runtime/compiler"
	"github.com/irl-dan/openprose/runtime/parser"
	"github.com/irl-dan/openprose/runtime/semtok"
	"github.com/irl-dan/openprose/runtime/validation"
)

// Exit code constants
const (
	ExitSuccess          = 0
	ExitInvalidArguments = 1
	ExitIOError          = 2
	ExitParseError       = 3
	ExitValidationError  = 4
)

// projectConfig is the optional .prose.yaml in the working directory.
// Flags win over config values.
type projectConfig struct {
	Indent   string `yaml:"indent"`
	Comments bool   `yaml:"comments"`
}

func loadProjectConfig() projectConfig {
	cfg := projectConfig{Indent: "  "}
	data, err := os.ReadFile(".prose.yaml")
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ignoring malformed .prose.yaml: %v\n", err)
		return projectConfig{Indent: "  "}
	}
	if cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return cfg
}

func readSource(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(ExitIOError)
	}
	return data
}

func printDiagnostics(path string, diags []types.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "%s:%d:%d: %s: %s\n",
			path, d.Span.Start.Line, d.Span.Start.Column, d.Severity, d.Message)
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Tokenize, parse, and validate a program",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := args[0]
			source := readSource(path)

			parsed := parser.Parse(source)
			printDiagnostics(path, parsed.Errors)
			if hasErrors(parsed.Errors) {
				os.Exit(ExitParseError)
			}

			result := validation.Validate(parsed.Program)
			printDiagnostics(path, result.Errors)
			printDiagnostics(path, result.Warnings)
			if !result.Valid {
				os.Exit(ExitValidationError)
			}
		},
	}
}

func hasErrors(diags []types.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == types.SeverityError {
			return true
		}
	}
	return false
}

func newFmtCmd() *cobra.Command {
	var write bool
	var comments bool

	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "Print a program in canonical form",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadProjectConfig()
			if !cmd.Flags().Changed("comments") {
				comments = cfg.Comments
			}

			path := args[0]
			source := readSource(path)

			parsed := parser.Parse(source)
			if hasErrors(parsed.Errors) {
				printDiagnostics(path, parsed.Errors)
				os.Exit(ExitParseError)
			}

			out := compiler.Compile(parsed.Program,
				compiler.WithComments(comments),
				compiler.WithIndent(cfg.Indent),
			)
			if write {
				if err := os.WriteFile(path, []byte(out.Code), 0o644); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
					os.Exit(ExitIOError)
				}
				return
			}
			fmt.Print(out.Code)
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "rewrite the file in place")
	cmd.Flags().BoolVar(&comments, "comments", false, "preserve comments in the output")
	return cmd
}

func newTokensCmd() *cobra.Command {
	var encoded bool

	cmd := &cobra.Command{
		Use:   "tokens <file>",
		Short: "Dump semantic tokens for editor integration debugging",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			source := readSource(args[0])
			tokens := semtok.Tokens(source)
			if encoded {
				for _, n := range semtok.Encode(tokens) {
					fmt.Printf("%d ", n)
				}
				fmt.Println()
				return
			}
			for _, tok := range tokens {
				fmt.Printf("%d:%d len=%d %s\n", tok.Line, tok.Column, tok.Length, tok.Category)
			}
		},
	}
	cmd.Flags().BoolVar(&encoded, "encoded", false, "print the delta-encoded integer stream")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "prose",
		Short:         "OpenProse language tooling",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newCheckCmd(), newFmtCmd(), newTokensCmd())

	if err := root.Execute(); err != nil {
		os.Exit(ExitInvalidArguments)
	}
}
