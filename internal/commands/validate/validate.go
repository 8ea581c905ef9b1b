// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package validate implements 'rulegen validate', which checks rules
// documents against the rules schema and a capability catalog.
package validate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/rulegen/internal/commands/shared"
	"github.com/tombee/rulegen/pkg/constrain"
)

type options struct {
	catalogPath string
	schemaOnly  bool
}

// fileResult is the outcome for one rules file.
type fileResult struct {
	File         string                `json:"file"`
	Valid        bool                  `json:"valid"`
	SchemaErrors []string              `json:"schema_errors,omitempty"`
	Violations   []constrain.Violation `json:"violations,omitempty"`
	Errors       []shared.JSONError    `json:"errors,omitempty"`
}

type jsonOutput struct {
	shared.JSONResponse
	CatalogChecked bool         `json:"catalog_checked"`
	Files          []fileResult `json:"files"`
}

// NewCommand creates the validate command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "validate <file|glob>...",
		Short: "Validate rules documents against the schema and catalog",
		Long: `Validate checks JSON or YAML rules documents offline. Each document must
match the rules schema, and every trigger source, action type and connector
it references must exist in the capability catalog.

The catalog is read from --catalog, or fetched from the configured platform
when the flag is omitted. --schema-only skips the catalog check entirely.

Arguments may be doublestar globs such as "rules/**/*.json".`,
		Example: `  rulegen validate rules.json --catalog catalog.yaml
  rulegen validate "generated/**/*.json" --schema-only
  rulegen validate rules.json --json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Capability catalog file (JSON or YAML)")
	cmd.Flags().BoolVar(&opts.schemaOnly, "schema-only", false, "Skip the catalog check")

	return cmd
}

func run(cmd *cobra.Command, args []string, opts options) error {
	files, err := expand(args)
	if err != nil {
		return err
	}

	var allowlist *constrain.Allowlist
	if !opts.schemaOnly {
		catalog, err := shared.ResolveCatalog(cmd.Context(), opts.catalogPath)
		if err != nil {
			return err
		}
		allowlist = constrain.BuildAllowlist(catalog)
	}

	results := make([]fileResult, 0, len(files))
	failed := 0
	for _, f := range files {
		r := validateFile(f, allowlist)
		if !r.Valid {
			failed++
		}
		results = append(results, r)
	}

	if shared.GetJSON() {
		out := jsonOutput{
			JSONResponse:   shared.NewJSONResponse("validate", failed == 0),
			CatalogChecked: allowlist.Active(),
			Files:          results,
		}
		if err := shared.WriteJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		report(cmd.OutOrStdout(), cmd.ErrOrStderr(), results, allowlist)
	}

	if failed > 0 {
		return shared.NewInvalidRulesError(fmt.Sprintf("%d of %d files failed validation", failed, len(files)), nil)
	}
	return nil
}

// expand resolves each argument as a doublestar pattern. Plain paths that
// match nothing are kept so that the missing file is reported.
func expand(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, shared.NewConfigError(fmt.Sprintf("invalid pattern %q", arg), err)
		}
		if len(matches) == 0 {
			if strings.ContainsAny(arg, "*?[{") {
				return nil, shared.NewConfigError(fmt.Sprintf("no files match %q", arg), nil)
			}
			matches = []string{arg}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	return files, nil
}

func validateFile(path string, allowlist *constrain.Allowlist) fileResult {
	r := fileResult{File: path}

	doc, jerr := readDocument(path)
	if jerr != nil {
		r.Errors = []shared.JSONError{*jerr}
		return r
	}

	r.SchemaErrors = constrain.ValidateSchema(doc)
	if obj, ok := doc.(map[string]any); ok {
		r.Violations = constrain.ValidateAllowlist(obj, allowlist)
	}
	r.Valid = len(r.SchemaErrors) == 0 && len(r.Violations) == 0
	return r
}

func readDocument(path string) (any, *shared.JSONError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &shared.JSONError{
			Code:       shared.ErrorCodeFileNotFound,
			Message:    err.Error(),
			File:       path,
			Suggestion: "Check that the file path is correct",
		}
	}

	var doc any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, &shared.JSONError{
			Code:    shared.ErrorCodeInvalidJSON,
			Message: err.Error(),
			File:    path,
		}
	}
	return doc, nil
}

func report(out, errOut io.Writer, results []fileResult, allowlist *constrain.Allowlist) {
	for _, r := range results {
		if r.Valid {
			fmt.Fprintln(out, shared.RenderOK(r.File))
			continue
		}
		fmt.Fprintln(errOut, shared.RenderError(r.File))
		for _, e := range r.Errors {
			fmt.Fprintf(errOut, "  %s\n", e.Message)
		}
		for _, msg := range r.SchemaErrors {
			fmt.Fprintf(errOut, "  schema: %s\n", msg)
		}
		for _, v := range r.Violations {
			fmt.Fprintf(errOut, "  %s: %s\n", v.Field, v.Message)
		}
	}
	if !allowlist.Active() {
		fmt.Fprintln(errOut, shared.RenderMuted("catalog not checked"))
	}
}
