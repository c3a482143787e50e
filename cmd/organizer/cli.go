package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/fruitsalade/fruitsalade/organizer/internal/app"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/pipeline"
)

// Exit codes.
const (
	exitFailure  = 1
	exitRejected = 2
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app.App) *cli.App {
	ca := &cli.App{
		Name:    "organizer",
		Usage:   "Classify files in a scope and suggest where they belong",
		Version: Version,
		Commands: []*cli.Command{
			checkCmd(a),
			listCmd(a),
			exifCmd(a),
			classifyCmd(a),
			planCmd(a),
			runCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	ca.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return ca
}

func userFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, EnvVars: []string{"ORGANIZER_USER"}, Usage: "User ID"},
		&cli.StringFlag{Name: "org", Aliases: []string{"o"}, Usage: "Organization ID"},
		&cli.StringFlag{Name: "tier", Aliases: []string{"t"}, Value: models.TierStandard, Usage: "Service tier: Standard|Pro|Veteran"},
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "ext", Usage: "Only include these extensions (repeatable)"},
		&cli.Int64Flag{Name: "min-size", Value: -1, Usage: "Minimum file size in bytes"},
		&cli.Int64Flag{Name: "max-size", Value: -1, Usage: "Maximum file size in bytes"},
		&cli.BoolFlag{Name: "hidden", Usage: "Include hidden files"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Page size (0 = server default)"},
	}
}

func filters(c *cli.Context) models.Filters {
	f := models.Filters{
		Extensions:    c.StringSlice("ext"),
		IncludeHidden: c.Bool("hidden"),
	}
	if v := c.Int64("min-size"); v >= 0 {
		f.MinSize = &v
	}
	if v := c.Int64("max-size"); v >= 0 {
		f.MaxSize = &v
	}
	return f
}

// checkCmd creates the check command.
func checkCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Run the admission checks for a scope",
		ArgsUsage: "<scope>",
		Flags:     userFlags(),
		Action: func(c *cli.Context) error {
			scope, err := requireArg(c, "scope")
			if err != nil {
				return err
			}
			v := a.Gate.Evaluate(c.Context, models.GuardRailRequest{
				UserID: c.String("user"),
				OrgID:  c.String("org"),
				Scope:  scope,
				Tier:   c.String("tier"),
			})
			if err := outputJSON(c, v); err != nil {
				return err
			}
			if !v.OK {
				return cli.Exit("scope rejected", exitRejected)
			}
			return nil
		},
	}
}

// listCmd creates the list command.
func listCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List candidate files in a scope, one page per JSON document",
		ArgsUsage: "<scope>",
		Flags: append(filterFlags(),
			&cli.StringFlag{Name: "cursor", Aliases: []string{"c"}, Usage: "Resume from a previous next_cursor"},
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Follow cursors until the scope is exhausted"},
		),
		Action: func(c *cli.Context) error {
			scope, err := requireArg(c, "scope")
			if err != nil {
				return err
			}
			req := models.ScopeRequest{
				Scope:   scope,
				Cursor:  c.String("cursor"),
				Limit:   c.Int("limit"),
				Filters: filters(c),
			}
			for {
				page, err := a.Enumerator.NextPage(c.Context, req)
				if err != nil {
					return outputError(err)
				}
				if err := outputJSON(c, page); err != nil {
					return err
				}
				if !c.Bool("all") || !page.HasMore {
					return nil
				}
				req.Cursor = page.NextCursor
			}
		},
	}
}

// exifCmd creates the exif command.
func exifCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "exif",
		Usage:     "Extract EXIF metadata from a file",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			key, err := requireArg(c, "file")
			if err != nil {
				return err
			}
			return outputJSON(c, a.Extractor.Extract(c.Context, key))
		},
	}
}

// classifyCmd creates the classify command.
func classifyCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify a file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "size", Value: -1, Usage: "File size in bytes (default: stat the local file)"},
			&cli.StringFlag{Name: "mime", Usage: "MIME type (default: derived from the extension)"},
			&cli.StringFlag{Name: "text", Usage: "Text content to analyze"},
			&cli.StringFlag{Name: "text-file", Usage: "Read text content from this file"},
			&cli.BoolFlag{Name: "no-exif", Usage: "Skip EXIF extraction"},
		},
		Action: func(c *cli.Context) error {
			key, err := requireArg(c, "file")
			if err != nil {
				return err
			}
			req, err := classifyRequest(c, a, key)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, a.Classifier.Classify(req))
		},
	}
}

func classifyRequest(c *cli.Context, a *app.App, key string) (models.ClassifyRequest, error) {
	req := models.ClassifyRequest{
		FileKey:     key,
		Metadata:    models.FileMetadata{Size: c.Int64("size"), MimeType: c.String("mime")},
		TextContent: c.String("text"),
	}
	if req.Metadata.Size < 0 {
		info, err := os.Stat(key)
		if err != nil {
			return req, fmt.Errorf("size unknown, pass --size: %w", err)
		}
		req.Metadata.Size = info.Size()
	}
	if req.Metadata.MimeType == "" {
		req.Metadata.MimeType = a.Rules.MimeType(strings.ToLower(filepath.Ext(key)))
	}
	if path := c.String("text-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("read text file: %w", err)
		}
		req.TextContent = string(data)
	}
	if !c.Bool("no-exif") {
		if ex := a.Extractor.Extract(c.Context, key); ex.HasData {
			req.Exif = &ex.ExifRecord
		}
	}
	return req, nil
}

// planCmd creates the plan command.
func planCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Suggest folders for a classification (reads a plan request or classification JSON from stdin)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "Journal context keyword (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			req, err := readPlanRequest(c.App.Reader)
			if err != nil {
				return outputError(err)
			}
			if kw := c.StringSlice("keyword"); len(kw) > 0 {
				if req.JournalContext == nil {
					req.JournalContext = &models.JournalContext{}
				}
				req.JournalContext.Keywords = append(req.JournalContext.Keywords, kw...)
			}
			return outputJSON(c, a.Planner.Plan(req))
		},
	}
}

// readPlanRequest accepts either a full plan request or a bare
// classification as printed by the classify command.
func readPlanRequest(r io.Reader) (models.PlanRequest, error) {
	var req models.PlanRequest
	data, err := io.ReadAll(r)
	if err != nil {
		return req, fmt.Errorf("read stdin: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return req, errors.New("a classification must be piped via stdin")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, ok := fields["classification"]; ok {
		err = json.Unmarshal(data, &req)
	} else {
		err = json.Unmarshal(data, &req.Classification)
	}
	if err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	return req, nil
}

// runCmd creates the run command.
func runCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a full organization job and print its manifest",
		ArgsUsage: "<scope>",
		Flags: append(append(userFlags(), filterFlags()...),
			&cli.StringSliceFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "Journal context keyword (repeatable)"},
		),
		Action: func(c *cli.Context) error {
			scope, err := requireArg(c, "scope")
			if err != nil {
				return err
			}
			req := pipeline.JobRequest{
				UserID:    c.String("user"),
				OrgID:     c.String("org"),
				Scope:     scope,
				Tier:      c.String("tier"),
				Filters:   filters(c),
				PageLimit: c.Int("limit"),
			}
			if kw := c.StringSlice("keyword"); len(kw) > 0 {
				req.JournalContext = &models.JournalContext{Keywords: kw}
			}

			m, runErr := a.Runner.Run(c.Context, req)
			if m == nil {
				return outputError(runErr)
			}
			if err := outputJSON(c, m); err != nil {
				return err
			}
			switch m.Status {
			case pipeline.StatusRejected:
				return cli.Exit("job rejected: "+strings.Join(m.Verdict.Warnings, "; "), exitRejected)
			case pipeline.StatusCompleted:
				return nil
			default:
				return cli.Exit("job "+m.Status+": "+m.Error, exitFailure)
			}
		},
	}
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() < 1 || c.Args().First() == "" {
		return "", cli.Exit(name+" argument is required", exitFailure)
	}
	return c.Args().First(), nil
}

// outputJSON writes v as indented JSON to the app's writer.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	return cli.Exit(err.Error(), exitFailure)
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return exitFailure
}
