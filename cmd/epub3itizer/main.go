package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epub3itizer/internal/converter"
)

const outputSuffix = "_epub3.opf"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epub3itizer <book.opf|book.epub|book-dir>",
		Short: "Convert EPUB 2 package documents to EPUB 3",
		Long: `epub3itizer rewrites an EPUB 2 package document (OPF) as an
EPUB 3 package document.

The input may be a bare OPF file, an EPUB file or an unpacked EPUB
directory. Manifest and spine properties, and media overlay data that
can only be learned from the rest of the book, are supplied with
--properties as a YAML file.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			logger := opts.Logger

			logger.Info("converting", "input", opts.InputPath, "output", opts.OutputPath)

			report, err := converter.NewPipeline(opts).Convert()
			if err != nil {
				return fmt.Errorf("conversion failed: %w", err)
			}

			for _, lm := range report.Landmarks {
				logger.Debug("landmark", "type", lm.Type, "title", lm.Title, "href", lm.Href)
			}
			logger.Info("done",
				"output", opts.OutputPath,
				"language", report.LanguageTag,
				"unique_id", report.UniqueID,
				"nav_id", report.NavID,
				"html_toc", report.HasHTMLTOC,
				"landmarks", len(report.Landmarks),
			)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Output file path (default: input name with "+outputSuffix+")")
	flags.StringP("properties", "p", "", "YAML file with manifest, spine and media overlay properties")
	flags.Bool("drop-guide", false, "Do not carry the EPUB 2 guide into the output")
	flags.Bool("keep-empty-dc", false, "Keep Dublin Core elements with empty content")
	flags.Bool("strict", false, "Fail when a guide reference points outside the spine")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text, json")
	flags.BoolP("verbose", "v", false, "Shortcut for --log-level debug")
	return cmd
}

func readCLIOptions(cmd *cobra.Command, args []string) (converter.ConvertOptions, error) {
	flags := cmd.Flags()
	inputPath := args[0]

	outputPath, _ := flags.GetString("output")
	propertiesPath, _ := flags.GetString("properties")
	dropGuide, _ := flags.GetBool("drop-guide")
	keepEmptyDC, _ := flags.GetBool("keep-empty-dc")
	strict, _ := flags.GetBool("strict")
	logLevel, _ := flags.GetString("log-level")
	logFormat, _ := flags.GetString("log-format")
	verbose, _ := flags.GetBool("verbose")

	logLevel = strings.ToLower(logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return converter.ConvertOptions{}, fmt.Errorf("--log-level must be one of debug, info, warn, error: %q", logLevel)
	}
	logFormat = strings.ToLower(logFormat)
	switch logFormat {
	case "text", "json":
	default:
		return converter.ConvertOptions{}, fmt.Errorf("--log-format must be text or json: %q", logFormat)
	}
	if verbose {
		logLevel = "debug"
	}

	if outputPath == "" {
		outputPath = defaultOutputPath(inputPath)
	}

	return converter.ConvertOptions{
		InputPath:      inputPath,
		OutputPath:     outputPath,
		PropertiesPath: propertiesPath,
		KeepGuide:      !dropGuide,
		KeepEmptyDC:    keepEmptyDC,
		// Flags typed on the command line win over the properties file.
		KeepGuideExplicit:   flags.Changed("drop-guide"),
		KeepEmptyDCExplicit: flags.Changed("keep-empty-dc"),
		Strict:              strict,
		Logger:              buildLogger(cmd.ErrOrStderr(), logLevel, logFormat),
	}, nil
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: lv}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// defaultOutputPath places the converted OPF next to the input.
func defaultOutputPath(inputPath string) string {
	p := strings.TrimRight(inputPath, string(filepath.Separator))
	if p == "" {
		p = inputPath
	}
	return strings.TrimSuffix(p, filepath.Ext(p)) + outputSuffix
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
