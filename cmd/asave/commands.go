package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/asave/internal/config"
	"github.com/kalambet/asave/internal/ingest"
)

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

// withApp opens the shared components for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := openApp(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full analysis pipeline over one FAS section",
	Long: `Run ambiguity detection, context retrieval, suggestion and validation
over one section of a Financial Accounting Standard.

Examples:
  asave analyze --fas FAS_4.pdf --ss SS_12.pdf --file section.txt
  asave analyze --fas FAS_4.pdf --text "Losses are borne by the partners..." --label "FAS 4"
  cat section.txt | asave analyze --fas FAS_4.pdf --file - --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fas, _ := cmd.Flags().GetString("fas")
		ss, _ := cmd.Flags().GetString("ss")
		label, _ := cmd.Flags().GetString("label")
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		asJSON, _ := cmd.Flags().GetBool("json")

		if fas == "" {
			return errors.New("--fas is required")
		}
		sectionText, err := readInput(text, file, "section text")
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.loadStandards(ctx, fas, ss); err != nil {
				return err
			}
			printStep("Analyzing section (%d chars)...", len(sectionText))
			res := a.service.RunOrchestration(ctx, sectionText, label)

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res)
			}
			if res.Halted() {
				return fmt.Errorf("analysis halted at %s", res.Stage)
			}
			return nil
		})
	},
}

func init() {
	analyzeCmd.Flags().String("fas", "", "FAS document to analyze against (file name in the documents directory or a path)")
	analyzeCmd.Flags().String("ss", "", "Shari'ah Standard document used for context and validation")
	analyzeCmd.Flags().String("label", "", "label for the FAS in prompts (default: the FAS document id)")
	analyzeCmd.Flags().String("text", "", "section text")
	analyzeCmd.Flags().String("file", "", "file containing the section text (- for stdin)")
	analyzeCmd.Flags().Bool("json", false, "print the full result as JSON")
}

// --- mine ---

var mineCmd = &cobra.Command{
	Use:   "mine <ss-document>...",
	Short: "Mine explicit Shari'ah compliance rules from SS documents",
	Long: `Extract rule candidates from each Shari'ah Standard, normalize them into
structured rules and write one JSON file per document plus a combined file.

Example:
  asave mine SS_8_Murabaha.pdf SS_12_Musharaka.pdf --out ./rules`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = appConfig.Storage.RulesOutputDir
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			printStep("Mining rules from %d document(s) into %s...", len(args), out)
			rep := a.service.MineRules(ctx, args, out)
			printBatchReport(cmd.OutOrStdout(), rep)
			if !rep.OK() {
				return errors.New("no rules were mined")
			}
			printSuccess("Mined %d rules", rep.Total)
			return nil
		})
	},
}

func init() {
	mineCmd.Flags().String("out", "", "output directory for rule files (default: storage.rules_output_dir)")
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <document>...",
	Short: "Chunk and embed documents into the vector store",
	Long: `Index documents synchronously. Each document is rebuilt from scratch;
its id is the file's base name.

Example:
  asave index FAS_4.pdf ./standards/SS_12.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var failed int
			for _, name := range args {
				path, err := a.indexer.Resolve(name)
				if err != nil {
					printError("%s: %v", name, err)
					failed++
					continue
				}
				if !ingest.Supported(path) {
					printError("%s: unsupported document type", name)
					failed++
					continue
				}
				id := ingest.DocumentID(path)
				printStep("Indexing %s...", id)
				n, err := a.indexer.Index(ctx, id, path)
				if err != nil {
					printError("%s: %v", id, err)
					failed++
					continue
				}
				printSuccess("%s: %d chunks", id, n)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed to index", failed, len(args))
			}
			return nil
		})
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <document> <query>",
	Short: "Semantic search over one indexed document",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		doc, query := args[0], strings.Join(args[1:], " ")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			snippets, err := a.service.Search(ctx, doc, query, limit)
			if err != nil {
				return err
			}
			printSnippets(cmd.OutOrStdout(), snippets)
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- definitions ---

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "Extract defined terms from a passage",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		passage, err := readInput(text, file, "passage")
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			defs, res, err := a.service.ExtractDefinitions(ctx, passage)
			if err != nil {
				if !res.Failed && res.Text != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), res.Text)
				}
				return fmt.Errorf("extracting definitions: %w", err)
			}
			printDefinitions(cmd.OutOrStdout(), defs)
			return nil
		})
	},
}

func init() {
	definitionsCmd.Flags().String("text", "", "passage text")
	definitionsCmd.Flags().String("file", "", "file containing the passage (- for stdin)")
}

// --- clauses ---

var clausesCmd = &cobra.Command{
	Use:   "clauses <topic>",
	Short: "Identify the FAS clauses that address a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fas, _ := cmd.Flags().GetString("fas")
		name, _ := cmd.Flags().GetString("standard")
		if fas == "" {
			return errors.New("--fas is required")
		}
		topic := strings.Join(args, " ")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.loadStandards(ctx, fas, ""); err != nil {
				return err
			}
			ans := a.service.IdentifyKeyClauses(ctx, topic, name)
			if ans.Failed {
				return fmt.Errorf("identifying clauses: %w", ans.Err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
			if len(ans.Sources) > 0 {
				printStatus("Sources", "%s", strings.Join(ans.Sources, ", "))
			}
			return nil
		})
	},
}

func init() {
	clausesCmd.Flags().String("fas", "", "FAS document to search")
	clausesCmd.Flags().String("standard", "", "standard name used in the prompt (default: the FAS document id)")
}

// --- enhance ---

var enhanceCmd = &cobra.Command{
	Use:   "enhance <gap description>",
	Short: "Draft a new clause that closes a gap in a standard",
	Long: `Draft a clause for a gap in a standard. With --fas (and optionally --ss)
the proposal is grounded in excerpts retrieved from those documents.

Example:
  asave enhance "treatment of crypto-asset collateral" --fas FAS_4.pdf --ss SS_12.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fas, _ := cmd.Flags().GetString("fas")
		ss, _ := cmd.Flags().GetString("ss")
		name, _ := cmd.Flags().GetString("standard")
		external, _ := cmd.Flags().GetString("context")
		gap := strings.Join(args, " ")
		if fas == "" && name == "" {
			return errors.New("one of --fas or --standard is required")
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if fas != "" {
				if err := a.loadStandards(ctx, fas, ss); err != nil {
					return err
				}
			}
			e := a.service.ProposeEnhancement(ctx, gap, name, external)
			printEnhancement(cmd.OutOrStdout(), e)
			if e.Failed {
				return errors.New("enhancement generation failed")
			}
			return nil
		})
	},
}

func init() {
	enhanceCmd.Flags().String("fas", "", "FAS document used for grounding")
	enhanceCmd.Flags().String("ss", "", "Shari'ah Standard used for grounding")
	enhanceCmd.Flags().String("standard", "", "name of the standard being enhanced (default: the FAS document id)")
	enhanceCmd.Flags().String("context", "", "external context, such as market practice notes")
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List or queue documents on a running server",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered documents and their index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/documents")
		if err != nil {
			return err
		}

		var docs []struct {
			ID         string `json:"id"`
			Kind       string `json:"kind"`
			Status     string `json:"status"`
			ChunkCount int    `json:"chunk_count"`
			LastError  string `json:"last_error"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No documents registered.")
			return nil
		}
		for _, d := range docs {
			kind := d.Kind
			if kind == "" {
				kind = "-"
			}
			line := fmt.Sprintf("%s  %-3s  %-8s %5d chunks", colorize(colorCyan, d.ID), kind, d.Status, d.ChunkCount)
			if d.LastError != "" {
				line += "  " + colorize(colorRed, d.LastError)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var documentsAddCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Queue documents for background indexing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return queueDocuments(cmd.Context(), client, args)
	},
}

func queueDocuments(ctx context.Context, client *apiClient, paths []string) error {
	var failed int
	for _, p := range paths {
		resp, err := client.post(ctx, "/documents", map[string]string{"path": absPath(p)})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			printError("%s: %v", p, err)
			failed++
			continue
		}
		printSuccess("Queued %s (job %s)", result["document_id"], result["job_id"])
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents could not be queued", failed, len(paths))
	}
	return nil
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsAddCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		printStatus("Config file", "%s", config.ConfigFilePath())
		for _, k := range config.ShowAll(appConfig) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		if err := appConfig.Validate(); err != nil {
			printWarning("%v", err)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
