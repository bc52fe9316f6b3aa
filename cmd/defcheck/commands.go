package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/defcheck/catalog"
	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/validation"
)

func validateCmd(g *globals) *cobra.Command {
	var (
		begrip        string
		text          string
		file          string
		category      string
		profile       string
		correlationID string
		output        string
		strict        bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate one definition",
		Long: `Validate one definition text for a begrip.

The text is taken from --text, from --file, or from stdin when neither is
given. With --strict the command exits with status 3 when the definition
is not acceptable.`,
		Example: `  defcheck validate --begrip verificatie --category proces \
    --text "Proces waarbij identiteitsgegevens worden gecontroleerd tegen bronregistraties"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				data, err := readInput(cmd, file)
				if err != nil {
					return err
				}
				text = string(data)
			}

			app, err := g.startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Shutdown()

			res, err := app.orchestrator.ValidateText(cmd.Context(), begrip, text, contract.OntologicalCategory(category), &contract.Context{
				CorrelationID: correlationID,
				Profile:       profile,
			})
			if err != nil {
				return err
			}

			if err := writeResult(cmd.OutOrStdout(), output, res, app.service); err != nil {
				return err
			}
			if strict && !res.IsAcceptable {
				return errUnacceptable
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&begrip, "begrip", "b", "", "Term being defined")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Definition text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the definition text from a file (- for stdin)")
	cmd.Flags().StringVar(&category, "category", "", "Ontological category (type, proces, resultaat, exemplaar)")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Catalog profile")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation ID (generated when empty)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format (json, text)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with status 3 when the definition is not acceptable")
	_ = cmd.MarkFlagRequired("begrip")
	return cmd
}

func batchCmd(g *globals) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Validate a batch of definitions",
		Long: `Validate every request in FILE (- for stdin) and print the results in
input order. FILE holds a JSON array of requests or an object with an
"items" array.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			items, err := decodeBatch(data)
			if err != nil {
				return err
			}

			app, err := g.startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Shutdown()

			results, err := app.orchestrator.BatchValidate(cmd.Context(), items, concurrency)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"results": results})
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Items validated in parallel")
	return cmd
}

func decodeBatch(data []byte) ([]contract.Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []contract.Request
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return items, nil
	}
	var wrapped struct {
		Items []contract.Request `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return wrapped.Items, nil
}

func catalogCmd(g *globals) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the active rule catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			var source catalog.Source = catalog.EmbeddedSource{}
			if g.cfg.Catalog.Path != "" {
				source = catalog.FileSource{Path: g.cfg.Catalog.Path}
			}
			snap, err := source.Load(cmd.Context())
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), snap, profile)
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Only show rules selected by this profile")

	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Check a catalog file without activating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: version %s, %d rules, %d profiles\n",
				args[0], snap.Version(), snap.Len(), len(snap.Profiles()))
			return nil
		},
	})
	return cmd
}

func printCatalog(w io.Writer, snap *catalog.Snapshot, profile string) error {
	defs := snap.Rules()
	if profile != "" {
		var err error
		if defs, err = snap.RulesFor(profile); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "Catalog %s (%s)\n", snap.Version(), snap.Source())
	if profiles := snap.Profiles(); len(profiles) > 0 {
		fmt.Fprintf(w, "Profiles: %s\n", strings.Join(profiles, ", "))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tCATEGORY\tSEVERITY\tWEIGHT\tENABLED")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%t\n", d.Code, d.Category, d.Severity, d.Weight, d.Enabled)
	}
	return tw.Flush()
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [VERSION]",
		Short: "Print the JSON Schema of the result contract",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := contract.CurrentVersion
			if len(args) == 1 {
				version = args[0]
			}
			data, err := contract.Schema(version)
			if err != nil {
				return fmt.Errorf("%w (available: %s)", err, strings.Join(contract.Versions(), ", "))
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	var upgrade bool
	check := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a result document against its schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if upgrade {
				res, err := contract.UpgradeLegacy(data)
				if err != nil {
					return err
				}
				if err := contract.ValidateResult(res); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			}

			var head struct {
				Version string `json:"version"`
			}
			if err := json.Unmarshal(data, &head); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			if err := contract.ValidateJSON(head.Version, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid (contract %s)\n", head.Version)
			return nil
		},
	}
	check.Flags().BoolVar(&upgrade, "upgrade", false, "Upgrade a legacy metadata result before checking and print it")
	cmd.AddCommand(check)
	return cmd
}

func serveCmd(g *globals) *cobra.Command {
	var (
		addr     string
		noHTTP   bool
		withNATS bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and NATS APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app, err := g.startApp(ctx)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if withNATS || (g.cfg.NATS.URL != "" && !cmd.Flags().Changed("nats")) {
				if err := app.ServeNATS(ctx); err != nil {
					return err
				}
			}

			if noHTTP {
				g.logger.Info("defcheck ready", "version", Version, "http", false)
				<-ctx.Done()
				return nil
			}

			if addr == "" {
				addr = g.cfg.HTTP.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           app.HTTPHandler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				g.logger.Info("defcheck ready", "version", Version, "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
				g.logger.Info("Received shutdown signal")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				g.logger.Error("Error stopping HTTP server", "error", err)
			}
			g.logger.Info("defcheck shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Disable the HTTP API")
	cmd.Flags().BoolVar(&withNATS, "nats", false, "Serve the NATS API (default: when nats.url is set)")
	return cmd
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeResult(w io.Writer, format string, res *contract.Result, svc *validation.Service) error {
	switch format {
	case "json":
		return writeJSON(w, res)
	case "text":
		if res.IsAcceptable {
			_, err := fmt.Fprintf(w, "Acceptable (score %.2f)\n", res.OverallScore)
			return err
		}
		_, err := io.WriteString(w, svc.Feedback(res))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
