package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"forumrag/internal/config"
	"forumrag/internal/ingest"
	"forumrag/internal/logging"
	"forumrag/internal/synth"
	"forumrag/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath string
		logFile    string
		limit      int
		plain      bool
		noStream   bool
		source     string
	)

	rootCmd := &cobra.Command{
		Use:           "forumrag",
		Short:         "Semantic search and question answering over scraped forum posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/forumrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	// setup loads config and opens the stores. quiet discards logs unless a
	// log file was given, for the full-screen REPL.
	setup := func(quiet bool) (*app, func(), error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		out, closeLog, err := logOutput(logFile, quiet)
		if err != nil {
			return nil, nil, err
		}
		logger := logging.New(out, cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)
		for _, w := range cfg.Validate() {
			logger.Warn("config", "warning", w)
		}
		a, err := openApp(context.Background(), cfg, logger)
		if err != nil {
			closeLog()
			return nil, nil, err
		}
		return a, func() { _ = a.Close(); closeLog() }, nil
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <file.json|file.jsonl>...",
		Short: "Embed and store scraped posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := setup(false)
			if err != nil {
				return err
			}
			defer done()
			if source == "" {
				source = a.cfg.Source
			}
			var total ingest.Stats
			for _, path := range args {
				records, err := ingest.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				fmt.Printf("Extracted %d posts from %s\n", len(records), path)
				st, err := a.ingestor.Ingest(cmd.Context(), source, records)
				total.Seen += st.Seen
				total.Saved += st.Saved
				total.Skipped += st.Skipped
				total.Failed += st.Failed
				if err != nil {
					return err
				}
				fmt.Printf("  -> Saved %d posts from %s\n", st.Saved, path)
			}
			fmt.Println("\n=== INGEST COMPLETE ===")
			fmt.Printf("Total posts extracted: %d\n", total.Seen)
			fmt.Printf("Total posts saved: %d\n", total.Saved)
			fmt.Printf("Skipped (no text): %d\n", total.Skipped)
			fmt.Printf("Failed: %d\n", total.Failed)
			fmt.Printf("Embedding backend: %s\n", a.store.Backend())
			return nil
		},
	}
	ingestCmd.Flags().StringVar(&source, "source", "", "Source label stored with each post (default from config)")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for similar posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := setup(false)
			if err != nil {
				return err
			}
			defer done()
			n := limit
			if n <= 0 {
				n = a.cfg.Retrieval.SearchLimit
			}
			s := tui.NewSession(a.query, nil, n)
			fmt.Println(s.Search(cmd.Context(), strings.Join(args, " ")))
			return nil
		},
	}
	searchCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of posts to return (default from config)")

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the stored posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := setup(false)
			if err != nil {
				return err
			}
			defer done()
			rag, err := a.ragService()
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			if noStream {
				ans, err := rag.Ask(cmd.Context(), question)
				if err != nil {
					return err
				}
				fmt.Println(ans.Text)
				return nil
			}
			stream, _, err := rag.AskStream(cmd.Context(), question)
			if err != nil {
				return err
			}
			defer stream.Close()
			for {
				frag, ok := stream.Next()
				if !ok {
					break
				}
				switch frag.Kind {
				case synth.FragmentText:
					fmt.Print(frag.Text)
				case synth.FragmentError:
					fmt.Println()
					return frag.Err
				}
			}
			fmt.Println()
			return nil
		},
	}
	askCmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full answer instead of streaming")

	postCmd := &cobra.Command{
		Use:   "post <id>",
		Short: "Show a stored post by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid post id %q", args[0])
			}
			a, done, err := setup(false)
			if err != nil {
				return err
			}
			defer done()
			fmt.Println(tui.NewSession(a.query, nil, 1).Post(cmd.Context(), args[0]))
			return nil
		},
	}

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive search and question answering (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			usePlain := plain || !term.IsTerminal(int(os.Stdin.Fd()))
			a, done, err := setup(!usePlain)
			if err != nil {
				return err
			}
			defer done()
			rag, err := a.ragService()
			if err != nil {
				return err
			}
			session := tui.NewSession(a.query, rag, a.cfg.Retrieval.SearchLimit)
			if usePlain {
				return tui.RunPlain(cmd.Context(), session, os.Stdin, os.Stdout)
			}
			count, err := a.docs.Count(cmd.Context())
			if err != nil {
				return err
			}
			banner := fmt.Sprintf("%d posts indexed, %s backend", count, a.store.Backend())
			_, err = tea.NewProgram(tui.New(session, banner), tea.WithAltScreen()).Run()
			return err
		},
	}
	replCmd.Flags().BoolVar(&plain, "plain", false, "Line-oriented REPL without the full-screen interface")

	rootCmd.RunE = replCmd.RunE
	rootCmd.Flags().AddFlagSet(replCmd.Flags())
	rootCmd.AddCommand(ingestCmd, searchCmd, askCmd, postCmd, replCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

func logOutput(path string, quiet bool) (io.Writer, func(), error) {
	if path == "" {
		if quiet {
			return io.Discard, func() {}, nil
		}
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
