package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"topwr_rag/internal/config"
	"topwr_rag/internal/core"
	"topwr_rag/internal/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	sessionID   string
	metricsAddr string
	verbose     bool

	rootCmd = &cobra.Command{
		Use:           "topwr-rag",
		Short:         "Answer questions about Wroclaw University of Science and Technology",
		Long:          `topwr-rag answers questions by generating Cypher queries against the university knowledge graph, repairing them when they fail to validate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation on stdin",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Print the journaled exchanges of a session",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Print the graph schema the query prompts see",
		Args:  cobra.NoArgs,
		RunE:  runSchema,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	askCmd.Flags().StringVarP(&sessionID, "session", "s", "", "conversation session id (default session when empty)")
	askCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print route, query and correction details")
	chatCmd.Flags().StringVarP(&sessionID, "session", "s", "", "conversation session id (a new one when empty)")
	chatCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print route, query and correction details")
	historyCmd.Flags().StringVarP(&sessionID, "session", "s", "", "conversation session id (default session when empty)")

	rootCmd.AddCommand(askCmd, chatCmd, historyCmd, schemaCmd)
}

// setup loads configuration, initializes logging and wires the pipeline
func setup(ctx context.Context, cmd *cobra.Command) (*app, context.Context, error) {
	cfg, err := config.LoadConfig(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, ctx, err
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, ctx, fmt.Errorf("invalid configuration:\n%w", err)
	}

	log, err := logger.InitLogger(cfg.Log)
	if err != nil {
		return nil, ctx, err
	}
	ctx = log.WithContext(ctx)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return nil, ctx, err
	}
	return a, ctx, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, ctx, err := setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	question := strings.Join(args, " ")
	out, err := a.processor.Run(ctx, core.ProcessorInput{Question: question, SessionID: sessionID})
	if err != nil {
		return err
	}
	printOutput(cmd, out)
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, ctx, err := setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	session := sessionID
	if session == "" {
		session = uuid.NewString()
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session %s. Type '/reset' to forget the conversation, '/refresh-schema' to reload the graph schema, 'exit' to quit.\n", session)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(w, "\n> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/reset":
			if err := a.processor.Reset(ctx, session); err != nil {
				fmt.Fprintf(w, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(w, "Conversation cleared.")
			continue
		case "/refresh-schema":
			a.schema.Invalidate()
			if _, err := a.schema.Schema(ctx); err != nil {
				fmt.Fprintf(w, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(w, "Schema reloaded.")
			continue
		}

		out, err := a.processor.Run(ctx, core.ProcessorInput{Question: question, SessionID: session})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zerolog.Ctx(ctx).Error().Err(err).Msg("Question failed")
			fmt.Fprintf(w, "Error: %v\n", err)
			continue
		}
		printOutput(cmd, out)
	}
	return scanner.Err()
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, ctx, err := setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if a.journal == nil {
		return errors.New("journal is disabled, set journal.dir to record exchanges")
	}
	session := sessionID
	if session == "" {
		session = a.defaultSession
	}
	records, err := a.journal.Load(ctx, session)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintf(w, "No exchanges recorded for session %s.\n", session)
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(w, "[%s] %s\n", r.Timestamp.Local().Format(time.DateTime), r.Question)
		if r.Query != "" {
			fmt.Fprintf(w, "  query: %s (%d corrections, %s)\n", r.Query, r.CorrectionAttempts, r.Repair)
		}
		fmt.Fprintf(w, "  %s\n\n", r.Answer)
	}
	return nil
}

func runSchema(cmd *cobra.Command, _ []string) error {
	a, ctx, err := setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	text, err := a.schema.Schema(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func printOutput(cmd *cobra.Command, out *core.ProcessorOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, out.Answer)
	if !verbose {
		return
	}

	fmt.Fprintf(w, "\n  route:       %s\n", out.Route)
	if out.Query != "" {
		fmt.Fprintf(w, "  query:       %s\n", out.Query)
		fmt.Fprintf(w, "  corrections: %d (%s)\n", out.CorrectionAttempts, out.Repair)
		fmt.Fprintf(w, "  rows:        %d\n", out.Rows)
	}
	path := make([]string, len(out.ExecutionPath))
	for i, n := range out.ExecutionPath {
		path[i] = string(n)
	}
	fmt.Fprintf(w, "  path:        %s\n", strings.Join(path, " -> "))
	fmt.Fprintf(w, "  took:        %s\n", out.ProcessingTime.Round(time.Millisecond))
}

// exitOnError prints err and terminates with a non-zero status
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
