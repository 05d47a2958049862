package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lorekeep/archivist/internal/dialogue"
	"github.com/lorekeep/archivist/internal/events"
	"github.com/lorekeep/archivist/internal/observe"
	"github.com/lorekeep/archivist/internal/policy"
	"github.com/lorekeep/archivist/internal/schema"
	"github.com/lorekeep/archivist/internal/session"
	"github.com/lorekeep/archivist/internal/store"
	"github.com/lorekeep/archivist/internal/tools"
	"github.com/lorekeep/archivist/internal/turn"
	"github.com/lorekeep/archivist/internal/ui/tui"
)

var (
	verbose      bool
	providerType string
	fallbackType string
	modelName    string
	ciMode       bool
	interactive  bool
	userID       string
	entityID     string
	contextPath  string
	imageURL     string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "archivist",
	Short: "Conversational cataloging assistant",
	Long: `Archivist interviews you about entities worth keeping and turns the
conversation into structured archive records, one field at a time.`,
}

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Start or resume a cataloging interview",
	Run: func(cmd *cobra.Command, args []string) {
		runInterview()
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List sessions or show one session's state",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := getStore()
		defer s.Close()

		if len(args) == 1 {
			showSession(s, args[0])
			return
		}
		listRecords(s)
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit [session-id]",
	Short: "Commit a finished interview to the archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mgr, s := getManager()
		defer s.Close()

		rec, err := mgr.CommitToArchive(context.Background(), args[0])
		if err != nil {
			fmt.Printf("Commit failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Committed record %s\n", rec.ID)
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon [session-id]",
	Short: "Abandon an interview without committing",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mgr, s := getManager()
		defer s.Close()

		if err := mgr.AbandonSession(context.Background(), args[0]); err != nil {
			fmt.Printf("Abandon failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Session abandoned.")
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(interviewCmd)
	RootCmd.AddCommand(sessionsCmd)
	RootCmd.AddCommand(commitCmd)
	RootCmd.AddCommand(abandonCmd)
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().StringVarP(&providerType, "provider", "p", "ollama", "Dialogue provider (ollama, openai, gemini, anthropic, stub)")
	RootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	interviewCmd.Flags().StringVar(&fallbackType, "fallback", "", "Secondary provider tried when the primary fails")
	interviewCmd.Flags().BoolVar(&ciMode, "ci", false, "CI mode: JSON output, non-interactive")
	interviewCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start interactive TUI")
	interviewCmd.Flags().StringVarP(&userID, "user", "u", "", "User identifier owning the session")
	interviewCmd.Flags().StringVarP(&entityID, "entity", "e", "", "Entity identifier to catalog or resume")
	interviewCmd.Flags().StringVar(&contextPath, "context", "", "Entity context file (JSON or YAML)")
	interviewCmd.Flags().StringVar(&imageURL, "image", "", "Media URL to seed the interview with")
}

func runInterview() {
	var obs *observe.Observer
	if ciMode {
		obs = observe.NewJSON(os.Stderr, verbose)
	} else {
		obs = observe.New(os.Stderr, verbose)
	}
	defer obs.Close()

	storeLayer := getStore()
	defer storeLayer.Close()

	svc, err := buildService(storeLayer, providerType, modelName)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to initialize dialogue provider")
	}
	if fallbackType != "" {
		secondary, err := buildService(storeLayer, fallbackType, "")
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to initialize fallback provider")
		}
		svc = dialogue.NewFallbackService(svc, secondary)
	}
	obs.Component("cli").Info().Str("provider", svc.Name()).Msg("dialogue provider ready")

	var ec *schema.EntityContext
	if contextPath != "" {
		ec, err = schema.LoadEntityContext(contextPath)
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to load entity context")
		}
	}

	orch := tools.New(svc, storeLayer)
	proc := turn.New(svc, orch, obs)
	mgr := session.New(storeLayer, proc, svc, policy.DefaultPolicy, obs, events.NewBus())

	if interactive {
		model := tui.NewModel("Cataloging interview")
		program := tea.NewProgram(model)
		u := tui.NewTUI(program)

		go func() {
			runner := NewRunner(obs, mgr, userID, entityID, ec, imageURL, u)
			_ = runner.Run(context.Background())
			program.Quit()
		}()

		if _, err := program.Run(); err != nil {
			fmt.Printf("Alas, there's been an error: %v", err)
			os.Exit(1)
		}
	} else {
		runner := NewRunner(obs, mgr, userID, entityID, ec, imageURL, nil)
		if err := runner.Run(context.Background()); err != nil {
			os.Exit(1)
		}
	}
}

func showSession(s store.Storage, id string) {
	sess, err := s.GetSession(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Session %s  [%s]\n", sess.ID, sess.Status)
	fmt.Printf("Entity: %s  Owner: %s\n", sess.EntityID, sess.UserID)
	fmt.Printf("Confidence: %.0f%%\n", sess.Confidence*100)
	if missing := sess.Fields.Missing(); len(missing) > 0 {
		fmt.Printf("Still required: %v\n", missing)
	}
	for _, name := range sess.Fields.Present() {
		v, _ := sess.Fields.Get(name)
		fmt.Printf("  %s: %s\n", name, v)
	}
	for _, w := range sess.Warnings {
		state := "open"
		if w.Resolved {
			state = "resolved"
		}
		fmt.Printf("  warning [%s/%s] %s\n", w.Severity, state, w.Text)
	}
	for _, a := range schema.Validate(sess.Fields).Warnings {
		fmt.Printf("  advisory: %s\n", a)
	}
}

func listRecords(s store.Storage) {
	records, err := s.ListRecords(userID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("The archive is empty.")
		return
	}
	for _, rec := range records {
		typ, _ := rec.Fields.Get(schema.FieldType)
		domain, _ := rec.Fields.Get(schema.FieldDomain)
		fmt.Printf("%s  %s / %s  (%s)\n", rec.ID, typ, domain, rec.CreatedAt.Format("2006-01-02"))
	}
}
