package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"relaysync/internal/client"
	"relaysync/internal/config"
	"relaysync/internal/pending"
	"relaysync/internal/store"
	"relaysync/internal/timeline"
	"relaysync/pkg/chat"
)

var (
	cfg config.Config

	relayURL string
	dataDir  string
	logLevel string
	plain    bool

	repoPath  string
	sessionID string
	model     string
	newSess   bool
	waitFlag  time.Duration
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] Load config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "relaysync",
		Short: "Synchronized view of remote coding sessions",
		Long:  `Connects to a session relay over WebSocket and maintains a live, reconciled view of the coding sessions running behind it.`,
	}
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", cfg.RelayURL, "Relay WebSocket URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", cfg.DataDir, "Local data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Plain output without tables or colors")

	// up command
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Connect and report relay activity until interrupted",
		RunE:  runUp,
	}

	// sessions command
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions for a repo",
		RunE:  runSessions,
	}
	sessionsCmd.Flags().StringVar(&repoPath, "repo", "", "Repo path (default: last used)")
	sessionsCmd.Flags().DurationVar(&waitFlag, "wait", 5*time.Second, "How long to wait for the relay")

	// send command
	sendCmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message to a session and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSend,
	}
	sendCmd.Flags().StringVar(&repoPath, "repo", "", "Repo path (default: last used)")
	sendCmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: most recent)")
	sendCmd.Flags().StringVar(&model, "model", cfg.Model, "Model to request")
	sendCmd.Flags().BoolVar(&newSess, "new", false, "Create a new session first")
	sendCmd.Flags().DurationVar(&waitFlag, "wait", 5*time.Minute, "How long to wait for the reply")

	rootCmd.AddCommand(upCmd, sessionsCmd, sendCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUp(cmd *cobra.Command, args []string) error {
	eng, pend, err := buildEngine()
	if err != nil {
		return err
	}
	defer pend.Close()
	defer eng.Close()

	var lastConn store.ConnState
	var lastRepos, lastClients int
	unsub := eng.Store().Subscribe(func() {
		s := eng.Store().State()
		if s.Conn != lastConn {
			fmt.Printf("[INFO] Relay: %s\n", s.Conn)
			lastConn = s.Conn
		}
		if len(s.Repos) != lastRepos {
			for _, r := range s.Repos {
				fmt.Printf("[INFO] Repo: %s (%s)\n", r.Name, r.Path)
			}
			lastRepos = len(s.Repos)
		}
		if s.ClientCount != lastClients {
			fmt.Printf("[INFO] Connected clients: %d\n", s.ClientCount)
			lastClients = s.ClientCount
		}
	})
	defer unsub()

	fmt.Printf("[INFO] Connecting to %s\n", relayURL)
	eng.Connect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	eng, pend, err := buildEngine()
	if err != nil {
		return err
	}
	defer pend.Close()
	defer eng.Close()

	updates := watchStore(eng)
	eng.Connect()

	repo, err := resolveRepo(eng, pend, updates)
	if err != nil {
		return err
	}

	// The directory requests the list as soon as the repo registers; give
	// the reply a moment to land.
	waitState(eng, updates, waitFlag, func(s store.State) bool {
		r := s.RepoByPath(repo)
		return r != nil && len(r.Sessions) > 0
	})

	state := eng.Store().State()
	r := state.RepoByPath(repo)
	if r == nil {
		return fmt.Errorf("repo %s is not connected to the relay", repo)
	}

	if plain || !isTerminal() {
		for _, s := range r.Sessions {
			fmt.Printf("%s\t%s\t%s\t%v\n", s.ID, s.AgentSessionID, formatTime(s.LastActive), s.Streaming)
		}
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Session", "Agent Session", "Created", "Last Active", "Streaming"})
	for _, s := range r.Sessions {
		t.AppendRow(table.Row{s.ID, s.AgentSessionID, formatTime(s.CreatedAt), formatTime(s.LastActive), s.Streaming})
	}
	t.Render()
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")

	eng, pend, err := buildEngine()
	if err != nil {
		return err
	}
	defer pend.Close()
	defer eng.Close()

	updates := watchStore(eng)
	eng.Connect()

	repo, err := resolveRepo(eng, pend, updates)
	if err != nil {
		return err
	}

	switch {
	case newSess:
		eng.CreateSession(repo)
		if !waitState(eng, updates, 15*time.Second, func(s store.State) bool {
			return s.SelectedSession != ""
		}) {
			return fmt.Errorf("session creation timed out")
		}
		sessionID = eng.Store().State().SelectedSession
		fmt.Printf("[INFO] Created session %s\n", sessionID)
	case sessionID == "":
		// Most recent session; the list is sorted by last activity.
		waitState(eng, updates, 5*time.Second, func(s store.State) bool {
			r := s.RepoByPath(repo)
			return r != nil && len(r.Sessions) > 0
		})
		r := eng.Store().State().RepoByPath(repo)
		if r == nil || len(r.Sessions) == 0 {
			return fmt.Errorf("no sessions in %s; use --new", repo)
		}
		sessionID = r.Sessions[0].ID
		eng.SelectSession(repo, sessionID)
	default:
		eng.SelectSession(repo, sessionID)
	}

	if err := eng.SendUserMessage(content); err != nil {
		return err
	}
	fmt.Printf("> %s\n", content)

	streamReply(eng, updates)
	return nil
}

// streamReply prints assistant text as it accumulates and finishes when the
// turn's stream ends (or the wait budget runs out).
func streamReply(eng *client.Engine, updates <-chan struct{}) {
	var printed int
	var sawStream bool

	deadline := time.After(waitFlag)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		s := eng.Store().State()
		if s.IsStreaming(sessionID) {
			sawStream = true
		}

		if msgs := s.Messages; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			if last.Role == chat.RoleAssistant {
				if text := last.Text(); len(text) > printed {
					fmt.Print(text[printed:])
					printed = len(text)
				}
			}
		}

		if sawStream && !s.IsStreaming(sessionID) {
			fmt.Println()
			printWorklog(s.Messages)
			return
		}

		select {
		case <-updates:
		case <-ticker.C:
		case <-deadline:
			fmt.Println("\n[WARN] Timed out waiting for the reply")
			return
		}
	}
}

// printWorklog summarizes the tool activity of the finished turn.
func printWorklog(msgs []chat.Message) {
	for _, item := range timeline.Segment(msgs) {
		if item.Kind != timeline.ItemWorklog {
			continue
		}
		for _, entry := range item.Entries {
			fmt.Printf("[INFO] Tool: %s\n", entry.Tool.Name)
		}
	}
}

func buildEngine() (*client.Engine, pending.Store, error) {
	cfg.DataDir = config.ExpandPath(dataDir)

	var pend pending.Store
	pend, err := pending.OpenSQLite(cfg.PendingDBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Pending store unavailable (%v), using memory\n", err)
		pend = pending.NewMemory()
	}

	if model == "" {
		model = cfg.Model
	}

	eng := client.New(client.Options{
		RelayURL:       relayURL,
		Model:          model,
		ReconnectDelay: cfg.ReconnectDelay,
		Pending:        pend,
		Logger:         newLogger(),
	})
	return eng, pend, nil
}

// resolveRepo picks the target repo: the --repo flag, then the last used
// repo, then the only connected repo. The choice is persisted for next time.
func resolveRepo(eng *client.Engine, pend pending.Store, updates <-chan struct{}) (string, error) {
	repo := repoPath
	if repo == "" {
		if v, ok, _ := pend.Preference("last_repo"); ok {
			repo = v
		}
	}

	if repo != "" {
		if !waitState(eng, updates, waitDeadline(), func(s store.State) bool {
			return s.RepoByPath(repo) != nil
		}) {
			return "", fmt.Errorf("repo %s is not connected to the relay", repo)
		}
	} else {
		if !waitState(eng, updates, waitDeadline(), func(s store.State) bool {
			return len(s.Repos) > 0
		}) {
			return "", fmt.Errorf("no repos connected to the relay")
		}
		state := eng.Store().State()
		if len(state.Repos) > 1 {
			names := make([]string, 0, len(state.Repos))
			for _, r := range state.Repos {
				names = append(names, r.Path)
			}
			return "", fmt.Errorf("multiple repos connected, pick one with --repo: %s", strings.Join(names, ", "))
		}
		repo = state.Repos[0].Path
	}

	if err := pend.SetPreference("last_repo", repo); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Persist repo preference: %v\n", err)
	}
	return repo, nil
}

// watchStore turns store notifications into a coalescing channel signal.
func watchStore(eng *client.Engine) <-chan struct{} {
	updates := make(chan struct{}, 1)
	eng.Store().Subscribe(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	return updates
}

// waitState blocks until cond holds for the current state or the timeout
// passes. Reports whether cond was met.
func waitState(eng *client.Engine, updates <-chan struct{}, timeout time.Duration, cond func(store.State) bool) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if cond(eng.Store().State()) {
			return true
		}
		select {
		case <-updates:
		case <-ticker.C:
		case <-deadline:
			return false
		}
	}
}

func waitDeadline() time.Duration {
	if waitFlag > 0 {
		return waitFlag
	}
	return 5 * time.Second
}

func newLogger() *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func isTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}
