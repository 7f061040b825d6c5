// Tabdesk MCP server
// Stdio for the primary client, HTTP for additional tabs and the dashboard.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/akiviranta/tabdesk/internal/app"
	"github.com/akiviranta/tabdesk/internal/dashboard"
	"github.com/akiviranta/tabdesk/internal/domain"
	"github.com/akiviranta/tabdesk/internal/policy"
	"github.com/akiviranta/tabdesk/internal/repository"
	"github.com/akiviranta/tabdesk/internal/tools/deskmode"
)

// Version is set by -ldflags at build time.
var Version = "dev"

func main() {
	// Handle CLI subcommands before starting the MCP server.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			runStatusCommand()
			return
		case "--version", "-v", "version":
			fmt.Println("tabdesk-server " + Version)
			return
		}
	}

	// Load config
	tmpLogger := log.New(os.Stderr, "[tabdesk] ", log.LstdFlags|log.Lshortfile)
	cfg := loadConfig(tmpLogger)
	pol := policy.New(cfg)

	// Set up logging
	logger := setupLogger(pol.LogFile())
	logger.Println("Starting tabdesk server...")
	logger.Printf("Log file: %s", pol.LogFile())
	logger.Printf("State file: %s", pol.StateFile())

	// State store (shared desk record + per-tab mode records)
	store, err := repository.NewStore(pol.StateFile())
	if err != nil {
		logger.Fatalf("State store: %v", err)
	}
	svc := app.NewDeskService(store, pol, logger)

	// Seed team active flags on startup so the dashboard shows the catalog
	// before any tab connects.
	if err := svc.Run(func(state *domain.DeskState) error { return nil }); err != nil {
		logger.Printf("Warning: startup state touch failed: %v", err)
	}

	// Tab registry for multi-client tracking
	registry := app.NewTabRegistry()

	// Session store for push notifications (holds actual ClientSession objects)
	sessions := newSessionStore()

	// Build the MCPServer
	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Calling tool: %s", message.Params.Name)
		}
	})

	// Stop the tab's heartbeat agent when its client disconnects. The agent's
	// Stop removes the presence entry, so closing a tab takes it offline
	// immediately instead of after the staleness window.
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		sid := session.SessionID()
		sessions.remove(sid)
		if tab := registry.Remove(sid); tab != nil && tab.Agent != nil {
			go tab.Agent.Stop()
			logger.Printf("Client session unregistered: %s (session=%s)", sid, tab.Session.SessionID())
		} else {
			logger.Printf("Client session unregistered: %s", sid)
		}
	})

	mcpServer := server.NewMCPServer(
		"tabdesk",
		Version,
		server.WithInstructions(instructionsText()),
		server.WithHooks(hooks),
	)

	// Register the desk coordination tools.
	deskmode.Register(mcpServer, deskmode.Deps{
		Svc:      svc,
		Store:    store,
		Registry: registry,
		Logger:   logger,
	})

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ignore SIGHUP so the server keeps running when daemonized (nohup, launchd, etc.)
	signal.Ignore(syscall.SIGHUP)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Push function for the notifier: broadcast to all connected sessions.
	pushFunc := func(pctx context.Context, method string, params map[string]any) {
		for _, sid := range registry.ConnectedIDs() {
			session := sessions.get(sid)
			if session == nil || !session.Initialized() {
				continue
			}
			notification := mcp.JSONRPCNotification{
				JSONRPC: "2.0",
				Notification: mcp.Notification{
					Method: method,
					Params: mcp.NotificationParams{AdditionalFields: params},
				},
			}
			select {
			case session.NotificationChannel() <- notification:
			default:
				logger.Printf("Notifier: push to %s dropped (channel full)", sid)
			}
		}
	}

	hooks.AddBeforeInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest) {
		if session := server.ClientSessionFromContext(ctx); session != nil {
			sessions.set(session.SessionID(), session)
			logger.Printf("Client session registered: %s", session.SessionID())
		}
		if message != nil {
			ci := message.Params.ClientInfo
			logger.Printf("Client: %s %s, Protocol: %s", ci.Name, ci.Version, message.Params.ProtocolVersion)
		}
	})

	notifier := app.NewNotifier(pol.SignalFilePath(), store, pol, pushFunc, logger)
	svc.SetNotifier(notifier)
	go notifier.Start(ctx)

	// Server-side backstop for presence pruning when no tab is connected.
	janitor := app.NewJanitor(svc, logger)
	go janitor.Start(ctx)

	// Start HTTP server in background (for additional tabs and the dashboard)
	httpShutdown := startHTTPServer(ctx, mcpServer, pol.HTTPPort(), logger, registry, svc)

	// Run stdio server in foreground (for the primary client)
	logger.Println("Stdio ready")
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Printf("Stdio server stopped: %v", err)
	}

	// Primary client disconnected; shut everything down.
	cancel()
	httpShutdown()

	// Stop tab heartbeats first so each removes its presence entry.
	registry.StopAll()
	janitor.Stop()
	notifier.Stop()

	if err := store.Close(); err != nil {
		logger.Printf("Warning: close state store: %v", err)
	}

	logger.Println("Server stopped")
}

// startHTTPServer starts the HTTP server in the background. Returns a shutdown
// function. Uses net.Listen to support port 0 (auto-assign) for running
// multiple instances.
func startHTTPServer(ctx context.Context, mcpServer *server.MCPServer, port int, logger *log.Logger, registry *app.TabRegistry, svc *app.DeskService) func() {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Fatalf("HTTP listen: %v", err)
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://localhost:%d", actualPort)

	logger.Printf("HTTP server on :%d", actualPort)
	logger.Printf("  Tabs connect at: %s/mcp", baseURL)
	logger.Printf("  State API:       %s/api/state", baseURL)

	sseSrv := server.NewSSEServer(mcpServer, server.WithBaseURL(baseURL))
	streamSrv := server.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseSrv)
	mux.Handle("/sse/", sseSrv)
	mux.Handle("/message", sseSrv)
	mux.Handle("/mcp", streamSrv)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","port":%d,"tabs":%d}`, actualPort, registry.Count())
	})

	dash := dashboard.NewHandler(svc, registry)
	dash.RegisterRoutes(mux)

	httpServer := &http.Server{Handler: mux}

	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}
}

// sessionStore holds active ClientSession objects for push notifications.
type sessionStore struct {
	mu   sync.RWMutex
	data map[string]server.ClientSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{data: make(map[string]server.ClientSession)}
}

func (ss *sessionStore) set(id string, s server.ClientSession) {
	ss.mu.Lock()
	ss.data[id] = s
	ss.mu.Unlock()
}

func (ss *sessionStore) get(id string) server.ClientSession {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.data[id]
}

func (ss *sessionStore) remove(id string) {
	ss.mu.Lock()
	delete(ss.data, id)
	ss.mu.Unlock()
}

// setupLogger creates a logger that writes to a log file and optionally stderr.
// When stderr is a terminal (interactive use), logs go to both stderr and the file.
// When stderr is redirected (daemon mode via nohup), logs go only to the file
// to avoid duplicate lines since nohup already redirects stderr to the log file.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[tabdesk] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[tabdesk] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	// Add stderr if it's a terminal, or if there's no log file.
	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[tabdesk] ", log.LstdFlags|log.Lshortfile)
}

// loadConfig loads policy configuration from TABDESK_CONFIG or defaults.
func loadConfig(logger *log.Logger) *policy.Config {
	cfg := policy.DefaultConfig()
	if configPath := os.Getenv("TABDESK_CONFIG"); configPath != "" {
		var err error
		cfg, err = policy.LoadConfig(configPath)
		if err != nil {
			logger.Printf("Warning: failed to load config %s: %v, using defaults", configPath, err)
			cfg = policy.DefaultConfig()
		}
	}
	return cfg
}

// instructionsText is the server-level guidance shown to connecting clients.
func instructionsText() string {
	return strings.TrimSpace(`
Tabdesk coordinates role modes across browser tabs (one MCP session = one tab).

Start with current_mode (pass a stable tab_key to restore a persisted mode).
Each tab is ADMIN by default. Use request_team_mode to downgrade to a team,
request_admin_mode with the PIN to elevate back. While connected the tab
heartbeats into a shared presence record; online_teams shows which teams have
live tabs. Todos, chat and objectives are partitioned per mode: ADMIN tabs and
each team see only their own lane. can_access checks page paths against the
current mode before navigating.
`)
}

// runStatusCommand implements "tabdesk-server status".
func runStatusCommand() {
	logger := log.New(os.Stderr, "", 0)
	cfg := loadConfig(logger)
	pol := policy.New(cfg)

	store, err := repository.NewStore(pol.StateFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	state, err := store.Load()
	if err != nil {
		state = domain.NewDeskState()
	}

	now := time.Now()
	ttl := pol.PresenceTTL()
	live := 0
	teamTabs := 0
	for _, e := range state.Presence {
		if e == nil || now.Sub(e.LastHeartbeat) >= ttl {
			continue
		}
		live++
		if e.Mode == domain.ModeTeam {
			teamTabs++
		}
	}

	fmt.Printf("tabs=%d team_tabs=%d todos=%d messages=%d\n", live, teamTabs, len(state.Todos), len(state.Messages))
}
