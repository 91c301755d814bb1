// ABOUTME: Entry point for the relay-gateway message relay server
// ABOUTME: Serves the relay API and ships CLI subcommands for inspection

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _                             _
  _ __ ___| | __ _ _   _       __ _  __ _| |_ _____      ____ _ _   _
 | '__/ _ \ |/ _' | | | |_____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | | |  __/ | (_| | |_| |____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |_|  \___|_|\__,_|\__, |     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                   |___/      |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: RELAY_CONFIG env var > XDG_CONFIG_HOME/relay-gateway/config.yaml > ~/.config/relay-gateway/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "relay-gateway", "config.yaml")
}

// getDataPath returns the path to the relay-gateway data directory.
// Priority: XDG_DATA_HOME/relay-gateway > ~/.local/share/relay-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "relay-gateway")
}

func main() {
	// Local .env files are a dev convenience; absence is fine
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: relay-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve            Start the relay gateway server")
		fmt.Println("  init             Create a new config file interactively")
		fmt.Println("  health           Check gateway health")
		fmt.Println("  conversations    List active conversations")
		fmt.Println("  campaigns        List recent campaigns")
		fmt.Println("  stats            Show today's message counters")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "conversations":
		err = runConversations(ctx)
	case "campaigns":
		err = runCampaigns(ctx)
	case "stats":
		err = runStats(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)

	if cfg.Providers.Carrier.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Carrier:   ")
		cyan.Println(cfg.Providers.Carrier.Endpoint)
	}
	if cfg.Providers.CredentialsFile == "" && !cfg.Providers.Carrier.Enabled {
		yellow.Println("    ! no providers configured, relays need inline credentials")
	}

	fmt.Println()

	logger.Info("starting relay-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// apiGet performs a GET against the running gateway and returns the body.
func apiGet(ctx context.Context, path string) ([]byte, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	reqURL := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func runHealth(ctx context.Context) error {
	if _, err := apiGet(ctx, "/health"); err != nil {
		return err
	}
	fmt.Println("healthy")
	return nil
}

func runConversations(ctx context.Context) error {
	body, err := apiGet(ctx, "/api/conversations")
	if err != nil {
		return err
	}

	var conversations []struct {
		PhoneNumber   string `json:"phoneNumber"`
		LastBody      string `json:"lastBody"`
		LastDirection string `json:"lastDirection"`
		LastTimestamp string `json:"lastTimestamp"`
		MessageCount  int    `json:"messageCount"`
	}
	if err := json.Unmarshal(body, &conversations); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(conversations) == 0 {
		fmt.Println("no conversations")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, c := range conversations {
		cyan.Printf("%-16s", c.PhoneNumber)
		fmt.Printf(" %3d msgs  ", c.MessageCount)
		arrow := "→"
		if c.LastDirection == "inbound" {
			arrow = "←"
		}
		fmt.Printf("%s %s ", arrow, truncate(c.LastBody, 48))
		gray.Println(c.LastTimestamp)
	}
	return nil
}

func runCampaigns(ctx context.Context) error {
	body, err := apiGet(ctx, "/api/campaigns")
	if err != nil {
		return err
	}

	var campaigns []struct {
		CampaignID      string `json:"campaignId"`
		Type            string `json:"type"`
		Status          string `json:"status"`
		TotalRecipients int    `json:"totalRecipients"`
		Successful      int    `json:"successful"`
		Failed          int    `json:"failed"`
		SuccessRate     string `json:"successRate"`
		ActualCost      string `json:"actualCost"`
	}
	if err := json.Unmarshal(body, &campaigns); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(campaigns) == 0 {
		fmt.Println("no campaigns")
		return nil
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	for _, c := range campaigns {
		fmt.Printf("%-24s %-12s ", c.CampaignID, c.Type)
		if c.Status == "completed" {
			green.Printf("%-12s", c.Status)
		} else {
			yellow.Printf("%-12s", c.Status)
		}
		fmt.Printf(" %d/%d ok (%s%%)  $%s\n", c.Successful, c.TotalRecipients, c.SuccessRate, c.ActualCost)
	}
	return nil
}

func runStats(ctx context.Context) error {
	body, err := apiGet(ctx, "/api/stats")
	if err != nil {
		return err
	}

	var stats struct {
		Total    int `json:"total"`
		Inbound  int `json:"inbound"`
		Outbound int `json:"outbound"`
		Failed   int `json:"failed"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("today: %d total, %d inbound, %d outbound, %d failed\n",
		stats.Total, stats.Inbound, stats.Outbound, stats.Failed)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("relay-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "relay.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Providers
	fmt.Println("\n--- Provider Configuration ---")
	credsFile := prompt(reader, "Device credentials file (TOML, empty to skip)", "")
	enableCarrier := prompt(reader, "Enable carrier backend?", "no")
	carrierEnabled := strings.ToLower(enableCarrier) == "yes" || strings.ToLower(enableCarrier) == "y"

	var carrierEndpoint, carrierFrom string
	if carrierEnabled {
		carrierEndpoint = prompt(reader, "Carrier endpoint URL", "")
		carrierFrom = prompt(reader, "Carrier from number (E.164)", "")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# relay-gateway configuration\n")
	cfg.WriteString("# Generated by relay-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("providers:\n")
	if credsFile != "" {
		cfg.WriteString(fmt.Sprintf("  credentials_file: %q\n", credsFile))
	}
	cfg.WriteString("  carrier:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", carrierEnabled))
	if carrierEnabled {
		cfg.WriteString(fmt.Sprintf("    endpoint: %q\n", carrierEndpoint))
		cfg.WriteString("    account_id: \"${CARRIER_ACCOUNT_ID}\"\n")
		cfg.WriteString("    api_key: \"${CARRIER_API_KEY}\"\n")
		cfg.WriteString("    api_secret: \"${CARRIER_API_SECRET}\"\n")
		cfg.WriteString(fmt.Sprintf("    from_number: %q\n", carrierFrom))
	}
	cfg.WriteString("\n")

	cfg.WriteString("relay:\n")
	cfg.WriteString("  send_timeout: \"20s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("retention:\n")
	cfg.WriteString("  max_messages: 1000\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  relay-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
