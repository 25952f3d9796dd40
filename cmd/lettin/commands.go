package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lettin/lettin/internal/config"
	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/integration"
	"github.com/lettin/lettin/internal/logging"
	"github.com/lettin/lettin/internal/metrics"
	"github.com/lettin/lettin/internal/protocol"
	"github.com/lettin/lettin/internal/server"
	"github.com/lettin/lettin/internal/simulator"
	"github.com/lettin/lettin/internal/tui"
	"github.com/lettin/lettin/internal/ui"
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(gatewaysCmd)
}

// discoveryFlags override the stored preferences for one run
type discoveryFlags struct {
	window           time.Duration
	broadcast        string
	port             int
	localPort        int
	token            string
	matchTransaction bool
}

func (f *discoveryFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.window, "window", discovery.DefaultWindow, "How long to collect responses")
	cmd.Flags().StringVar(&f.broadcast, "broadcast", discovery.DefaultBroadcastAddr, "Destination address of discovery requests")
	cmd.Flags().IntVar(&f.port, "port", discovery.DefaultRemotePort, "Destination port of discovery requests")
	cmd.Flags().IntVar(&f.localPort, "local-port", discovery.DefaultLocalPort, "Local UDP port to send from and listen on")
	cmd.Flags().StringVar(&f.token, "token", protocol.DefaultToken, "Shared token embedded in requests")
	cmd.Flags().BoolVar(&f.matchTransaction, "match-transaction", false, "Drop responses carrying a different transaction id")
}

// apply copies explicitly set flags over prefs
func (f *discoveryFlags) apply(cmd *cobra.Command, prefs *config.Preferences) {
	flags := cmd.Flags()
	if flags.Changed("window") {
		prefs.Window = f.window
	}
	if flags.Changed("broadcast") {
		prefs.BroadcastAddr = f.broadcast
	}
	if flags.Changed("port") {
		prefs.RemotePort = f.port
	}
	if flags.Changed("local-port") {
		prefs.LocalPort = f.localPort
	}
	if flags.Changed("token") {
		prefs.Token = f.token
	}
	if flags.Changed("match-transaction") {
		prefs.MatchTransaction = f.matchTransaction
	}
}

// openSession binds the local port and starts a session on it.
// The returned cleanup stops the session and then closes the socket.
func openSession(prefs *config.Preferences, opts ...discovery.Option) (*discovery.Session, func(), error) {
	transport, err := discovery.ListenUDP(prefs.LocalPort)
	if err != nil {
		return nil, nil, err
	}

	session := discovery.NewSession(transport, prefs.SessionConfig(), opts...)
	if err := session.Start(); err != nil {
		transport.Close()
		return nil, nil, fmt.Errorf("failed to start session: %w", err)
	}

	cleanup := func() {
		session.Stop()
		if err := transport.Close(); err != nil {
			logging.Warn("Failed to close transport", zap.Error(err))
		}
	}
	return session, cleanup, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nicknames maps lowercase MAC to nickname for every named registry entry
func nicknames(reg *config.Registry) map[string]string {
	out := make(map[string]string)
	for mac, gw := range reg.Gateways {
		if gw.Nickname != "" {
			out[mac] = gw.Nickname
		}
	}
	return out
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- scan ---

var (
	scanFlags   discoveryFlags
	scanJSON    bool
	scanMDNS    bool
	scanSave    bool
	mdnsTimeout time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Broadcast one discovery request and list the gateways that answer",
	Long: `Broadcast one discovery request and list every gateway that answers
within the listen window.

Flags override the preferences stored in the config file for this run only.
Use --save to record the result in the config file.`,
	Example: `  # Scan with stored or default settings
  lettin scan

  # Listen longer on a busy network
  lettin scan --window 5s

  # Also browse mDNS for gateways that advertise themselves
  lettin scan --mdns

  # JSON output for scripting
  lettin scan --json`,
	RunE: runScan,
}

func init() {
	scanFlags.register(scanCmd)
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the result as JSON")
	scanCmd.Flags().BoolVar(&scanMDNS, "mdns", false, "Also browse for gateways advertised over mDNS")
	scanCmd.Flags().DurationVar(&mdnsTimeout, "mdns-timeout", discovery.DefaultBrowseTimeout, "How long to browse mDNS")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Record the result in the config file")
}

func runScan(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	prefs := reg.Preferences
	scanFlags.apply(cmd, prefs)

	out := cmd.OutOrStdout()
	if !scanJSON {
		fmt.Fprintln(out, ui.RenderCommandHeader(ui.HeaderConfig{
			Title:   "Gateway discovery",
			Command: cmd.CommandPath(),
			Params: map[string]string{
				"Broadcast":  fmt.Sprintf("%s:%d", prefs.BroadcastAddr, prefs.RemotePort),
				"Local port": strconv.Itoa(prefs.LocalPort),
				"Window":     prefs.Window.String(),
			},
		}))
	}

	session, cleanup, err := openSession(prefs)
	if err != nil {
		if !scanJSON {
			fmt.Fprintln(out, ui.RenderFailure("Discovery failed", err, []string{
				fmt.Sprintf("Make sure nothing else is bound to UDP port %d", prefs.LocalPort),
				"Use --local-port to send from another port",
			}))
		}
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	gateways := session.Discover(ctx)

	if scanMDNS {
		browser := discovery.NewBrowser()
		browser.Timeout = mdnsTimeout
		found, err := browser.Browse(ctx)
		if err != nil {
			logging.Warn("mDNS browse failed", zap.Error(err))
		}
		gateways = discovery.Dedup(append(gateways, found...))
	}

	if scanSave {
		reg.RecordResult(gateways)
		if err := saveRegistry(reg); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
	}

	if scanJSON {
		return writeJSON(out, gateways)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.RenderGateways(gateways, nicknames(reg)))
	if len(gateways) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.Summary(len(gateways)))
	}
	return nil
}

// --- watch ---

var (
	watchFlags    discoveryFlags
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive discovery screen",
	Long: `Run discovery in an interactive terminal screen.

Press r to rescan, / to filter, q to quit. With --interval the screen
rescans on its own after each result.`,
	Example: `  # Rescan every 30 seconds
  lettin watch --interval 30s`,
	RunE: runWatch,
}

func init() {
	watchFlags.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Rescan automatically after each result (0 disables)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return fmt.Errorf("watch needs an interactive terminal; use 'lettin scan' instead")
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	watchFlags.apply(cmd, reg.Preferences)

	session, cleanup, err := openSession(reg.Preferences)
	if err != nil {
		return err
	}
	defer cleanup()

	return tui.Run(session, tui.WatchOptions{
		Interval:  watchInterval,
		Nicknames: nicknames(reg),
	})
}

// --- serve ---

var (
	serveFlags   discoveryFlags
	serveAddr    string
	serveCert    string
	serveKey     string
	serveNATS    string
	serveSubject string
	serveRecord  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve discovery over HTTP and WebSocket",
	Long: `Run a discovery session behind an HTTP front end.

  POST /api/discover   start a discovery cycle
  GET  /api/gateways   latest result
  GET  /api/state      idle or discovering
  GET  /ws             WebSocket stream of results
  GET  /metrics        Prometheus metrics

With --nats every published result is also forwarded to a NATS subject.`,
	Example: `  # Serve on the default address
  lettin serve

  # Forward results to NATS
  lettin serve --nats nats://localhost:4222

  # Serve over HTTPS
  lettin serve --cert cert.pem --key key.pem`,
	RunE: runServe,
}

func init() {
	serveFlags.register(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", config.DefaultHTTPAddr, "HTTP listen address")
	serveCmd.Flags().StringVar(&serveCert, "cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&serveKey, "key", "", "Path to TLS private key file")
	serveCmd.Flags().StringVar(&serveNATS, "nats", "", "NATS server URL to forward results to")
	serveCmd.Flags().StringVar(&serveSubject, "nats-subject", integration.DefaultSubject, "NATS subject for results")
	serveCmd.Flags().BoolVar(&serveRecord, "save", false, "Record every result in the config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	if (serveCert == "") != (serveKey == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	prefs := reg.Preferences
	serveFlags.apply(cmd, prefs)
	if cmd.Flags().Changed("addr") {
		prefs.HTTPAddr = serveAddr
	}
	if cmd.Flags().Changed("nats") {
		prefs.NATSURL = serveNATS
	}
	if cmd.Flags().Changed("nats-subject") {
		prefs.NATSSubject = serveSubject
	}

	promReg := metrics.NewRegistry()
	session, cleanup, err := openSession(prefs, discovery.WithMetrics(metrics.NewDiscovery(promReg)))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	if prefs.NATSURL != "" {
		nc, err := integration.Connect(prefs.NATSURL)
		if err != nil {
			return err
		}
		defer nc.Drain()
		go integration.NewForwarder(nc, prefs.NATSSubject).Run(ctx, session.Results())
	}

	if serveRecord {
		go recordResults(ctx, reg, session.Results())
	}

	srv, err := server.New(&server.Config{
		Addr:     prefs.HTTPAddr,
		CertPath: serveCert,
		KeyPath:  serveKey,
	}, session, promReg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving discovery on %s\n", prefs.HTTPAddr)
	return srv.Start(ctx)
}

// recordResults saves every published result until ctx ends
func recordResults(ctx context.Context, reg *config.Registry, results *discovery.Results) {
	sub := results.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-sub.C:
			if !ok {
				return
			}
			reg.RecordResult(result)
			if err := saveRegistry(reg); err != nil {
				logging.Warn("Failed to save result", zap.Error(err))
			}
		}
	}
}

// --- simulate ---

var (
	simMAC       string
	simNames     []string
	simPort      int
	simToken     string
	simAdvertise bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a fake gateway that answers discovery requests",
	Long: `Run a fake gateway on the local machine.

The simulator listens on UDP port 7000, answers every valid discovery
request with one response per --name, and can advertise itself over mDNS.`,
	Example: `  # Answer as a single gateway
  lettin simulate --name Hall

  # Reproduce a gateway that answers twice with different names
  lettin simulate --name Hall --name Hall-2

  # Run on another port and scan it from the same machine
  lettin simulate --port 7001 &
  lettin scan --broadcast 127.0.0.1 --port 7001`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simMAC, "mac", "001a2b3c4d5e6f70", "Gateway identity as 16 hex characters")
	simulateCmd.Flags().StringArrayVar(&simNames, "name", nil, "Gateway name to report (repeatable)")
	simulateCmd.Flags().IntVar(&simPort, "port", discovery.DefaultRemotePort, "UDP port to listen on")
	simulateCmd.Flags().StringVar(&simToken, "token", protocol.DefaultToken, "Token requests must carry")
	simulateCmd.Flags().BoolVar(&simAdvertise, "advertise", false, "Advertise the simulator over mDNS")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	identity, err := protocol.ParseIdentity(simMAC)
	if err != nil {
		return fmt.Errorf("invalid --mac: %w", err)
	}

	sim := simulator.New(simulator.Config{
		Port:      simPort,
		Identity:  identity,
		Names:     simNames,
		Token:     simToken,
		Advertise: simAdvertise,
	})
	if err := sim.Start(); err != nil {
		return err
	}
	defer sim.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Simulating gateway %s on %s (Ctrl+C to stop)\n", sim.MAC(), sim.Addr())

	ctx, cancel := signalContext()
	defer cancel()
	<-ctx.Done()
	return nil
}

// --- gateways ---

var gatewaysCmd = &cobra.Command{
	Use:   "gateways",
	Short: "List gateways recorded in the config file",
	Long: `List gateways recorded by 'lettin scan --save' or 'lettin serve --save'.

Use 'lettin gateways nickname' to label a gateway.`,
	RunE: runGateways,
}

var nicknameCmd = &cobra.Command{
	Use:   "nickname <mac> <nickname>",
	Short: "Set a nickname for a gateway",
	Example: `  lettin gateways nickname 001a2b3c4d5e6f70 "Front door"

  # Clear a nickname
  lettin gateways nickname 001a2b3c4d5e6f70 ""`,
	Args: cobra.ExactArgs(2),
	RunE: runNickname,
}

func init() {
	gatewaysCmd.AddCommand(nicknameCmd)
}

func runGateways(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(reg.Gateways) == 0 {
		fmt.Fprintln(out, "No gateways recorded. Run 'lettin scan --save' first.")
		return nil
	}
	fmt.Fprintln(out, registryTable(reg).Render())
	return nil
}

// registryTable lists registry entries ordered by MAC
func registryTable(reg *config.Registry) *ui.Table {
	macs := make([]string, 0, len(reg.Gateways))
	for mac := range reg.Gateways {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	table := &ui.Table{Columns: []string{"NAME", "MAC", "LAST IP", "LAST SEEN", "SEEN"}}
	for _, mac := range macs {
		gw := reg.Gateways[mac]
		lastSeen := "-"
		if !gw.LastSeen.IsZero() {
			lastSeen = gw.LastSeen.Local().Format(time.DateTime)
		}
		table.AddRow(gw.DisplayName(), mac, gw.LastIP, lastSeen, strconv.Itoa(gw.SeenCount))
	}
	return table
}

func runNickname(cmd *cobra.Command, args []string) error {
	if _, err := protocol.ParseIdentity(args[0]); err != nil {
		return fmt.Errorf("invalid MAC %q: %w", args[0], err)
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	reg.SetGatewayNickname(args[0], args[1])
	if err := saveRegistry(reg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved nickname for %s\n", args[0])
	return nil
}
