package cli

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

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ppiankov/sendtap/internal/audit"
	"github.com/ppiankov/sendtap/internal/config"
	"github.com/ppiankov/sendtap/internal/demohost"
	"github.com/ppiankov/sendtap/internal/host"
	"github.com/ppiankov/sendtap/internal/session"
	"github.com/ppiankov/sendtap/internal/templates"
)

// demoToken carries {"user_id":"42"} in its payload.
const demoToken = "Bearer aaa.eyJ1c2VyX2lkIjoiNDIifQ.ccc"

var (
	demoChannel  string
	demoMessage  string
	demoAuth     string
	demoTemplate string
	demoCount    int
	demoInterval time.Duration
	demoJSON     bool
)

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().StringVar(&demoChannel, "channel", "123", "Channel ID to send to")
	demoCmd.Flags().StringVarP(&demoMessage, "message", "m", "hi", "Message content")
	demoCmd.Flags().StringVar(&demoAuth, "auth", demoToken, "Authorization header value the demo host sends")
	demoCmd.Flags().StringVar(&demoTemplate, "template", "", "Send a saved template by ID instead of --message")
	demoCmd.Flags().IntVar(&demoCount, "count", 1, "Number of sends")
	demoCmd.Flags().DurationVar(&demoInterval, "interval", time.Second, "Pause between sends")
	demoCmd.Flags().BoolVar(&demoJSON, "json", false, "Print the log snapshot as JSON")
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a session against the built-in demo host",
	Long: `Starts an interception session on an in-process chat client, sends
messages through it and prints what was observed.

Each round sends one message (POST .../messages, observed) and one typing
indicator (POST .../typing, passed through). With --count > 1 the config
file is watched and filter or capacity edits apply to the running session.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	sessOpts := []session.Option{session.WithLogger(logger)}
	if cfg.AuditLog != "" {
		log, err := audit.Open(cfg.AuditLog)
		if err != nil {
			return err
		}
		defer log.Close()
		sessOpts = append(sessOpts, session.WithSink(log.Sink))
	}

	api := demohost.NewAPI()
	hostOpts := []demohost.Option{
		demohost.WithClient(demohost.InProcess(api)),
		demohost.WithToken(demoAuth),
	}
	if kv, err := templates.OpenKV(cfg.TemplatesDB); err != nil {
		logger.Warnw("template storage unavailable", "db", cfg.TemplatesDB, "error", err)
	} else {
		defer kv.Close()
		hostOpts = append(hostOpts, demohost.WithStorage(kv))
	}
	h := demohost.New("https://chat.example", hostOpts...)

	caps := host.Resolve(h.Modules()...)
	printPresence(out, caps)

	s := session.New(cfg, sessOpts...)
	if err := s.Start(caps); err != nil {
		return err
	}
	defer s.Stop()
	fmt.Fprintf(out, "Session %s started\n\n", s.ID())

	if demoCount > 1 {
		watchConfig(ctx, s)
	}

	send, err := demoSender(ctx, caps)
	if err != nil {
		return err
	}

rounds:
	for i := 0; i < demoCount; i++ {
		if err := send(h); err != nil {
			fmt.Fprintf(out, "send failed: %v\n", err)
		}
		if err := h.Typing(ctx, demoChannel); err != nil {
			logger.Debugw("typing failed", "error", err)
		}
		if i == demoCount-1 {
			break
		}
		select {
		case <-ctx.Done():
			break rounds
		case <-time.After(demoInterval):
		}
	}

	if err := s.Stop(); err != nil {
		logger.Warnw("session stop reported failures", "error", err)
	}
	logger.Debugw("demo api traffic", "requests", len(api.Received()))
	return printSnapshot(out, s)
}

// demoSender returns the per-round send action.
func demoSender(ctx context.Context, caps host.Capabilities) (func(*demohost.Host) error, error) {
	if demoTemplate == "" {
		return func(h *demohost.Host) error {
			_, err := h.SendMessage(ctx, demoChannel, &host.Message{Content: demoMessage}, &host.SendOptions{Nonce: nonce()})
			return err
		}, nil
	}

	if caps.Storage == nil {
		return nil, fmt.Errorf("--template needs template storage")
	}
	tmpl, err := templates.NewCache(caps.Storage).Get(ctx, demoTemplate)
	if err != nil {
		return nil, err
	}
	return func(h *demohost.Host) error {
		_, err := h.SendMessage(ctx, tmpl.Target, tmpl.Message(), &host.SendOptions{Nonce: nonce()})
		return err
	}, nil
}

func nonce() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func watchConfig(ctx context.Context, s *session.Session) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	w, err := config.NewWatcher(path, s, logger)
	if err != nil {
		logger.Debugw("config not watched", "error", err)
		return
	}
	go w.Run(ctx)
}

func printPresence(out io.Writer, caps host.Capabilities) {
	presence := caps.Presence()
	names := lo.Keys(presence)
	sort.Strings(names)
	fmt.Fprintln(out, "Host modules:")
	for _, name := range names {
		state := "absent"
		if presence[name] {
			state = "present"
		}
		fmt.Fprintf(out, "  %-16s %s\n", name, state)
	}
}

func printSnapshot(out io.Writer, s *session.Session) error {
	entries := s.Snapshot()
	if demoJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No interceptions yet.")
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s #%-4d %s\n", e.Time.Format("15:04:05"), e.Seq, e)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, s.Status())

	summary, err := s.Metrics().Summary()
	if err != nil {
		return err
	}
	keys := lo.Filter(lo.Keys(summary), func(k string, _ int) bool { return summary[k] > 0 })
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-55s %g\n", k, summary[k])
	}
	return nil
}
