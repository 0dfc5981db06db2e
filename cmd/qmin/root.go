package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/qmin"
	audithook "github.com/xraph/qmin/audit_hook"
	"github.com/xraph/qmin/engine"
	"github.com/xraph/qmin/job"
	"github.com/xraph/qmin/stream"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "qmin",
		Short:         "Minimal Redis job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().String("redis", "", "redis address host:port (overrides config)")
	root.PersistentFlags().String("namespace", "", "key namespace (overrides config)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newEnqueueCommand())
	root.AddCommand(newListenCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newWatchCommand())
	return root
}

// loadConfig reads --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (qmin.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := qmin.LoadConfig(path)
	if err != nil {
		return cfg, err
	}

	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		host, port, err := splitAddr(addr)
		if err != nil {
			return cfg, err
		}
		cfg.Redis.Host = host
		cfg.Redis.Port = port
	}
	if ns, _ := cmd.Flags().GetString("namespace"); ns != "" {
		cfg.Namespace = ns
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, cfg.Validate()
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid redis address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid redis port %q: %w", portStr, err)
	}
	return host, port, nil
}

func newLogger(cfg qmin.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openEngine connects with the command's config.
func openEngine(cmd *cobra.Command, opts ...engine.Option) (*engine.Engine, qmin.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	eng, err := engine.Open(cfg, append([]engine.Option{engine.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, cfg, err
	}
	return eng, cfg, nil
}

func newEnqueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <queue> <json>",
		Short: "Push one JSON payload onto a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("payload is not valid JSON: %s", args[1])
			}

			eng, cfg, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			var payload any = json.RawMessage(args[1])
			if cfg.Codec != "json" {
				if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
					return err
				}
			}

			env, err := eng.Enqueue(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued to %s at %s\n",
				env.QueueName, env.Enqueued().Format(time.RFC3339Nano))
			return nil
		},
	}
	return cmd
}

func newListenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen <queue>",
		Short: "Consume a queue, printing each payload, until SIGINT or SIGTERM",
		Long: `Consume a queue and print every payload to stdout.

The first SIGINT or SIGTERM stops popping and waits for jobs in flight.
A second signal forces exit with status 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []engine.Option
			if audit, _ := cmd.Flags().GetBool("audit"); audit {
				opts = append(opts, engine.WithExtension(audithook.New(jsonLines(cmd.ErrOrStderr()))))
			}

			eng, _, err := openEngine(cmd, opts...)
			if err != nil {
				return err
			}
			defer eng.Close()

			out := cmd.OutOrStdout()
			h := job.TaskFunc(func(_ context.Context, j *job.Job) error {
				_, err := fmt.Fprintf(out, "%s\t%s\t%s\n",
					j.Queue, j.Envelope.Enqueued().Format(time.RFC3339Nano), j.Payload())
				return err
			})

			// The session handles SIGINT and SIGTERM itself.
			return eng.Listen(cmd.Context(), args[0], h)
		},
	}
	cmd.Flags().Bool("audit", false, "write an audit record per lifecycle event to stderr as JSON lines")
	return cmd
}

// jsonLines returns an audit recorder writing one JSON object per line.
func jsonLines(w io.Writer) audithook.Recorder {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(evt)
	})
}

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [queue]",
		Short: "Show backlog and timestamps for one queue or every known queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()
			queues := args
			if len(queues) == 0 {
				if queues, err = eng.Queues(ctx); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tLENGTH\tLAST ENQUEUED\tLAST DEQUEUED\tCOMPLETED")
			for _, q := range queues {
				st, err := eng.Stats(ctx, q)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
					st.Name, st.Length, stamp(st.LastEnqueued), stamp(st.LastDequeued), stamp(st.Completed))
			}
			return tw.Flush()
		},
	}
	return cmd
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [queue]",
		Short: "Follow lifecycle events for one queue or the whole namespace",
		Long: `Print enqueued, dequeued, processed and failed events as they are
published. Watching does not consume jobs. Stops on SIGINT or SIGTERM.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := stream.TopicFirehose
			if len(args) == 1 {
				topic = stream.QueueTopic(args[0])
			}
			if t, _ := cmd.Flags().GetString("type"); t != "" {
				topic = stream.TypeTopic(stream.EventType(t))
			}
			if err := stream.ValidateTopic(topic); err != nil {
				return err
			}

			eng, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b := eng.NewBroker()
			sub := b.Subscribe("cli", topic)

			errCh := make(chan error, 1)
			go func() { errCh <- eng.Watch(ctx, b) }()

			out := cmd.OutOrStdout()
			for {
				select {
				case evt, ok := <-sub.C():
					if !ok {
						return <-errCh
					}
					if len(args) == 1 && evt.Queue != args[0] {
						continue
					}
					printEvent(out, evt)
				case err := <-errCh:
					return err
				}
			}
		},
	}
	cmd.Flags().String("type", "", "only show one event type: enqueued, dequeued, processed or failed")
	return cmd
}

func printEvent(w io.Writer, evt *stream.Event) {
	if evt.DecodeErr != nil {
		fmt.Fprintf(w, "%s\t%s\t-\tundecodable: %v\n",
			evt.Received.Format(time.RFC3339Nano), evt.Type, evt.DecodeErr)
		return
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		evt.Received.Format(time.RFC3339Nano), evt.Type, evt.Queue,
		evt.Latency().Round(time.Millisecond), evt.Envelope.Data)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
