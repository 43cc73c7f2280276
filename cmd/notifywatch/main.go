// Command notifywatch follows one user's notifications from the terminal. It
// keeps a notifications.Store in sync over the portal API and websocket feed
// and prints the list after every change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/consultportal/portal/internal/client"
	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server   string
	token    string
	userID   string
	limit    int
	logLevel string
	view     view
}

// view narrows and arranges the list before it is printed.
type view struct {
	filter notifications.Filter
	recent int
	group  bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	fs := flag.NewFlagSet("notifywatch", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts options
	fs.StringVar(&opts.server, "server", "http://localhost:8000", "Portal base URL")
	fs.StringVar(&opts.token, "token", os.Getenv("PORTAL_TOKEN"), "Bearer token (defaults to $PORTAL_TOKEN)")
	fs.StringVar(&opts.userID, "user", "", "User id the token belongs to")
	fs.IntVar(&opts.limit, "limit", notifications.DefaultPageSize, "Number of notifications to fetch")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	fs.StringVar(&opts.view.filter.Search, "search", "", "Only show notifications whose title or message contains this text")
	fs.StringVar(&opts.view.filter.Type, "type", "", "Only show this notification type")
	priority := fs.String("priority", "", "Only show this priority (low, normal, high, urgent)")
	unread := fs.Bool("unread", false, "Only show unread notifications")
	fs.IntVar(&opts.view.recent, "recent", 0, "Show at most this many notifications (0 shows all)")
	fs.BoolVar(&opts.view.group, "group", false, "Group notifications by type")

	err := fs.Parse(args)
	if err != nil {
		return options{}, err
	}

	opts.userID = strings.TrimSpace(opts.userID)
	if opts.userID == "" {
		return options{}, errors.New("-user is required")
	}
	if strings.TrimSpace(opts.token) == "" {
		return options{}, errors.New("-token or PORTAL_TOKEN is required")
	}
	if opts.view.filter.Priority, err = notifications.ParsePriority(*priority, ""); err != nil {
		return options{}, err
	}
	if *unread {
		opts.view.filter.ReadState = notifications.ReadStateUnread
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}

	if err := logger.Init(opts.logLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort
	log := logger.WithModule("notifywatch")

	backend, err := client.NewBackend(opts.server, opts.token)
	if err != nil {
		return err
	}
	feed, err := client.NewFeed(opts.server, opts.token)
	if err != nil {
		return err
	}

	store := notifications.NewStore(opts.userID, backend, feed, notifications.WithPageSize(opts.limit))
	defer store.Close()

	changes := make(chan notifications.State, 1)
	unsubscribe := store.OnChange(func(state notifications.State) {
		if state.Loading {
			return
		}
		select {
		case changes <- state:
		default:
			// Keep only the newest state.
			select {
			case <-changes:
			default:
			}
			select {
			case changes <- state:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("subscribe to notification feed: %w", err)
	}
	log.Info("watching notifications", zap.String("user_id", opts.userID), zap.String("server", opts.server))

	render(out, store.Snapshot(), opts.view, time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case state := <-changes:
			render(out, state, opts.view, time.Now())
		}
	}
}

func render(out io.Writer, state notifications.State, v view, at time.Time) {
	fmt.Fprintf(out, "\n%s  %d unread\n", at.Format(time.Kitchen), state.UnreadCount)
	if state.Err != "" {
		fmt.Fprintf(out, "error: %s\n", state.Err)
	}
	items := notifications.Recent(v.filter.Apply(state.Items), v.recent)
	if len(items) == 0 {
		fmt.Fprintln(out, "no notifications")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if !v.group {
		writeRows(tw, items)
		_ = tw.Flush()
		return
	}

	groups := notifications.GroupByType(items)
	types := make([]string, 0, len(groups))
	for typ := range groups {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		fmt.Fprintf(tw, "[%s]\n", typ)
		writeRows(tw, groups[typ])
	}
	_ = tw.Flush()
}

func writeRows(w io.Writer, items []notifications.Notification) {
	for _, item := range items {
		marker := " "
		if !item.IsRead {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			marker, item.Priority, item.CreatedAt.Local().Format("Jan 02 15:04"), item.Title, item.Message)
	}
}
