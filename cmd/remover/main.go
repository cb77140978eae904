package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"browsing-data/internal/domain"
	"browsing-data/internal/usecase/remover"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
	case "clear":
		if err := runClear(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "clear: %v\n", err)
			os.Exit(1)
		}
	case "schedule":
		if err := runSchedule(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "schedule: %v\n", err)
			os.Exit(1)
		}
	case "types":
		printTypes()
	case "doctor":
		if err := runDoctor(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'remover --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`remover - clear browsing data from a browser profile

USAGE:
    remover COMMAND [FLAGS]

COMMANDS:
    clear       Remove browsing data once and wait for completion
    schedule    Run the configured scheduled clears until interrupted
    types       List the data types that can be removed
    doctor      Check that the configured profile can be cleared
    help        Show this help message

CLEAR FLAGS:
    --period NAME          last_hour, last_day, last_week, four_weeks, everything
                           (default: last_hour)
    --types LIST           Comma-separated data types, or site_data / all
    --origin URL           Only remove data for this origin
    --include-protected    Also remove data of origins owned by installed apps

COMMON FLAGS:
    --config PATH          Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: BROWSINGDATA_* variables override config

EXAMPLES:
    remover clear --types cookies,history
    remover clear --period everything --types all --include-protected
    remover clear --period last_day --types site_data --origin https://example.com
    remover schedule --config /etc/remover/config.yaml`)
}

func printTypes() {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tSITE DATA")
	for _, name := range domain.DataTypeNames() {
		set, _ := domain.ParseDataTypes(name)
		site := ""
		if set&domain.DataSiteData == set {
			site = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\n", name, site)
	}
	w.Flush()
	fmt.Println("\nNamed sets: site_data, all")
}

// clearFlags holds the flags of the clear command.
type clearFlags struct {
	ConfigPath       string
	Period           string
	Types            string
	Origin           string
	IncludeProtected bool
}

// parseClearFlags accepts "--flag value" and "--flag=value" forms.
func parseClearFlags(args []string) (clearFlags, error) {
	flags := clearFlags{Period: "last_hour"}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		next := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag %s needs a value", name)
			}
			i++
			return args[i], nil
		}

		var err error
		switch name {
		case "--config":
			flags.ConfigPath, err = next()
		case "--period":
			flags.Period, err = next()
		case "--types":
			flags.Types, err = next()
		case "--origin":
			flags.Origin, err = next()
		case "--include-protected":
			flags.IncludeProtected = true
		default:
			return clearFlags{}, fmt.Errorf("unknown flag %s", arg)
		}
		if err != nil {
			return clearFlags{}, err
		}
	}
	if flags.Types == "" {
		return clearFlags{}, fmt.Errorf("--types is required")
	}
	return flags, nil
}

// configPath returns the --config flag value, then $BROWSINGDATA_CONFIG, then ./config.yaml.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("BROWSINGDATA_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func runClear(args []string) error {
	flags, err := parseClearFlags(args)
	if err != nil {
		return err
	}
	req, err := flags.request()
	if err != nil {
		return err
	}

	path := flags.ConfigPath
	if path == "" {
		path = configPath(nil)
	}
	app, err := newApp(path)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	id := remover.NewRequestID(time.Now())
	unsubscribe := app.Bus.SubscribeRequest(id, reportSkipped(app.Log))
	defer unsubscribe()

	details, err := app.Service.Clear(ctx, req, remover.WithRequestID(id))
	if err != nil {
		if ctx.Err() != nil && !app.Service.Drain(30*time.Second) {
			app.Log.Warn("removal still running at exit")
		}
		return err
	}

	fmt.Printf("removed %s (%s) in %s, request %s\n",
		details.DataTypes, details.Scope, details.Duration().Round(time.Millisecond), details.RequestID)
	if !details.Skipped.IsEmpty() {
		fmt.Printf("skipped: %s\n", details.Skipped)
	}
	return nil
}

// reportSkipped logs each data type a removal leaves out, as it happens.
func reportSkipped(log *slog.Logger) domain.EventHandler {
	return func(_ context.Context, e domain.Event) {
		if e.Type != domain.EventCategorySkipped {
			return
		}
		var p struct {
			DataType string `json:"data_type"`
			Reason   string `json:"reason"`
		}
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			log.Debug("undecodable skip event", "request_id", e.RequestID, "error", err)
			return
		}
		log.Warn("data type skipped", "request_id", e.RequestID, "data_type", p.DataType, "reason", p.Reason)
	}
}

func (f clearFlags) request() (req remover.Request, err error) {
	if req.Period, err = domain.ParseTimePeriod(f.Period); err != nil {
		return req, err
	}
	if req.Types, err = domain.ParseDataTypes(f.Types); err != nil {
		return req, err
	}
	req.Scope = domain.ScopeUnprotectedWeb
	if f.IncludeProtected {
		req.Scope = domain.ScopeAll
	}
	if f.Origin != "" {
		if req.Origin, err = domain.ParseOrigin(f.Origin); err != nil {
			return req, err
		}
	}
	req.Actor = "cli"
	return req, req.Validate()
}
