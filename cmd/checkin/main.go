// main is the entry point for the check-in command line client.
//
// It loads settings (a .env file, then checkin.yaml, then CHECKIN_*
// variables), builds the location resolver from them and dispatches to a
// subcommand:
//
//	checkin scan <payload>       resolve a location and check in
//	checkin locate               resolve and print the current location
//	checkin start <session-id>   open attendance at the current location
//	checkin close <session-id>   stop accepting check-ins
//	checkin review <session-id>  approve or reject pending check-ins
//	checkin qr <payload>         write a payload as a QR PNG
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/Elizabethomito/geocheckin/internal/checkin"
	"github.com/Elizabethomito/geocheckin/internal/config"
	"github.com/Elizabethomito/geocheckin/internal/geo"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const usage = `usage: checkin [-config file] [-v] <command> [arguments]

commands:
  scan <payload>       resolve a location and check in
  locate               resolve and print the current location
  start <session-id>   open attendance at the current location (teacher)
  close <session-id>   stop accepting check-ins (teacher)
  review <session-id>  approve or reject pending check-ins (teacher)
  qr <payload>         write a payload as a QR PNG
`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app is what every subcommand needs: settings, a logger and the
// terminal streams.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	http   *http.Client
	in     *prompter
	out    io.Writer
	errOut io.Writer
}

// run parses the global flags and runs one subcommand. It returns the
// process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "YAML settings file (default ./"+config.DefaultPath+" if present)")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "checkin:", err)
		return exitFailure
	}
	level, _ := cfg.Level()
	if *verbose {
		level = slog.LevelDebug
	}

	a := &app{
		cfg: cfg,
		logger: slog.New(tint.NewHandler(stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})),
		http:   &http.Client{Timeout: 30 * time.Second},
		in:     newPrompter(stdin, stderr),
		out:    stdout,
		errOut: stderr,
	}

	commands := map[string]func(context.Context, []string) error{
		"scan":   a.scan,
		"locate": a.locate,
		"start":  a.start,
		"close":  a.close,
		"review": a.review,
		"qr":     a.qr,
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "checkin: unknown command %q\n\n", name)
		fs.Usage()
		return exitUsage
	}

	err = cmd(ctx, rest)
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errFlags):
		return exitUsage
	case errors.As(err, &ue):
		fmt.Fprintf(stderr, "checkin %s: %v\n", name, err)
		return exitUsage
	default:
		fmt.Fprintln(stderr, describe(err))
		return exitFailure
	}
}

// errFlags is returned by parseArgs once the flag package has already
// reported the problem.
var errFlags = errors.New("invalid flags")

// usageError marks bad arguments, as opposed to a failed operation.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// parseArgs parses fs and returns the positional arguments, allowing flags
// to appear after them ("scan TOKEN -yes").
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, errFlags
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// newFlagSet returns a subcommand flag set that reports to stderr.
func (a *app) newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	fs.Usage = func() {
		fmt.Fprintf(a.errOut, "usage: checkin %s %s\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// client returns an API client using the configured URL and bearer token.
func (a *app) client() *checkin.Client {
	c := checkin.NewClient(a.cfg.API.URL, a.cfg.API.Token, a.http)
	c.Logger = a.logger
	return c
}

// describe turns an error into a message for the person at the terminal.
// The service's own message is added only where it carries detail the
// canned text lacks, such as the distance from the class.
func describe(err error) string {
	var se *checkin.ServiceError
	var bad *geo.InvalidCoordinateError
	switch {
	case errors.As(err, &bad):
		return fmt.Sprintf("Invalid coordinates: %v. Check -lat and -lon and try again.", bad)
	case errors.Is(err, checkin.ErrTokenExpired):
		return "This QR code has expired. Ask for a fresh one."
	case errors.Is(err, checkin.ErrOutOfRadius):
		msg := "You are outside the check-in area."
		if errors.As(err, &se) && se.Message != "" {
			msg += " (" + se.Message + ")"
		}
		return msg
	case errors.Is(err, checkin.ErrAlreadyCheckedIn):
		return "You have already checked in to this session."
	case errors.Is(err, checkin.ErrSessionInactive):
		return "Attendance for this session is not open."
	case errors.Is(err, checkin.ErrUnauthorized):
		return "Not signed in or the sign-in expired. Set CHECKIN_TOKEN."
	case errors.Is(err, checkin.ErrInvalidToken):
		return "That is not a valid check-in QR code."
	case errors.Is(err, checkin.ErrAborted):
		return "Check-in cancelled: " + err.Error()
	}
	return "checkin: " + err.Error()
}
