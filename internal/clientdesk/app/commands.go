package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/domain"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/service"
	"github.com/aussiebroadwan/clientdesk/pkg/slogx"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitDeclined = 3
)

// closeTimeout bounds flushing audit events on the way out.
const closeTimeout = 5 * time.Second

var ErrUsage = errors.New("usage error")

const usage = `usage: clientdesk <command> [flags] [args]

commands:
  clients list [-stats]
  clients get ID
  clients create                (client JSON on stdin)
  clients update ID             (partial client JSON on stdin)
  clients delete ID
  clients ban [-keep-appointments] ID
  clients unban ID
  clients history ID
  clients routes
  clients sync
  users list
  reset-admin [-email E] [-name N] [-phone P] [-yes]
`

// Streams are the process streams a command reads from and writes to.
// Command results go to Out as JSON, logs and prompts go to Err.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Main loads the configuration and runs one command.
func Main(ctx context.Context, args []string, streams Streams) int {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(streams.Err, "clientdesk: %v\n", err)
		return ExitUsage
	}
	return Run(ctx, cfg, args, streams)
}

// Run executes the command in args and returns the process exit code.
func Run(ctx context.Context, cfg Config, args []string, streams Streams) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(streams.Err, usage)
		if len(args) == 0 {
			return ExitUsage
		}
		return ExitOK
	}

	app, err := New(ctx, cfg, streams.Err)
	if err != nil {
		fmt.Fprintf(streams.Err, "clientdesk: %v\n", err)
		return ExitFailure
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			app.logger.Warn("shutdown incomplete", slog.Any("error", err))
		}
	}()

	ctx = slogx.WithAttrs(slogx.WithContext(ctx, app.logger), slog.String("command", strings.Join(firstN(args, 2), " ")))

	cmd := &commands{
		app: app,
		cfg: cfg,
		in:  bufio.NewReader(streams.In),
		out: streams.Out,
		err: streams.Err,
	}

	err = cmd.dispatch(ctx, args)
	code := exitCode(err)
	switch {
	case err == nil:
	case code == ExitUsage:
		fmt.Fprintf(streams.Err, "clientdesk: %v\n\n%s", err, usage)
	default:
		fmt.Fprintf(streams.Err, "clientdesk: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage), errors.Is(err, flag.ErrHelp):
		return ExitUsage
	case errors.Is(err, service.ErrResetDeclined):
		return ExitDeclined
	default:
		return ExitFailure
	}
}

type commands struct {
	app *Application
	cfg Config

	// in is shared by every read so buffered input is never lost between
	// the password prompt and the confirmation.
	in  *bufio.Reader
	out io.Writer
	err io.Writer
}

func (c *commands) dispatch(ctx context.Context, args []string) error {
	switch args[0] {
	case "clients":
		return c.clients(ctx, args[1:])
	case "users":
		return c.users(ctx, args[1:])
	case "reset-admin":
		return c.resetAdmin(ctx, args[1:])
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (c *commands) clients(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: clients needs a subcommand", ErrUsage)
	}
	repo := c.app.Clients()
	sub, rest := args[0], args[1:]

	switch sub {
	case "list":
		fs := c.flagSet("clients list")
		stats := fs.Bool("stats", false, "include appointment statistics")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}

		var (
			clients []domain.Client
			err     error
		)
		if *stats {
			clients, err = repo.ListWithStatistics(ctx)
		} else {
			clients, err = repo.List(ctx)
		}
		if err != nil {
			return err
		}
		return c.print(clients)

	case "get":
		id, err := c.singleID(sub, rest)
		if err != nil {
			return err
		}
		client, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return c.print(client)

	case "create":
		if len(rest) != 0 {
			return fmt.Errorf("%w: clients create takes no arguments", ErrUsage)
		}
		patch, err := c.readPatch()
		if err != nil {
			return err
		}
		if patch.Name == nil || strings.TrimSpace(*patch.Name) == "" {
			return fmt.Errorf("%w: a new client needs a name", ErrUsage)
		}
		conf, err := repo.Create(ctx, patch)
		if err != nil {
			return err
		}
		return c.print(conf)

	case "update":
		id, err := c.singleID(sub, rest)
		if err != nil {
			return err
		}
		patch, err := c.readPatch()
		if err != nil {
			return err
		}
		conf, err := repo.Update(ctx, id, patch)
		if err != nil {
			return err
		}
		return c.print(conf)

	case "delete":
		id, err := c.singleID(sub, rest)
		if err != nil {
			return err
		}
		conf, err := repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		return c.print(conf)

	case "ban":
		fs := c.flagSet("clients ban")
		keep := fs.Bool("keep-appointments", false, "do not cancel the client's upcoming appointments")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		id, err := c.singleID(sub, fs.Args())
		if err != nil {
			return err
		}
		res, err := repo.Ban(ctx, id, !*keep)
		if err != nil {
			return err
		}
		return c.print(res)

	case "unban":
		id, err := c.singleID(sub, rest)
		if err != nil {
			return err
		}
		res, err := repo.Unban(ctx, id)
		if err != nil {
			return err
		}
		return c.print(res)

	case "history":
		id, err := c.singleID(sub, rest)
		if err != nil {
			return err
		}
		hist, err := repo.GetAppointmentHistory(ctx, id)
		if err != nil {
			return err
		}
		return c.print(hist)

	case "routes":
		table := make(map[service.Operation]service.Backend)
		routes := repo.Routes()
		for _, op := range service.Operations() {
			table[op] = routes.Backend(op)
		}
		return c.print(table)

	case "sync":
		n, err := repo.SyncLocal(ctx)
		if err != nil {
			return err
		}
		return c.print(map[string]int{"synced": n})

	default:
		return fmt.Errorf("%w: unknown clients subcommand %q", ErrUsage, sub)
	}
}

func (c *commands) users(ctx context.Context, args []string) error {
	if len(args) != 1 || args[0] != "list" {
		return fmt.Errorf("%w: want users list", ErrUsage)
	}

	reset, err := c.app.NewAdminReset(service.NeverConfirm, service.DefaultAdminForm())
	if err != nil {
		return err
	}
	users, err := reset.LoadUsers(ctx)
	if err != nil {
		return err
	}
	return c.print(users)
}

func (c *commands) resetAdmin(ctx context.Context, args []string) error {
	form := service.DefaultAdminForm()

	fs := c.flagSet("reset-admin")
	fs.StringVar(&form.Email, "email", form.Email, "email of the new admin")
	fs.StringVar(&form.Name, "name", form.Name, "name of the new admin")
	fs.StringVar(&form.Phone, "phone", form.Phone, "phone of the new admin")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: reset-admin takes no arguments", ErrUsage)
	}

	form.Password = c.cfg.AdminPassword
	if form.Password == "" {
		password, err := c.prompt("Admin password: ")
		if err != nil {
			return fmt.Errorf("read admin password: %w", err)
		}
		form.Password = password
	}

	var confirmer service.Confirmer = service.PromptConfirmer{In: c.in, Out: c.err}
	if *yes {
		confirmer = service.AlwaysConfirm
	}

	reset, err := c.app.NewAdminReset(confirmer, form)
	if err != nil {
		return err
	}

	res, err := reset.Execute(ctx)
	if res.RunID != "" {
		if perr := c.print(newResetReport(res)); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// resetReport is the printed form of a reset result.
type resetReport struct {
	RunID   string           `json:"runId"`
	State   string           `json:"state"`
	Message string           `json:"message"`
	Deleted []string         `json:"deleted"`
	Failed  []failedDeletion `json:"failed,omitempty"`
}

// failedDeletion is one entry per failed user, ids may be missing.
type failedDeletion struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	Error  string `json:"error"`
}

func newResetReport(res service.ResetResult) resetReport {
	out := resetReport{
		RunID:   res.RunID,
		State:   string(res.State),
		Message: res.Message,
		Deleted: res.Deleted,
	}
	if out.Deleted == nil {
		out.Deleted = []string{}
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, failedDeletion{
			UserID: f.UserID,
			Email:  f.Email,
			Error:  f.Err.Error(),
		})
	}
	return out
}

// clientInput is the JSON accepted by create and update. Absent fields are
// left out of the request.
type clientInput struct {
	Name        *string             `json:"name"`
	Email       *string             `json:"email"`
	Phone       *string             `json:"phone"`
	Notes       *string             `json:"notes"`
	Roles       []string            `json:"roles"`
	Preferences *domain.Preferences `json:"preferences"`
}

func (c *commands) readPatch() (domain.ClientPatch, error) {
	var in clientInput
	dec := json.NewDecoder(c.in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return domain.ClientPatch{}, fmt.Errorf("%w: client JSON on stdin: %v", ErrUsage, err)
	}

	return domain.ClientPatch{
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		Notes:       in.Notes,
		Roles:       in.Roles,
		Preferences: in.Preferences,
	}, nil
}

func (c *commands) prompt(label string) (string, error) {
	fmt.Fprint(c.err, label)

	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *commands) singleID(sub string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: clients %s needs exactly one id", ErrUsage, sub)
	}
	return args[0], nil
}

func (c *commands) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.err)
	return fs
}

// parseFlags reports bad flags as usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func (c *commands) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstN(args []string, n int) []string {
	if len(args) < n {
		return args
	}
	return args[:n]
}
