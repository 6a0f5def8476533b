package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/audit"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/domain"
	"github.com/aussiebroadwan/clientdesk/pkg/idx"
	"github.com/aussiebroadwan/clientdesk/pkg/slogx"
)

var (
	ErrResetDeclined        = errors.New("admin reset declined")
	ErrResetInProgress      = errors.New("admin reset already in progress")
	ErrAdminFieldsRequired  = errors.New("admin email and password are required")
	ErrDeletionsUnconfirmed = errors.New("user deletions not confirmed")
	ErrUserWithoutID        = errors.New("user has no id")
)

type ResetState string

const (
	ResetIdle       ResetState = "idle"
	ResetConfirming ResetState = "confirming"
	ResetFetching   ResetState = "fetching"
	ResetDeleting   ResetState = "deleting"
	ResetCreating   ResetState = "creating"
	ResetSucceeded  ResetState = "succeeded"
	ResetFailed     ResetState = "failed"
)

// AdminForm holds the operator supplied details of the new administrator.
type AdminForm struct {
	Email    string
	Name     string
	Password string
	Phone    string
}

func DefaultAdminForm() AdminForm {
	return AdminForm{
		Email: "admin@example.com",
		Name:  "Admin",
		Phone: "0830000000",
	}
}

// Redacted returns the form with the password masked.
func (f AdminForm) Redacted() AdminForm {
	if f.Password != "" {
		f.Password = "[REDACTED]"
	}
	return f
}

func (f AdminForm) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", f.Email),
		slog.String("name", f.Name),
		slog.String("phone", f.Phone),
		slog.Bool("password_set", f.Password != ""),
	)
}

// StageFailure reports the stage a reset run stopped at.
type StageFailure struct {
	Stage ResetState
	Cause error
}

func (f *StageFailure) Error() string {
	msg := "Unknown error"
	if f.Cause != nil {
		msg = f.Cause.Error()
	}

	switch f.Stage {
	case ResetFetching:
		return "Error loading users: " + msg
	case ResetDeleting:
		return "Error deleting users: " + msg
	case ResetCreating:
		return "Error creating admin user: " + msg
	default:
		return fmt.Sprintf("Admin reset failed while %s: %s", f.Stage, msg)
	}
}

func (f *StageFailure) Unwrap() error { return f.Cause }

// DeleteOutcome is the result of deleting one user. UserID is empty for a
// user the backend listed without an id.
type DeleteOutcome struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Err    error  `json:"-"`
}

// Label names the user for an operator, falling back to the email.
func (o DeleteOutcome) Label() string {
	switch {
	case o.UserID != "":
		return o.UserID
	case o.Email != "":
		return o.Email
	default:
		return "(no id)"
	}
}

// DeletionError collects the failed deletions of one fan-out.
type DeletionError struct {
	Attempted int
	Failures  []DeleteOutcome
}

func (e *DeletionError) Error() string {
	first := e.Failures[0]
	if len(e.Failures) == 1 && e.Attempted == 1 {
		return first.Err.Error()
	}
	return fmt.Sprintf("%d of %d deletions failed (user %s: %s)",
		len(e.Failures), e.Attempted, first.Label(), first.Err.Error())
}

func (e *DeletionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// ResetResult describes one Execute call.
type ResetResult struct {
	RunID   string              `json:"runId,omitempty"`
	State   ResetState          `json:"state"`
	Message string              `json:"message,omitempty"`
	Deleted []string            `json:"deleted,omitempty"`
	Failed  []DeleteOutcome     `json:"failed,omitempty"`
	Admin   domain.Confirmation `json:"admin,omitzero"`
}

// ResetSnapshot is a point in time view for a presentation layer.
type ResetSnapshot struct {
	State   ResetState
	Running bool
	Message string
	Failure *StageFailure
	Form    AdminForm // password redacted
	Users   []domain.User
}

type AdminResetConfig struct {
	Users     UsersAPI
	Confirmer Confirmer

	// Ledger defaults to an in-process ledger.
	Ledger ResetLedger

	// Form defaults to DefaultAdminForm.
	Form *AdminForm

	Audit audit.Recorder
	Clock func() time.Time
}

// AdminReset deletes every user and provisions one fresh administrator.
// Runs are explicitly confirmed, one at a time, and stop at the first
// failing stage without compensating for what already happened.
type AdminReset struct {
	api     UsersAPI
	confirm Confirmer
	ledger  ResetLedger
	audit   audit.Recorder
	now     func() time.Time

	mu      sync.Mutex
	running bool
	state   ResetState
	form    AdminForm
	cached  []domain.User
	message string
	failure *StageFailure
}

func NewAdminReset(cfg AdminResetConfig) (*AdminReset, error) {
	if cfg.Users == nil {
		return nil, errors.New("admin reset: users api is required")
	}
	if cfg.Confirmer == nil {
		return nil, errors.New("admin reset: confirmer is required")
	}

	a := &AdminReset{
		api:     cfg.Users,
		confirm: cfg.Confirmer,
		ledger:  cfg.Ledger,
		audit:   cfg.Audit,
		now:     cfg.Clock,
		state:   ResetIdle,
		form:    DefaultAdminForm(),
		cached:  []domain.User{},
	}
	if a.ledger == nil {
		a.ledger = &memoryLedger{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	if cfg.Form != nil {
		a.form = *cfg.Form
	}

	return a, nil
}

func (a *AdminReset) State() ResetState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AdminReset) Snapshot() ResetSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return ResetSnapshot{
		State:   a.state,
		Running: a.running,
		Message: a.message,
		Failure: a.failure,
		Form:    a.form.Redacted(),
		Users:   slices.Clone(a.cached),
	}
}

// Form returns the current provisioning details, password included.
func (a *AdminReset) Form() AdminForm {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.form
}

// SetForm replaces the provisioning details. It is refused while a run is
// in flight.
func (a *AdminReset) SetForm(f AdminForm) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrResetInProgress
	}
	a.form = f
	return nil
}

// LoadUsers refreshes the cached user list. It never changes the workflow
// state.
func (a *AdminReset) LoadUsers(ctx context.Context) ([]domain.User, error) {
	l := slogx.FromContext(ctx).With(slog.String("operation", "loadUsers"))

	users, err := a.api.ListUsers(ctx)
	if err != nil {
		classified := Classify(err)
		l.Error("failed to load users",
			slog.String("kind", string(classified.Kind)),
			slog.Any("error", err),
		)
		return nil, &StageFailure{Stage: ResetFetching, Cause: classified}
	}

	a.mu.Lock()
	if !a.running {
		a.cached = slices.Clone(users)
	}
	a.mu.Unlock()

	l.Debug("loaded users", slog.Int("count", len(users)))
	return users, nil
}

// Execute runs the reset. A declined confirmation returns ErrResetDeclined
// with no remote call made. Stage failures come back as *StageFailure.
func (a *AdminReset) Execute(ctx context.Context) (ResetResult, error) {
	form, err := a.begin()
	if err != nil {
		return ResetResult{State: a.State()}, err
	}
	defer a.finish()

	l := slogx.FromContext(ctx).With(slog.String("operation", "adminReset"))

	// 1. Ask before anything irreversible happens
	ok, err := a.confirm.Confirm(ctx, ResetWarning)
	if err != nil || !ok {
		a.setState(ResetIdle)
		l.Info("admin reset declined", slog.Any("error", err))
		if err != nil {
			return ResetResult{State: ResetIdle}, fmt.Errorf("%w: %w", ErrResetDeclined, err)
		}
		return ResetResult{State: ResetIdle}, ErrResetDeclined
	}

	// 2. Pick up an unfinished run or start a new one
	progress, err := a.ledger.Load(ctx)
	if err != nil {
		return a.fail(ctx, l, ResetResult{}, ResetFetching, err)
	}

	resumed := !progress.IsZero()
	if resumed {
		l.Info("resuming admin reset",
			slog.String("run_id", progress.RunID),
			slog.Time("run_created_at", idx.ID(progress.RunID).Time()),
			slog.Int("previously_deleted", len(progress.Deleted)),
			slog.Int("previously_failed", len(progress.Failed)),
		)
	} else {
		progress = ResetProgress{RunID: idx.New().String(), StartedAt: a.now().UTC()}
	}
	progress.AllDeletionsConfirmed = false

	result := ResetResult{RunID: progress.RunID}
	l = l.With(slog.String("run_id", progress.RunID))
	a.record(audit.ActionResetStarted, progress.RunID, map[string]any{
		"email":   form.Email,
		"resumed": resumed,
	})

	// 3. Fetch the users that are still there
	a.setState(ResetFetching)
	users, err := a.api.ListUsers(ctx)
	if err != nil {
		return a.fail(ctx, l, result, ResetFetching, Classify(err))
	}
	l.Info("fetched users for deletion", slog.Int("count", len(users)))

	// Issued deletions are never revoked, so cancellation stops here
	runCtx := context.WithoutCancel(ctx)

	// 4. Delete everyone concurrently and wait for all of them
	a.setState(ResetDeleting)
	var failures []DeleteOutcome
	for _, o := range a.deleteAll(runCtx, l, users) {
		if o.Err != nil {
			// Users without an id cannot be retried by id, so only the
			// result carries them.
			if o.UserID != "" {
				progress.recordFailed(o.UserID)
			}
			failures = append(failures, o)
			continue
		}
		progress.recordDeleted(o.UserID)
		result.Deleted = append(result.Deleted, o.UserID)
	}
	result.Failed = failures

	progress.AllDeletionsConfirmed = len(failures) == 0
	progress.UpdatedAt = a.now().UTC()
	if err := a.ledger.Save(runCtx, progress); err != nil {
		if len(failures) == 0 {
			return a.fail(runCtx, l, result, ResetDeleting, fmt.Errorf("record deletion outcomes: %w", err))
		}
		l.Warn("failed to record deletion outcomes", slog.Any("error", err))
	}

	if len(failures) > 0 {
		return a.fail(runCtx, l, result, ResetDeleting, &DeletionError{
			Attempted: len(users),
			Failures:  failures,
		})
	}

	// 5. Only create once the ledger says every deletion went through
	confirmed, err := a.ledger.Load(runCtx)
	if err != nil || !confirmed.AllDeletionsConfirmed || confirmed.RunID != progress.RunID {
		cause := ErrDeletionsUnconfirmed
		if err != nil {
			cause = fmt.Errorf("%w: %w", ErrDeletionsUnconfirmed, err)
		}
		return a.fail(runCtx, l, result, ResetDeleting, cause)
	}

	// 6. Provision the administrator
	a.setState(ResetCreating)
	conf, err := a.api.RegisterAdmin(runCtx, domain.AdminProvisionRequest{
		Email:    form.Email,
		Name:     form.Name,
		Password: form.Password,
		Phone:    form.Phone,
		Role:     domain.AdminRole,
	})
	form.Password = ""
	if err != nil {
		return a.fail(runCtx, l, result, ResetCreating, Classify(err))
	}

	// 7. Done
	msg := fmt.Sprintf(`Success! All users deleted and admin user "%s" created. You can now log in with this account.`, form.Email)

	a.mu.Lock()
	a.state = ResetSucceeded
	a.form.Password = ""
	a.cached = []domain.User{}
	a.message = msg
	a.failure = nil
	a.mu.Unlock()

	if err := a.ledger.Clear(runCtx); err != nil {
		l.Warn("failed to clear reset ledger", slog.Any("error", err))
	}

	l.Info("admin reset succeeded",
		slog.Int("deleted", len(result.Deleted)),
		slog.String("admin_email", form.Email),
	)
	a.record(audit.ActionResetSucceeded, progress.RunID, map[string]any{
		"email":   form.Email,
		"deleted": len(result.Deleted),
	})

	result.State = ResetSucceeded
	result.Message = msg
	result.Admin = conf
	return result, nil
}

// deleteAll issues one deletion per user at once and returns after all of
// them settled. Outcomes keep the order of users.
func (a *AdminReset) deleteAll(ctx context.Context, l *slog.Logger, users []domain.User) []DeleteOutcome {
	outcomes := make([]DeleteOutcome, len(users))

	var wg sync.WaitGroup
	for i, u := range users {
		if strings.TrimSpace(u.ID) == "" {
			outcomes[i] = DeleteOutcome{Email: u.Email, Err: ErrUserWithoutID}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			outcome := DeleteOutcome{UserID: u.ID, Email: u.Email}
			if err := a.api.DeleteUser(ctx, u.ID); err != nil {
				outcome.Err = Classify(err)
				l.Warn("failed to delete user",
					slog.String("user_id", u.ID),
					slog.Any("error", err),
				)
			}
			outcomes[i] = outcome
		}()
	}
	wg.Wait()

	return outcomes
}

func (a *AdminReset) begin() (AdminForm, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return AdminForm{}, ErrResetInProgress
	}
	if strings.TrimSpace(a.form.Email) == "" || a.form.Password == "" {
		return AdminForm{}, ErrAdminFieldsRequired
	}

	a.running = true
	a.state = ResetConfirming
	a.message = ""
	a.failure = nil
	return a.form, nil
}

func (a *AdminReset) finish() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func (a *AdminReset) setState(s ResetState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *AdminReset) fail(
	ctx context.Context,
	l *slog.Logger,
	result ResetResult,
	stage ResetState,
	cause error,
) (ResetResult, error) {
	failure := &StageFailure{Stage: stage, Cause: cause}

	a.mu.Lock()
	a.state = ResetFailed
	a.failure = failure
	a.message = failure.Error()
	a.mu.Unlock()

	l.ErrorContext(ctx, "admin reset failed",
		slog.String("stage", string(stage)),
		slog.Any("error", cause),
	)
	a.record(audit.ActionResetFailed, result.RunID, map[string]any{"stage": string(stage)})

	result.State = ResetFailed
	result.Message = failure.Error()
	return result, failure
}

func (a *AdminReset) record(action, runID string, meta map[string]any) {
	audit.Record(a.audit, audit.Event{
		Action:   action,
		Entity:   "user",
		RunID:    runID,
		Metadata: meta,
	})
}
