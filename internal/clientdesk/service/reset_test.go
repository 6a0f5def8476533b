package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/audit"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/domain"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store/drivers/memory"
	"github.com/aussiebroadwan/clientdesk/pkg/clientsdk"
	"github.com/stretchr/testify/require"
)

func threeUsers() []domain.User {
	return []domain.User{
		{ID: "u1", Email: "one@example.com"},
		{ID: "u2", Email: "two@example.com"},
		{ID: "u3", Email: "three@example.com"},
	}
}

func adminForm() AdminForm {
	f := DefaultAdminForm()
	f.Password = "s3cret-pass"
	return f
}

func newReset(t *testing.T, cfg AdminResetConfig) *AdminReset {
	t.Helper()

	if cfg.Confirmer == nil {
		cfg.Confirmer = AlwaysConfirm
	}
	if cfg.Form == nil {
		f := adminForm()
		cfg.Form = &f
	}

	reset, err := NewAdminReset(cfg)
	require.NoError(t, err)
	return reset
}

func TestDefaultAdminForm(t *testing.T) {
	t.Parallel()

	f := DefaultAdminForm()
	require.Equal(t, "admin@example.com", f.Email)
	require.Equal(t, "Admin", f.Name)
	require.Equal(t, "0830000000", f.Phone)
	require.Empty(t, f.Password)
}

func TestAdminResetSuccess(t *testing.T) {
	t.Parallel()

	users := &fakeUsersAPI{users: threeUsers()}
	rec := &recorder{}
	ledger := SlotLedger{Slots: memory.NewStore().Slots()}
	reset := newReset(t, AdminResetConfig{Users: users, Ledger: ledger, Audit: rec})

	res, err := reset.Execute(t.Context())
	require.NoError(t, err)
	require.Equal(t, ResetSucceeded, res.State)
	require.Equal(t, `Success! All users deleted and admin user "admin@example.com" created. You can now log in with this account.`, res.Message)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, "User registered successfully", res.Admin.Message)

	deleted := slices.Clone(res.Deleted)
	slices.Sort(deleted)
	require.Equal(t, []string{"u1", "u2", "u3"}, deleted)

	lists, remoteDeleted, registers := users.snapshot()
	require.Equal(t, 1, lists)
	require.Len(t, remoteDeleted, 3)
	require.Len(t, registers, 1)
	require.Equal(t, domain.AdminProvisionRequest{
		Email:    "admin@example.com",
		Name:     "Admin",
		Password: "s3cret-pass",
		Phone:    "0830000000",
		Role:     domain.AdminRole,
	}, registers[0])

	// The password does not outlive the run.
	require.Empty(t, reset.Form().Password)

	snap := reset.Snapshot()
	require.Equal(t, ResetSucceeded, snap.State)
	require.False(t, snap.Running)
	require.Empty(t, snap.Users)
	require.Nil(t, snap.Failure)

	progress, err := ledger.Load(t.Context())
	require.NoError(t, err)
	require.True(t, progress.IsZero())

	require.Equal(t, []string{audit.ActionResetStarted, audit.ActionResetSucceeded}, rec.actions())
}

func TestAdminResetNoUsers(t *testing.T) {
	t.Parallel()

	users := &fakeUsersAPI{}
	reset := newReset(t, AdminResetConfig{Users: users})

	res, err := reset.Execute(t.Context())
	require.NoError(t, err)
	require.Equal(t, ResetSucceeded, res.State)
	require.Empty(t, res.Deleted)

	_, _, registers := users.snapshot()
	require.Len(t, registers, 1)
}

func TestAdminResetDeleteFailure(t *testing.T) {
	t.Parallel()

	users := &fakeUsersAPI{
		users:      threeUsers(),
		deleteErrs: map[string]error{"u2": &clientsdk.APIError{StatusCode: 500, Message: "boom"}},
	}
	rec := &recorder{}
	ledger := SlotLedger{Slots: memory.NewStore().Slots()}
	reset := newReset(t, AdminResetConfig{Users: users, Ledger: ledger, Audit: rec})

	res, err := reset.Execute(t.Context())
	require.Error(t, err)
	require.Equal(t, ResetFailed, res.State)

	var stage *StageFailure
	require.ErrorAs(t, err, &stage)
	require.Equal(t, ResetDeleting, stage.Stage)

	var deletion *DeletionError
	require.ErrorAs(t, err, &deletion)
	require.Equal(t, 3, deletion.Attempted)
	require.Len(t, deletion.Failures, 1)
	require.Equal(t, "u2", deletion.Failures[0].UserID)
	require.ErrorIs(t, err, ErrServerError)
	require.Equal(t, "Error deleting users: 1 of 3 deletions failed (user u2: "+MsgServerError+")", err.Error())

	// Creation is gated on every deletion, so nothing was registered.
	_, remoteDeleted, registers := users.snapshot()
	require.Len(t, remoteDeleted, 2)
	require.Empty(t, registers)

	snap := reset.Snapshot()
	require.Equal(t, ResetFailed, snap.State)
	require.Equal(t, err.Error(), snap.Message)
	require.Equal(t, "[REDACTED]", snap.Form.Password)
	require.Equal(t, "s3cret-pass", reset.Form().Password)

	progress, err := ledger.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, res.RunID, progress.RunID)
	require.False(t, progress.AllDeletionsConfirmed)
	require.ElementsMatch(t, []string{"u1", "u3"}, progress.Deleted)
	require.Equal(t, []string{"u2"}, progress.Failed)

	require.Equal(t, []string{audit.ActionResetStarted, audit.ActionResetFailed}, rec.actions())
	require.Equal(t, "deleting", rec.last().Metadata["stage"])

	t.Run("retry resumes the same run", func(t *testing.T) {
		users.mu.Lock()
		users.users = []domain.User{{ID: "u2"}}
		users.deleteErrs = nil
		users.mu.Unlock()

		again, err := reset.Execute(t.Context())
		require.NoError(t, err)
		require.Equal(t, ResetSucceeded, again.State)
		require.Equal(t, res.RunID, again.RunID)
		require.Equal(t, []string{"u2"}, again.Deleted)

		_, _, registers := users.snapshot()
		require.Len(t, registers, 1)

		started := rec.events[2]
		require.Equal(t, audit.ActionResetStarted, started.Action)
		require.Equal(t, true, started.Metadata["resumed"])
	})
}

// rendezvous blocks each caller until n callers have arrived, or fails after
// a timeout when they never do.
func rendezvous(n int) func(string) error {
	var wg sync.WaitGroup
	wg.Add(n)
	all := make(chan struct{})
	go func() {
		wg.Wait()
		close(all)
	}()

	return func(string) error {
		wg.Done()
		select {
		case <-all:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("deletions were not issued concurrently")
		}
	}
}

func TestAdminResetDeletesConcurrently(t *testing.T) {
	t.Parallel()

	t.Run("every delete is in flight at once", func(t *testing.T) {
		t.Parallel()

		users := &fakeUsersAPI{users: threeUsers(), onDelete: rendezvous(3)}
		reset := newReset(t, AdminResetConfig{Users: users})

		res, err := reset.Execute(t.Context())
		require.NoError(t, err)
		require.Equal(t, ResetSucceeded, res.State)
		require.Len(t, res.Deleted, 3)
	})

	t.Run("a failure waits for the others to settle", func(t *testing.T) {
		t.Parallel()

		meet := rendezvous(3)
		var settled atomic.Int32
		users := &fakeUsersAPI{
			users: threeUsers(),
			onDelete: func(id string) error {
				if err := meet(id); err != nil {
					return err
				}
				if id == "u2" {
					return &clientsdk.APIError{StatusCode: 500, Message: "boom"}
				}
				time.Sleep(20 * time.Millisecond)
				settled.Add(1)
				return nil
			},
		}
		reset := newReset(t, AdminResetConfig{Users: users})

		res, err := reset.Execute(t.Context())
		require.ErrorIs(t, err, ErrServerError)
		require.Equal(t, ResetFailed, res.State)
		require.EqualValues(t, 2, settled.Load())

		deleted := slices.Clone(res.Deleted)
		slices.Sort(deleted)
		require.Equal(t, []string{"u1", "u3"}, deleted)
		require.Len(t, res.Failed, 1)
		require.Equal(t, "u2", res.Failed[0].UserID)

		_, _, registers := users.snapshot()
		require.Empty(t, registers)
	})
}

func TestAdminResetDeclined(t *testing.T) {
	t.Parallel()

	t.Run("no remote call when refused", func(t *testing.T) {
		t.Parallel()

		users := &fakeUsersAPI{users: threeUsers()}
		rec := &recorder{}
		reset := newReset(t, AdminResetConfig{Users: users, Confirmer: NeverConfirm, Audit: rec})

		res, err := reset.Execute(t.Context())
		require.ErrorIs(t, err, ErrResetDeclined)
		require.Equal(t, ResetIdle, res.State)
		require.Equal(t, ResetIdle, reset.State())

		lists, deleted, registers := users.snapshot()
		require.Zero(t, lists)
		require.Empty(t, deleted)
		require.Empty(t, registers)
		require.Empty(t, rec.actions())
	})

	t.Run("confirmer errors count as refusal", func(t *testing.T) {
		t.Parallel()

		promptErr := errors.New("stdin closed")
		users := &fakeUsersAPI{users: threeUsers()}
		reset := newReset(t, AdminResetConfig{
			Users: users,
			Confirmer: ConfirmFunc(func(context.Context, string) (bool, error) {
				return true, promptErr
			}),
		})

		_, err := reset.Execute(t.Context())
		require.ErrorIs(t, err, ErrResetDeclined)
		require.ErrorIs(t, err, promptErr)

		lists, _, _ := users.snapshot()
		require.Zero(t, lists)
	})

	t.Run("prompt shows the warning", func(t *testing.T) {
		t.Parallel()

		var prompt string
		reset := newReset(t, AdminResetConfig{
			Users: &fakeUsersAPI{},
			Confirmer: ConfirmFunc(func(_ context.Context, p string) (bool, error) {
				prompt = p
				return false, nil
			}),
		})

		_, err := reset.Execute(t.Context())
		require.ErrorIs(t, err, ErrResetDeclined)
		require.Equal(t, ResetWarning, prompt)
	})
}

func TestAdminResetFieldsRequired(t *testing.T) {
	t.Parallel()

	var asked atomic.Int32
	confirmer := ConfirmFunc(func(context.Context, string) (bool, error) {
		asked.Add(1)
		return true, nil
	})

	for _, f := range []AdminForm{
		{Email: "admin@example.com"},
		{Email: "  ", Password: "pw"},
	} {
		reset := newReset(t, AdminResetConfig{Users: &fakeUsersAPI{}, Confirmer: confirmer, Form: &f})
		res, err := reset.Execute(t.Context())
		require.ErrorIs(t, err, ErrAdminFieldsRequired)
		require.Equal(t, ResetIdle, res.State)
	}

	require.Zero(t, asked.Load())
}

func TestAdminResetInProgress(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})
	reset := newReset(t, AdminResetConfig{
		Users: &fakeUsersAPI{users: threeUsers()},
		Confirmer: ConfirmFunc(func(context.Context, string) (bool, error) {
			close(entered)
			<-release
			return true, nil
		}),
	})

	done := make(chan error, 1)
	go func() {
		_, err := reset.Execute(t.Context())
		done <- err
	}()

	<-entered
	require.Equal(t, ResetConfirming, reset.State())
	require.True(t, reset.Snapshot().Running)

	_, err := reset.Execute(t.Context())
	require.ErrorIs(t, err, ErrResetInProgress)
	require.ErrorIs(t, reset.SetForm(AdminForm{Email: "x@example.com", Password: "pw"}), ErrResetInProgress)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reset did not finish")
	}

	require.False(t, reset.Snapshot().Running)
}

func TestAdminResetFetchFailure(t *testing.T) {
	t.Parallel()

	users := &fakeUsersAPI{listErr: &clientsdk.APIError{Message: "dial tcp: connection refused"}}
	reset := newReset(t, AdminResetConfig{Users: users})

	res, err := reset.Execute(t.Context())
	require.ErrorIs(t, err, ErrConnectivity)
	require.Equal(t, ResetFailed, res.State)
	require.Equal(t, "Error loading users: "+MsgConnectivity, err.Error())

	_, deleted, registers := users.snapshot()
	require.Empty(t, deleted)
	require.Empty(t, registers)
}

func TestAdminResetCreateFailure(t *testing.T) {
	t.Parallel()

	users := &fakeUsersAPI{
		users: threeUsers(),
		registerFn: func(domain.AdminProvisionRequest) (domain.Confirmation, error) {
			return domain.Confirmation{}, &clientsdk.APIError{StatusCode: 400, Message: "Email already in use"}
		},
	}
	ledger := SlotLedger{Slots: memory.NewStore().Slots()}
	reset := newReset(t, AdminResetConfig{Users: users, Ledger: ledger})

	res, err := reset.Execute(t.Context())
	require.Equal(t, ResetFailed, res.State)
	require.ErrorIs(t, err, ErrUnclassifiedTransport)
	require.Equal(t, "Error creating admin user: Email already in use", err.Error())

	var stage *StageFailure
	require.ErrorAs(t, err, &stage)
	require.Equal(t, ResetCreating, stage.Stage)

	// Deletions are not compensated; the ledger still says they happened.
	progress, err := ledger.Load(t.Context())
	require.NoError(t, err)
	require.True(t, progress.AllDeletionsConfirmed)
	require.Len(t, progress.Deleted, 3)
}

func TestAdminResetUserWithoutID(t *testing.T) {
	t.Parallel()

	users := &fakeUsersAPI{users: []domain.User{
		{ID: "u1"},
		{Email: "ghost@example.com"},
		{Email: "phantom@example.com"},
	}}
	ledger := SlotLedger{Slots: memory.NewStore().Slots()}
	reset := newReset(t, AdminResetConfig{Users: users, Ledger: ledger})

	res, err := reset.Execute(t.Context())
	require.ErrorIs(t, err, ErrUserWithoutID)
	require.Contains(t, err.Error(), "2 of 3 deletions failed (user ghost@example.com:")

	// Each id-less user is reported on its own.
	require.Len(t, res.Failed, 2)
	require.Equal(t, "ghost@example.com", res.Failed[0].Label())
	require.Equal(t, "phantom@example.com", res.Failed[1].Label())

	_, deleted, registers := users.snapshot()
	require.Equal(t, []string{"u1"}, deleted)
	require.Empty(t, registers)

	progress, err := ledger.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, progress.Deleted)
	require.Empty(t, progress.Failed)
}

// forgetfulLedger accepts saves but never remembers them.
type forgetfulLedger struct{}

func (forgetfulLedger) Load(context.Context) (ResetProgress, error) { return ResetProgress{}, nil }
func (forgetfulLedger) Save(context.Context, ResetProgress) error   { return nil }
func (forgetfulLedger) Clear(context.Context) error                 { return nil }

func TestAdminResetGate(t *testing.T) {
	t.Parallel()

	users := &fakeUsersAPI{users: threeUsers()}
	reset := newReset(t, AdminResetConfig{Users: users, Ledger: forgetfulLedger{}})

	_, err := reset.Execute(t.Context())
	require.ErrorIs(t, err, ErrDeletionsUnconfirmed)

	_, deleted, registers := users.snapshot()
	require.Len(t, deleted, 3)
	require.Empty(t, registers)
}

func TestAdminResetIgnoresLateCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	// Cancelling once the user list is in hand must not stop the run.
	users := &fakeUsersAPI{users: threeUsers(), onList: cancel}
	reset := newReset(t, AdminResetConfig{Users: users})

	res, err := reset.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, ResetSucceeded, res.State)

	_, deleted, registers := users.snapshot()
	require.Len(t, deleted, 3)
	require.Len(t, registers, 1)
}

func TestAdminResetLoadUsers(t *testing.T) {
	t.Parallel()

	t.Run("caches without moving the state", func(t *testing.T) {
		t.Parallel()

		reset := newReset(t, AdminResetConfig{Users: &fakeUsersAPI{users: threeUsers()}})

		users, err := reset.LoadUsers(t.Context())
		require.NoError(t, err)
		require.Len(t, users, 3)

		snap := reset.Snapshot()
		require.Equal(t, ResetIdle, snap.State)
		require.Len(t, snap.Users, 3)
	})

	t.Run("failures are returned", func(t *testing.T) {
		t.Parallel()

		reset := newReset(t, AdminResetConfig{Users: &fakeUsersAPI{listErr: &clientsdk.APIError{StatusCode: 404}}})

		_, err := reset.LoadUsers(t.Context())
		require.ErrorIs(t, err, ErrEndpointNotFound)
		require.True(t, strings.HasPrefix(err.Error(), "Error loading users: "))
		require.Equal(t, ResetIdle, reset.State())
	})
}

func TestStageFailureMessages(t *testing.T) {
	t.Parallel()

	cause := errors.New("nope")
	require.Equal(t, "Error loading users: nope", (&StageFailure{Stage: ResetFetching, Cause: cause}).Error())
	require.Equal(t, "Error deleting users: nope", (&StageFailure{Stage: ResetDeleting, Cause: cause}).Error())
	require.Equal(t, "Error creating admin user: nope", (&StageFailure{Stage: ResetCreating, Cause: cause}).Error())
	require.Equal(t, "Error creating admin user: Unknown error", (&StageFailure{Stage: ResetCreating}).Error())

	single := &DeletionError{Attempted: 1, Failures: []DeleteOutcome{{UserID: "u1", Err: cause}}}
	require.Equal(t, "nope", single.Error())
	require.ErrorIs(t, single, cause)
}

func TestAdminFormRedaction(t *testing.T) {
	t.Parallel()

	f := adminForm()
	require.Equal(t, "[REDACTED]", f.Redacted().Password)
	require.Equal(t, "s3cret-pass", f.Password)
	require.Empty(t, AdminForm{}.Redacted().Password)
	require.NotContains(t, f.LogValue().String(), "s3cret")
}
