package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgdir/internal/audit"
	"github.com/wolfeidau/orgdir/internal/auth"
	"github.com/wolfeidau/orgdir/internal/client"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/notify"
	"github.com/wolfeidau/orgdir/internal/notify/notifytest"
	"github.com/wolfeidau/orgdir/internal/server"
	"github.com/wolfeidau/orgdir/internal/store/memory"
	"github.com/wolfeidau/orgdir/internal/store/storetest"
	"github.com/wolfeidau/orgdir/internal/transfer"
)

const testSecret = "orgctl-test-secret"

func newServer(t *testing.T) (string, *storetest.Fixture) {
	t.Helper()

	st := memory.NewStore()
	hub := notify.NewHub(0)
	dispatcher := notify.NewDispatcher(time.Second)

	svc, err := transfer.NewService(transfer.Deps{
		Store:      st,
		OrgLog:     audit.NewMemoryOrgLog(),
		Mailer:     &notifytest.Mailer{},
		Events:     hub,
		Dispatcher: dispatcher,
	}, transfer.Config{})
	require.NoError(t, err)

	verifier, err := auth.NewJWTVerifier(testSecret)
	require.NoError(t, err)

	s, err := server.NewServer(server.Config{Transfers: svc, Directory: st, Hub: hub, Verifier: verifier})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler(zerolog.Nop()))
	t.Cleanup(dispatcher.Wait)
	t.Cleanup(ts.Close)

	return ts.URL, storetest.NewFixture(t, st)
}

func flagsFor(t *testing.T, url string, u *models.User) ClientFlags {
	t.Helper()

	token, err := auth.IssueToken(testSecret, u.UserID, u.SystemRole, time.Hour)
	require.NoError(t, err)
	return ClientFlags{Server: url, Token: token, Timeout: 5 * time.Second}
}

func TestTransferCommands(t *testing.T) {
	ctx := context.Background()
	url, f := newServer(t)

	var out bytes.Buffer
	globals := &Globals{out: &out}

	initiate := &InitiateCmd{ClientFlags: flagsFor(t, url, f.Owner), OrgID: f.Org.OrgID, ToUserID: f.Member.UserID, Reason: "Retiring next month"}
	require.NoError(t, initiate.Run(ctx, globals))
	require.Contains(t, out.String(), "PENDING")
	require.Contains(t, out.String(), "Retiring next month")

	out.Reset()
	pending := &PendingCmd{ClientFlags: flagsFor(t, url, f.Member)}
	require.NoError(t, pending.Run(ctx, globals))
	require.Contains(t, out.String(), "incoming")

	api, err := client.New(ctx, client.Config{ServerURL: url, Token: flagsFor(t, url, f.Member).Token})
	require.NoError(t, err)
	transfers, err := api.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	transferID := transfers[0].TransferID

	out.Reset()
	reject := &RejectCmd{TransitionFlags: TransitionFlags{ClientFlags: flagsFor(t, url, f.Member), TransferID: transferID}, Reason: "Not now"}
	require.NoError(t, reject.Run(ctx, globals))
	require.Contains(t, out.String(), "REJECTED")

	out.Reset()
	auditCmd := &AuditCmd{ClientFlags: flagsFor(t, url, f.Owner), TransferID: transferID}
	require.NoError(t, auditCmd.Run(ctx, globals))
	require.Contains(t, out.String(), "initiated")
	require.Contains(t, out.String(), "rejected")
	require.Contains(t, out.String(), "reason=Not now")

	out.Reset()
	list := &ListCmd{ClientFlags: flagsFor(t, url, f.Owner), OrgID: f.Org.OrgID, Status: "rejected", Limit: 20}
	require.NoError(t, list.Run(ctx, globals))
	require.Contains(t, out.String(), transferID.String())

	out.Reset()
	list.Status = "pending"
	require.NoError(t, list.Run(ctx, globals))
	require.Contains(t, out.String(), "No transfers found.")

	accept := &AcceptCmd{TransitionFlags{ClientFlags: flagsFor(t, url, f.Member), TransferID: transferID}}
	err = accept.Run(ctx, globals)
	require.Error(t, err)
	require.True(t, client.IsKind(err, "conflict"), err)
	require.Equal(t, "Transfer is already rejected", client.Message(err))
}

func TestCancelCommand(t *testing.T) {
	ctx := context.Background()
	url, f := newServer(t)

	var out bytes.Buffer
	globals := &Globals{out: &out}

	initiate := &InitiateCmd{ClientFlags: flagsFor(t, url, f.Owner), OrgID: f.Org.OrgID, ToUserID: f.Member.UserID, Reason: "Retiring next month"}
	require.NoError(t, initiate.Run(ctx, globals))

	api, err := client.New(ctx, client.Config{ServerURL: url, Token: flagsFor(t, url, f.Owner).Token})
	require.NoError(t, err)
	transfers, err := api.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)

	out.Reset()
	cancel := &CancelCmd{TransitionFlags: TransitionFlags{ClientFlags: flagsFor(t, url, f.Owner), TransferID: transfers[0].TransferID}, Reason: "Changed my mind"}
	require.NoError(t, cancel.Run(ctx, globals))
	require.Contains(t, out.String(), "CANCELLED")
	require.Contains(t, out.String(), "Changed my mind")
}

func TestAccessCommand(t *testing.T) {
	ctx := context.Background()
	url, f := newServer(t)

	var out bytes.Buffer
	globals := &Globals{out: &out}

	require.NoError(t, (&AccessCmd{ClientFlags: flagsFor(t, url, f.Owner), OrgID: f.Org.OrgID}).Run(ctx, globals))
	require.Contains(t, out.String(), "owner (true owner)")

	out.Reset()
	require.NoError(t, (&AccessCmd{ClientFlags: flagsFor(t, url, f.Member), OrgID: f.Org.OrgID}).Run(ctx, globals))
	require.Contains(t, out.String(), "editor")

	out.Reset()
	require.NoError(t, (&AccessCmd{ClientFlags: flagsFor(t, url, f.Outsider), OrgID: f.Org.OrgID}).Run(ctx, globals))
	require.Contains(t, out.String(), "No access")
}

func TestFormatMetadata(t *testing.T) {
	require.Equal(t, "-", formatMetadata(nil))
	require.Equal(t, "a=1 b=2", formatMetadata(map[string]string{"b": "2", "a": "1"}))
}
