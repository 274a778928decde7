package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchboard/internal/testutils"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRestore = session.RestoreOptions{
	Pacing:       time.Millisecond,
	PollInterval: time.Millisecond,
	MaxWait:      50 * time.Millisecond,
}

func TestRestore_StopsAtCeiling(t *testing.T) {
	factory := testutils.NewFakeFactory()
	creds := testutils.NewFakeCredentials("t5", "t3", "t1", "t4", "t2")
	mgr := session.New(factory, creds,
		session.WithMaxSessions(3),
		session.WithRestoreOptions(fastRestore),
	)
	defer mgr.Close(context.Background())

	report, err := mgr.Restore(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.TenantID{"t1", "t2", "t3"}, report.Attempted)
	assert.Equal(t, []domain.TenantID{"t1", "t2", "t3"}, report.Restored)
	assert.Equal(t, []domain.TenantID{"t4", "t5"}, report.Skipped)
	assert.Empty(t, report.Aborted)
	assert.ElementsMatch(t, []domain.TenantID{"t1", "t2", "t3"}, factory.Tenants())
	assert.Equal(t, domain.StateNotInitialized, mgr.State("t4").State)
	assert.Equal(t, domain.StateNotInitialized, mgr.State("t5").State)
}

func TestRestore_NumericTenantsInValueOrder(t *testing.T) {
	factory := testutils.NewFakeFactory()
	creds := testutils.NewFakeCredentials("10", "b", "2", "a", "1", "002")
	mgr := session.New(factory, creds,
		session.WithMaxSessions(3),
		session.WithRestoreOptions(fastRestore),
	)
	defer mgr.Close(context.Background())

	report, err := mgr.Restore(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.TenantID{"1", "002", "2"}, report.Attempted)
	assert.Equal(t, []domain.TenantID{"10", "a", "b"}, report.Skipped)
}

func TestRestore_AbandonsSessionsThatDoNotBecomeReady(t *testing.T) {
	factory := testutils.NewFakeFactory()
	ready := factory.OnOpen
	factory.OnOpen = func(e *testutils.FakeEngine) {
		switch e.Tenant {
		case "needs-qr":
			testutils.QROnConnect("qr")(e)
		case "stuck":
			testutils.SilentOnConnect()(e)
		default:
			ready(e)
		}
	}
	creds := testutils.NewFakeCredentials("good", "needs-qr", "stuck")
	mgr := session.New(factory, creds, session.WithRestoreOptions(fastRestore))
	defer mgr.Close(context.Background())

	report, err := mgr.Restore(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.TenantID{"good", "needs-qr", "stuck"}, report.Attempted)
	assert.Equal(t, []domain.TenantID{"good"}, report.Restored)
	assert.ElementsMatch(t, []domain.TenantID{"needs-qr", "stuck"}, report.Aborted)

	assert.Equal(t, domain.StateReady, mgr.State("good").State)
	for _, tenant := range []domain.TenantID{"needs-qr", "stuck"} {
		assert.Equal(t, domain.StateNotInitialized, mgr.State(tenant).State)
		assert.True(t, factory.Last(tenant).Closed())
	}
}

func TestRestore_NoCandidates(t *testing.T) {
	mgr := session.New(testutils.NewFakeFactory(), testutils.NewFakeCredentials())
	report, err := mgr.Restore(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Attempted)
	assert.Empty(t, report.Skipped)
}
