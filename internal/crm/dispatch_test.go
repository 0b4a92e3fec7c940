package crm_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/crm"
	"github.com/oxbridge-edu/admissions-bot/internal/database"
	"github.com/oxbridge-edu/admissions-bot/internal/logger"
)

// fakeAPI records calls and can fail the first N contact upserts to
// exercise retry behavior.
type fakeAPI struct {
	mu            sync.Mutex
	failUpserts   int
	upserts       []string
	leads         []crm.Lead
	tourUpdates   []crm.TourUpdate
	notes         []string
	nextContactID int64
	nextLeadID    int64
}

func (f *fakeAPI) UpsertContact(_ context.Context, phone string, _ crm.ContactAttrs) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpserts > 0 {
		f.failUpserts--
		return 0, errors.New("crm unavailable")
	}
	f.upserts = append(f.upserts, phone)
	f.nextContactID++
	return f.nextContactID, nil
}

func (f *fakeAPI) CreateLead(_ context.Context, _ int64, _ string, lead crm.Lead) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads = append(f.leads, lead)
	f.nextLeadID++
	return f.nextLeadID, nil
}

func (f *fakeAPI) UpdateLeadTour(_ context.Context, _ int64, update crm.TourUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tourUpdates = append(f.tourUpdates, update)
	return nil
}

func (f *fakeAPI) AddNote(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, text)
	return nil
}

func (f *fakeAPI) CreateTask(context.Context, int64, string, time.Time) error {
	return nil
}

func (f *fakeAPI) noteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

func newDispatcherTest(t *testing.T, api *fakeAPI) (*crm.Dispatcher, database.Store, context.CancelFunc) {
	t.Helper()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	cfg := config.CRMConfig{QueueSize: 16, MaxRetries: 3}
	d := crm.NewDispatcher(api, store, cfg, logger.New("error", false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return d, store, cancel
}

func TestLeadCreateLinksChatToLead(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	d, store, _ := newDispatcherTest(t, api)

	ctx := context.Background()
	_, err := store.CreateUser(ctx, 4242, "parent")
	require.NoError(t, err)

	d.Enqueue(crm.Command{
		Kind:   crm.CommandLeadCreate,
		ChatID: 4242,
		Phone:  "+998901234567",
		Lead:   crm.Lead{Name: "Aziza", Program: "ib", ChildrenCount: 2},
	})

	require.Eventually(t, func() bool {
		link, err := store.GetLeadLink(ctx, 4242)
		return err == nil && link != nil
	}, 2*time.Second, 10*time.Millisecond)

	link, err := store.GetLeadLink(ctx, 4242)
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.ContactID)
	assert.Equal(t, int64(1), link.LeadID)
}

func TestContactUpsertRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{failUpserts: 2}
	d, _, _ := newDispatcherTest(t, api)

	d.Enqueue(crm.Command{
		Kind:  crm.CommandContactUpsert,
		Phone: "+998901234567",
	})

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.upserts) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNoteWithoutLeadLinkIsSkipped(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	d, store, _ := newDispatcherTest(t, api)

	ctx := context.Background()
	_, err := store.CreateUser(ctx, 100, "unlinked")
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, 200, "linked")
	require.NoError(t, err)
	require.NoError(t, store.SaveLeadLink(ctx, 200, 70, 90))

	d.Enqueue(crm.Command{Kind: crm.CommandNote, ChatID: 100, Note: "dropped"})
	d.Enqueue(crm.Command{Kind: crm.CommandNote, ChatID: 200, Note: "delivered"})

	require.Eventually(t, func() bool {
		return api.noteCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"delivered"}, api.notes)
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	secret := "client-secret"
	body := []byte("leads[note][0][note][text]=hello")

	sum := md5.Sum([]byte(string(body) + secret))
	good := hex.EncodeToString(sum[:])

	assert.True(t, crm.VerifySignature(secret, body, good))
	assert.True(t, crm.VerifySignature(secret, body, strings.ToUpper(good)))
	assert.False(t, crm.VerifySignature(secret, body, "deadbeef"))
	assert.False(t, crm.VerifySignature("other-secret", body, good))
}
