package notify

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/communities"
	"github.com/xceleratortech/communitiesx/pkg/observability"
)

// fakeStore implements DispatchStore in memory.
type fakeStore struct {
	mu        sync.Mutex
	disabled  []int64
	subs      []*PushSubscription
	deleted   []int64
	inserted  []*Notification
	touched   []int64
	subsErr   error
	insertErr error
}

func (f *fakeStore) DisabledUserIDs(ctx context.Context, communityID int64, userIDs []int64) ([]int64, error) {
	return f.disabled, nil
}

func (f *fakeStore) SubscriptionsForUsers(ctx context.Context, userIDs []int64) ([]*PushSubscription, error) {
	if f.subsErr != nil {
		return nil, f.subsErr
	}
	var out []*PushSubscription
	for _, sub := range f.subs {
		for _, id := range userIDs {
			if sub.UserID == id {
				out = append(out, sub)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteSubscriptionByID(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) InsertNotifications(ctx context.Context, notifs []*Notification) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, notifs...)
	return nil
}

func (f *fakeStore) TouchSubscriptions(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, ids...)
	return nil
}

// fakeSender returns a scripted status per endpoint.
type fakeSender struct {
	mu       sync.Mutex
	enabled  bool
	statuses map[string]int
	errs     map[string]error
	sent     []string
}

func (f *fakeSender) Enabled() bool { return f.enabled }

func (f *fakeSender) Send(ctx context.Context, sub *PushSubscription, payload []byte) (int, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sub.Endpoint)
	f.mu.Unlock()

	if err, ok := f.errs[sub.Endpoint]; ok {
		return 0, err
	}
	if status, ok := f.statuses[sub.Endpoint]; ok {
		return status, nil
	}
	return 201, nil
}

func newTestDispatcher(dir *fakeDirectory, store *fakeStore, sender *fakeSender) *Dispatcher {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewDispatcher(dir, store, sender, Options{TitleMaxLen: 100, Concurrency: 4}, nil, logger)
}

func dispatchFixture() (*fakeDirectory, *fakeStore, *fakeSender) {
	dir := &fakeDirectory{
		community: &communities.Community{ID: 5, Name: "Gophers"},
		users: map[int64]*auth.User{
			7: {ID: 7, Name: "Alice"},
		},
		members: []int64{1, 2, 7},
	}
	store := &fakeStore{
		subs: []*PushSubscription{
			{ID: 100, UserID: 1, Endpoint: "https://push/a"},
			{ID: 101, UserID: 1, Endpoint: "https://push/b"},
			{ID: 102, UserID: 2, Endpoint: "https://push/c"},
		},
	}
	sender := &fakeSender{enabled: true, statuses: map[string]int{}, errs: map[string]error{}}
	return dir, store, sender
}

func TestDispatchPersistsAndPushes(t *testing.T) {
	dir, store, sender := dispatchFixture()
	d := newTestDispatcher(dir, store, sender)

	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "Generics"})

	// Two recipients (author excluded) get one notification each.
	require.Len(t, store.inserted, 2)
	assert.Equal(t, "New post in Gophers", store.inserted[0].Title)
	assert.Equal(t, "\"Generics\" by Alice", store.inserted[0].Body)
	assert.Contains(t, string(store.inserted[0].Payload), `"authorName":"Alice"`)

	assert.ElementsMatch(t, []string{"https://push/a", "https://push/b", "https://push/c"}, sender.sent)
	assert.ElementsMatch(t, []int64{100, 101, 102}, store.touched)
}

func TestDispatchGoneSubscriptionDeletedExactlyOnce(t *testing.T) {
	dir, store, sender := dispatchFixture()
	sender.statuses["https://push/b"] = 410
	d := newTestDispatcher(dir, store, sender)

	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "T"})

	// Only the gone subscription is removed; the same user's other
	// subscription survives.
	assert.Equal(t, []int64{101}, store.deleted)
	assert.NotContains(t, store.touched, int64(101))
	assert.Contains(t, store.touched, int64(100))
}

func TestDispatchServerErrorLeavesSubscription(t *testing.T) {
	dir, store, sender := dispatchFixture()
	sender.statuses["https://push/b"] = 500
	d := newTestDispatcher(dir, store, sender)

	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "T"})

	assert.Empty(t, store.deleted)
}

func TestDispatchFailureDoesNotAbortSiblings(t *testing.T) {
	dir, store, sender := dispatchFixture()
	sender.errs["https://push/a"] = assert.AnError
	d := newTestDispatcher(dir, store, sender)

	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "T"})

	// All three sends were attempted despite the first failing.
	assert.Len(t, sender.sent, 3)
	assert.ElementsMatch(t, []int64{101, 102}, store.touched)
}

func TestDispatchPushDisabledStillPersists(t *testing.T) {
	dir, store, sender := dispatchFixture()
	sender.enabled = false
	d := newTestDispatcher(dir, store, sender)

	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "T"})

	assert.Len(t, store.inserted, 2)
	assert.Empty(t, sender.sent)
}

func TestDispatchPersistFailureStillPushes(t *testing.T) {
	dir, store, sender := dispatchFixture()
	store.insertErr = assert.AnError
	d := newTestDispatcher(dir, store, sender)

	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "T"})

	assert.Empty(t, store.inserted)
	assert.Len(t, sender.sent, 3)
}

func TestDispatchNoRecipientsShortCircuits(t *testing.T) {
	dir, store, sender := dispatchFixture()
	dir.members = []int64{7} // only the author
	d := newTestDispatcher(dir, store, sender)

	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "T"})

	assert.Empty(t, store.inserted)
	assert.Empty(t, sender.sent)
}

func TestDispatchResolutionFailureSwallowed(t *testing.T) {
	dir, store, sender := dispatchFixture()
	dir.membersErr = assert.AnError
	d := newTestDispatcher(dir, store, sender)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "T"})
	})
	assert.Empty(t, store.inserted)
	assert.Empty(t, sender.sent)
}

func TestDispatchUnknownCommunitySwallowed(t *testing.T) {
	dir, store, sender := dispatchFixture()
	d := newTestDispatcher(dir, store, sender)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 999, AuthorID: 7, Title: "T"})
	})
	assert.Empty(t, store.inserted)
}

func TestDispatchTitleTruncationBoundary(t *testing.T) {
	dir, store, sender := dispatchFixture()
	d := newTestDispatcher(dir, store, sender)

	long := strings.Repeat("x", 101)
	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: long})

	require.NotEmpty(t, store.inserted)
	expected := "\"" + strings.Repeat("x", 100) + "...\" by Alice"
	assert.Equal(t, expected, store.inserted[0].Body)

	exact := strings.Repeat("y", 100)
	store.inserted = nil
	d.Dispatch(context.Background(), Event{PostID: 101, CommunityID: 5, AuthorID: 7, Title: exact})
	require.NotEmpty(t, store.inserted)
	assert.Equal(t, "\""+exact+"\" by Alice", store.inserted[0].Body)
}

func TestDispatchOptOutsExcludedFromBothChannels(t *testing.T) {
	dir, store, sender := dispatchFixture()
	store.disabled = []int64{1}
	d := newTestDispatcher(dir, store, sender)

	d.Dispatch(context.Background(), Event{PostID: 100, CommunityID: 5, AuthorID: 7, Title: "T"})

	require.Len(t, store.inserted, 1)
	assert.Equal(t, int64(2), store.inserted[0].UserID)
	assert.Equal(t, []string{"https://push/c"}, sender.sent)
}
