package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/communities"
)

// fakeDirectory serves canned membership data.
type fakeDirectory struct {
	community   *communities.Community
	users       map[int64]*auth.User
	members     []int64
	orgAdmins   map[int64][]int64
	superAdmins []int64

	communityErr error
	membersErr   error
}

func (f *fakeDirectory) GetCommunity(ctx context.Context, id int64) (*communities.Community, error) {
	if f.communityErr != nil {
		return nil, f.communityErr
	}
	if f.community == nil || f.community.ID != id {
		return nil, communities.ErrNotFound
	}
	return f.community, nil
}

func (f *fakeDirectory) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, communities.ErrNotFound
	}
	return u, nil
}

func (f *fakeDirectory) ActiveMemberIDs(ctx context.Context, communityID int64) ([]int64, error) {
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return f.members, nil
}

func (f *fakeDirectory) OrgAdminIDs(ctx context.Context, orgID int64) ([]int64, error) {
	return f.orgAdmins[orgID], nil
}

func (f *fakeDirectory) SuperAdminIDs(ctx context.Context) ([]int64, error) {
	return f.superAdmins, nil
}

// fakePrefs records the candidate set it was asked about.
type fakePrefs struct {
	disabled []int64
	askedFor []int64
	calls    int
}

func (f *fakePrefs) DisabledUserIDs(ctx context.Context, communityID int64, userIDs []int64) ([]int64, error) {
	f.calls++
	f.askedFor = append([]int64(nil), userIDs...)
	return f.disabled, nil
}

func int64Ptr(v int64) *int64 { return &v }

func TestResolveRecipientsUnionDedup(t *testing.T) {
	dir := &fakeDirectory{
		community:   &communities.Community{ID: 5, OrgID: int64Ptr(3), Name: "Gophers"},
		members:     []int64{1, 2, 10},
		orgAdmins:   map[int64][]int64{3: {10, 11}},
		superAdmins: []int64{20},
	}
	prefs := &fakePrefs{}

	got, err := ResolveRecipients(context.Background(), dir, prefs, 5, 99)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 10, 11, 20}, got)
	assert.Equal(t, 1, prefs.calls)
}

func TestResolveRecipientsExcludesAuthor(t *testing.T) {
	dir := &fakeDirectory{
		community: &communities.Community{ID: 5, Name: "Gophers"},
		members:   []int64{1, 2, 7},
	}
	prefs := &fakePrefs{}

	got, err := ResolveRecipients(context.Background(), dir, prefs, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got)
}

func TestResolveRecipientsAuthorExcludedEvenAsAdmin(t *testing.T) {
	dir := &fakeDirectory{
		community:   &communities.Community{ID: 5, OrgID: int64Ptr(3), Name: "Gophers"},
		members:     []int64{1},
		orgAdmins:   map[int64][]int64{3: {7}},
		superAdmins: []int64{7},
	}
	prefs := &fakePrefs{}

	got, err := ResolveRecipients(context.Background(), dir, prefs, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got)
}

func TestResolveRecipientsDropsOptOuts(t *testing.T) {
	dir := &fakeDirectory{
		community: &communities.Community{ID: 5, Name: "Gophers"},
		members:   []int64{1, 2, 3},
	}
	prefs := &fakePrefs{disabled: []int64{2}}

	got, err := ResolveRecipients(context.Background(), dir, prefs, 5, 99)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, got)
}

func TestResolveRecipientsPreferenceQueryCoversExactCandidates(t *testing.T) {
	dir := &fakeDirectory{
		community:   &communities.Community{ID: 5, OrgID: int64Ptr(3), Name: "Gophers"},
		members:     []int64{1, 2},
		orgAdmins:   map[int64][]int64{3: {11}},
		superAdmins: []int64{20},
	}
	prefs := &fakePrefs{}

	_, err := ResolveRecipients(context.Background(), dir, prefs, 5, 2)
	require.NoError(t, err)

	// Candidates after author removal: 1, 11, 20.
	assert.ElementsMatch(t, []int64{1, 11, 20}, prefs.askedFor)
}

func TestResolveRecipientsNoOrg(t *testing.T) {
	dir := &fakeDirectory{
		community:   &communities.Community{ID: 5, Name: "Gophers"},
		members:     []int64{1},
		orgAdmins:   map[int64][]int64{3: {11}},
		superAdmins: []int64{20},
	}
	prefs := &fakePrefs{}

	got, err := ResolveRecipients(context.Background(), dir, prefs, 5, 99)
	require.NoError(t, err)
	// Org admins are not consulted for orgless communities.
	assert.Equal(t, []int64{1, 20}, got)
}

func TestResolveRecipientsEmptySkipsPreferenceQuery(t *testing.T) {
	dir := &fakeDirectory{
		community: &communities.Community{ID: 5, Name: "Gophers"},
		members:   []int64{7},
	}
	prefs := &fakePrefs{}

	got, err := ResolveRecipients(context.Background(), dir, prefs, 5, 7)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, prefs.calls)
}

func TestResolveRecipientsPropagatesQueryFailure(t *testing.T) {
	dir := &fakeDirectory{
		community:  &communities.Community{ID: 5, Name: "Gophers"},
		membersErr: assert.AnError,
	}

	_, err := ResolveRecipients(context.Background(), dir, &fakePrefs{}, 5, 99)
	assert.Error(t, err)
}
