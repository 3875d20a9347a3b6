package notify

import (
	"context"
	"fmt"
	"sort"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/communities"
)

// Directory answers the membership questions recipient resolution needs.
// Satisfied by communities.Store.
type Directory interface {
	GetCommunity(ctx context.Context, id int64) (*communities.Community, error)
	GetUser(ctx context.Context, id int64) (*auth.User, error)
	ActiveMemberIDs(ctx context.Context, communityID int64) ([]int64, error)
	OrgAdminIDs(ctx context.Context, orgID int64) ([]int64, error)
	SuperAdminIDs(ctx context.Context) ([]int64, error)
}

// PreferenceSource filters candidates by explicit opt-outs.
type PreferenceSource interface {
	DisabledUserIDs(ctx context.Context, communityID int64, userIDs []int64) ([]int64, error)
}

// ResolveRecipients computes who should hear about a new post in the
// community: active members, plus admins of the owning org, plus super
// admins, minus the author, minus users who opted out. The result is
// deduplicated and sorted for stable fan-out order.
func ResolveRecipients(ctx context.Context, dir Directory, prefs PreferenceSource, communityID, authorID int64) ([]int64, error) {
	community, err := dir.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load community %d: %w", communityID, err)
	}
	return resolveForCommunity(ctx, dir, prefs, community, authorID)
}

// resolveForCommunity is ResolveRecipients for an already-loaded
// community, so a dispatch that needs the community row anyway resolves
// with a single fetch.
func resolveForCommunity(ctx context.Context, dir Directory, prefs PreferenceSource, community *communities.Community, authorID int64) ([]int64, error) {
	candidates := make(map[int64]struct{})

	members, err := dir.ActiveMemberIDs(ctx, community.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve members: %w", err)
	}
	for _, id := range members {
		candidates[id] = struct{}{}
	}

	if community.OrgID != nil {
		orgAdmins, err := dir.OrgAdminIDs(ctx, *community.OrgID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve org admins: %w", err)
		}
		for _, id := range orgAdmins {
			candidates[id] = struct{}{}
		}
	}

	superAdmins, err := dir.SuperAdminIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve super admins: %w", err)
	}
	for _, id := range superAdmins {
		candidates[id] = struct{}{}
	}

	delete(candidates, authorID)

	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}

	// One preference query over exactly the candidate set.
	disabled, err := prefs.DisabledUserIDs(ctx, community.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve preferences: %w", err)
	}
	for _, id := range disabled {
		delete(candidates, id)
	}

	result := make([]int64, 0, len(candidates))
	for id := range candidates {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })

	return result, nil
}
