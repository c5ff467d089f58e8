package subscriptions

import (
	"context"
	"fmt"

	"github.com/dalemusser/alerthub/internal/app/followcache"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"github.com/dalemusser/alerthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FilterVisible returns the groups a user may see in org: all of them for an
// organization admin, otherwise only groups that are explicitly public. It
// depends on nothing but its arguments.
func FilterVisible(org models.Organization, groups []models.Group, isAdmin bool) []models.Group {
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if g.OrganizationID != org.ID {
			continue
		}
		if isAdmin || !g.Private(org) {
			out = append(out, g)
		}
	}
	return out
}

// VisibleGroups loads orgID's groups and filters them for the caller.
func (c *Coordinator) VisibleGroups(ctx context.Context, userID, orgID primitive.ObjectID, isAdmin bool) ([]models.Group, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), c.log, "subscriptions.visible_groups")
	defer cancel()

	org, err := c.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, classify(err)
	}
	groups, err := c.groups.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, classify(err)
	}
	return FilterVisible(org, groups, isAdmin), nil
}

// IsOrgAdmin reports whether userID administers org, either as one of its
// admins or through the system admin role.
func (c *Coordinator) IsOrgAdmin(ctx context.Context, userID primitive.ObjectID, org models.Organization) (bool, error) {
	if org.HasAdmin(userID) {
		return true, nil
	}
	u, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return false, classify(err)
	}
	return u.Role == "admin", nil
}

// checkGroupVisible returns nil when groupID belongs to orgID and userID may
// see it. A private group is reported to a non-admin as ErrNotFound, the same
// as a group that does not exist.
func (c *Coordinator) checkGroupVisible(ctx context.Context, userID, orgID, groupID primitive.ObjectID) error {
	g, err := c.groups.GetInOrg(ctx, orgID, groupID)
	if err != nil {
		return classify(err)
	}
	org, err := c.orgs.GetByID(ctx, orgID)
	if err != nil {
		return classify(err)
	}
	if !g.Private(org) {
		return nil
	}
	isAdmin, err := c.IsOrgAdmin(ctx, userID, org)
	if err != nil {
		return err
	}
	if !isAdmin {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupID.Hex())
	}
	return nil
}

// Organization loads orgID.
func (c *Coordinator) Organization(ctx context.Context, orgID primitive.ObjectID) (models.Organization, error) {
	org, err := c.orgs.GetByID(ctx, orgID)
	if err != nil {
		return models.Organization{}, classify(err)
	}
	return org, nil
}

// GroupPreferenceView is a visible group with the user's effective setting.
type GroupPreferenceView struct {
	Group   models.Group
	Enabled bool
}

// ListGroupPreferences returns the groups of orgID visible to userID, each
// with its effective preference. Preferences never set are false.
func (c *Coordinator) ListGroupPreferences(ctx context.Context, userID, orgID primitive.ObjectID, isAdmin bool) ([]GroupPreferenceView, error) {
	visible, err := c.VisibleGroups(ctx, userID, orgID, isAdmin)
	if err != nil {
		return nil, err
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), c.log, "subscriptions.list_group_preferences")
	defer cancel()
	stored, err := c.prefs.ListByUserOrg(ctx, userID, orgID)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]GroupPreferenceView, 0, len(visible))
	for _, g := range visible {
		key := followcache.PreferenceKey{UserID: userID, OrgID: orgID, GroupID: g.ID}
		unlock := c.prefLocks.Lock(key)
		enabled, ok := c.prefCache.Get(key)
		if !ok {
			enabled = stored[g.ID]
			c.prefCache.Set(key, enabled)
		}
		unlock()
		out = append(out, GroupPreferenceView{Group: g, Enabled: enabled})
	}
	return out, nil
}
