package subscriptions_test

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/alerthub/internal/app/followcache"
	"github.com/dalemusser/alerthub/internal/app/followercount"
	followstore "github.com/dalemusser/alerthub/internal/app/store/follows"
	groupstore "github.com/dalemusser/alerthub/internal/app/store/groups"
	organizationstore "github.com/dalemusser/alerthub/internal/app/store/organizations"
	userstore "github.com/dalemusser/alerthub/internal/app/store/users"
	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/dalemusser/alerthub/internal/domain/models"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var errTransient = errors.New("connection reset by peer")

// world is an in-memory stand-in for the Mongo-backed stores.
type world struct {
	mu sync.Mutex

	users  map[primitive.ObjectID]models.User
	orgs   map[primitive.ObjectID]models.Organization
	groups map[primitive.ObjectID]models.Group
	prefs  map[followcache.PreferenceKey]bool

	// failWrites makes the next n membership or preference writes fail.
	failWrites int
	// failReconciles makes the next n count writes fail.
	failReconciles int

	followWrites   int
	reconcileCalls int
	inflight       map[followcache.FollowKey]int
	maxInflight    int
	writeHook      func()
}

func newWorld() *world {
	return &world{
		users:    map[primitive.ObjectID]models.User{},
		orgs:     map[primitive.ObjectID]models.Organization{},
		groups:   map[primitive.ObjectID]models.Group{},
		prefs:    map[followcache.PreferenceKey]bool{},
		inflight: map[followcache.FollowKey]int{},
	}
}

func (w *world) addOrg(name string, admins ...primitive.ObjectID) models.Organization {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := models.Organization{ID: primitive.NewObjectID(), Name: name, AdminIDs: admins, Status: "active"}
	w.orgs[o.ID] = o
	return o
}

func (w *world) addGroup(org models.Organization, name string, isPrivate *bool) models.Group {
	w.mu.Lock()
	defer w.mu.Unlock()
	g := models.Group{ID: primitive.NewObjectID(), OrganizationID: org.ID, Name: name, IsPrivate: isPrivate}
	w.groups[g.ID] = g
	return g
}

func (w *world) addUser(role string, follows ...primitive.ObjectID) models.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	u := models.User{ID: primitive.NewObjectID(), Role: role, FollowedOrganizations: follows}
	w.users[u.ID] = u
	return u
}

func (w *world) storedFollowing(userID, orgID primitive.ObjectID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.users[userID].Follows(orgID)
}

func (w *world) storedCount(orgID primitive.ObjectID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orgs[orgID].FollowerCount
}

// follows

type fakeFollows struct{ w *world }

func (f fakeFollows) IsFollowing(_ context.Context, userID, orgID primitive.ObjectID) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	u, ok := f.w.users[userID]
	if !ok {
		return false, followstore.ErrUserNotFound
	}
	return u.Follows(orgID), nil
}

func (f fakeFollows) SetFollowing(ctx context.Context, userID, orgID primitive.ObjectID, following bool) error {
	key := followcache.FollowKey{UserID: userID, OrgID: orgID}
	f.w.mu.Lock()
	f.w.inflight[key]++
	if f.w.inflight[key] > f.w.maxInflight {
		f.w.maxInflight = f.w.inflight[key]
	}
	hook := f.w.writeHook
	f.w.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.inflight[key]--
	f.w.followWrites++

	if err := ctx.Err(); err != nil {
		return err
	}
	if f.w.failWrites > 0 {
		f.w.failWrites--
		return errTransient
	}
	u, ok := f.w.users[userID]
	if !ok {
		return followstore.ErrUserNotFound
	}
	var next []primitive.ObjectID
	for _, id := range u.FollowedOrganizations {
		if id != orgID {
			next = append(next, id)
		}
	}
	if following {
		next = append(next, orgID)
	} else {
		for k := range f.w.prefs {
			if k.UserID == userID && k.OrgID == orgID {
				delete(f.w.prefs, k)
			}
		}
	}
	u.FollowedOrganizations = next
	f.w.users[userID] = u
	return nil
}

func (f fakeFollows) CountFollowers(_ context.Context, orgID primitive.ObjectID) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var n int64
	for _, u := range f.w.users {
		if u.Follows(orgID) {
			n++
		}
	}
	return n, nil
}

// preferences

type fakePrefs struct{ w *world }

func (p fakePrefs) Get(_ context.Context, userID, orgID, groupID primitive.ObjectID) (bool, bool, error) {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	v, ok := p.w.prefs[followcache.PreferenceKey{UserID: userID, OrgID: orgID, GroupID: groupID}]
	return v, ok, nil
}

func (p fakePrefs) Set(_ context.Context, userID, orgID, groupID primitive.ObjectID, enabled bool) error {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	if p.w.failWrites > 0 {
		p.w.failWrites--
		return errTransient
	}
	p.w.prefs[followcache.PreferenceKey{UserID: userID, OrgID: orgID, GroupID: groupID}] = enabled
	return nil
}

func (p fakePrefs) ListByUserOrg(_ context.Context, userID, orgID primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	out := map[primitive.ObjectID]bool{}
	for k, v := range p.w.prefs {
		if k.UserID == userID && k.OrgID == orgID {
			out[k.GroupID] = v
		}
	}
	return out, nil
}

// organizations, groups, users

type fakeOrgs struct{ w *world }

func (o fakeOrgs) GetByID(_ context.Context, id primitive.ObjectID) (models.Organization, error) {
	o.w.mu.Lock()
	defer o.w.mu.Unlock()
	org, ok := o.w.orgs[id]
	if !ok {
		return models.Organization{}, organizationstore.ErrNotFound
	}
	return org, nil
}

func (o fakeOrgs) SetFollowerCount(_ context.Context, id primitive.ObjectID, count int) error {
	o.w.mu.Lock()
	defer o.w.mu.Unlock()
	o.w.reconcileCalls++
	if o.w.failReconciles > 0 {
		o.w.failReconciles--
		return errTransient
	}
	org, ok := o.w.orgs[id]
	if !ok {
		return organizationstore.ErrNotFound
	}
	org.FollowerCount = count
	o.w.orgs[id] = org
	return nil
}

func (o fakeOrgs) ListIDs(context.Context) ([]primitive.ObjectID, error) {
	o.w.mu.Lock()
	defer o.w.mu.Unlock()
	var ids []primitive.ObjectID
	for id := range o.w.orgs {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeGroups struct{ w *world }

func (g fakeGroups) ListByOrg(_ context.Context, orgID primitive.ObjectID) ([]models.Group, error) {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	var out []models.Group
	for _, grp := range g.w.groups {
		if grp.OrganizationID == orgID {
			out = append(out, grp)
		}
	}
	return out, nil
}

func (g fakeGroups) GetInOrg(_ context.Context, orgID, groupID primitive.ObjectID) (models.Group, error) {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	grp, ok := g.w.groups[groupID]
	if !ok || grp.OrganizationID != orgID {
		return models.Group{}, groupstore.ErrNotFound
	}
	return grp, nil
}

type fakeUsers struct{ w *world }

func (u fakeUsers) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	u.w.mu.Lock()
	defer u.w.mu.Unlock()
	user, ok := u.w.users[id]
	if !ok {
		return models.User{}, userstore.ErrNotFound
	}
	return user, nil
}

// session

type fakeSession struct {
	mu        sync.Mutex
	userID    primitive.ObjectID
	signedIn  bool
	valid     bool
	restoreOK bool
	restores  int
}

type actingUserKey struct{}

// as makes ctx carry userID as the signed-in user, overriding the session's
// default user.
func as(ctx context.Context, userID primitive.ObjectID) context.Context {
	return context.WithValue(ctx, actingUserKey{}, userID)
}

func (s *fakeSession) CurrentUserID(ctx context.Context) (primitive.ObjectID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := ctx.Value(actingUserKey{}).(primitive.ObjectID); ok {
		return id, s.signedIn
	}
	return s.userID, s.signedIn
}

func (s *fakeSession) IsSessionValid(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedIn && s.valid
}

func (s *fakeSession) RestoreSession(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restores++
	if s.restoreOK {
		s.valid = true
	}
	return s.restoreOK
}

func (s *fakeSession) restoreCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restores
}

// publisher

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, ch subscriptions.Change) error {
	return m.Called(ctx, ch).Error(0)
}

// harness

type harness struct {
	w       *world
	session *fakeSession
	coord   *subscriptions.Coordinator
	recon   *followercount.Reconciler
}

func newHarness(user models.User, w *world, pub subscriptions.Publisher) *harness {
	session := &fakeSession{userID: user.ID, signedIn: true, valid: true}
	recon := followercount.New(fakeFollows{w}, fakeOrgs{w}, zap.NewNop())
	coord := subscriptions.New(subscriptions.Deps{
		Follows:       fakeFollows{w},
		Preferences:   fakePrefs{w},
		Organizations: fakeOrgs{w},
		Groups:        fakeGroups{w},
		Users:         fakeUsers{w},
		Reconciler:    recon,
		Session:       session,
		Publisher:     pub,
	}, zap.NewNop())
	return &harness{w: w, session: session, coord: coord, recon: recon}
}
