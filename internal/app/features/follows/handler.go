// internal/app/features/follows/handler.go
package follows

import (
	"net/http"
	"time"

	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/dalemusser/alerthub/internal/app/system/auditlog"
	"github.com/dalemusser/alerthub/internal/app/system/auth"
	"github.com/dalemusser/alerthub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/alerthub/internal/app/system/httpjson"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves follow state, group preferences and the change stream for
// the signed-in user.
type Handler struct {
	Subs     *subscriptions.Coordinator
	Sessions *auth.SessionManager
	Log      *zap.Logger

	// Audit records follow changes. Nil disables auditing.
	Audit *auditlog.Logger

	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewHandler creates a follows handler.
func NewHandler(subs *subscriptions.Coordinator, sessions *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		Subs:     subs,
		Sessions: sessions,
		Log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pingInterval: 30 * time.Second,
	}
}

type followRequest struct {
	Following *bool `json:"following" validate:"required"`
}

type followResponse struct {
	OrgID         primitive.ObjectID `json:"org_id"`
	Following     bool               `json:"following"`
	FollowerCount *int               `json:"follower_count,omitempty"`
}

type preferenceRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type preferenceResponse struct {
	OrgID   primitive.ObjectID `json:"org_id"`
	GroupID primitive.ObjectID `json:"group_id"`
	Enabled bool               `json:"enabled"`
}

type groupView struct {
	ID      primitive.ObjectID `json:"id"`
	Name    string             `json:"name"`
	Private bool               `json:"private"`
	Enabled bool               `json:"enabled"`
}

type groupsResponse struct {
	OrgID   primitive.ObjectID `json:"org_id"`
	OrgName string             `json:"org_name"`
	IsAdmin bool               `json:"is_admin"`
	Groups  []groupView        `json:"groups"`
}

func (h *Handler) userID(r *http.Request) primitive.ObjectID {
	id, _ := h.Sessions.CurrentUserID(r.Context())
	return id
}

// ServeGetFollow handles GET /orgs/{orgID}/follow.
func (h *Handler) ServeGetFollow(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpjson.IDParam(r, "orgID")
	if err != nil {
		httpjson.Error(w, h.Log, "get follow", err)
		return
	}
	following, err := h.Subs.GetFollowStatus(r.Context(), h.userID(r), orgID)
	if err != nil {
		httpjson.Error(w, h.Log, "get follow", err)
		return
	}
	httpjson.Write(w, http.StatusOK, followResponse{OrgID: orgID, Following: following})
}

// ServeSetFollow handles PUT /orgs/{orgID}/follow with {"following":bool}.
// The response carries the reconciled follower count when it could be read.
func (h *Handler) ServeSetFollow(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpjson.IDParam(r, "orgID")
	if err != nil {
		httpjson.Error(w, h.Log, "set follow", err)
		return
	}
	var req followRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, h.Log, "set follow", err)
		return
	}

	uid := h.userID(r)
	if err := h.Subs.SetFollowStatus(r.Context(), uid, orgID, *req.Following); err != nil {
		httpjson.Error(w, h.Log, "set follow", err)
		return
	}
	h.Audit.FollowChanged(r.Context(), r, uid, orgID, *req.Following)

	resp := followResponse{OrgID: orgID, Following: *req.Following}
	if org, err := h.Subs.Organization(r.Context(), orgID); err == nil {
		n := org.FollowerCount
		resp.FollowerCount = &n
	}
	httpjson.Write(w, http.StatusOK, resp)
}

// ServeListGroups handles GET /orgs/{orgID}/groups: the visible groups with
// the caller's preference for each.
func (h *Handler) ServeListGroups(w http.ResponseWriter, r *http.Request) {
	orgID, err := httpjson.IDParam(r, "orgID")
	if err != nil {
		httpjson.Error(w, h.Log, "list groups", err)
		return
	}
	ctx := r.Context()
	uid := h.userID(r)

	org, err := h.Subs.Organization(ctx, orgID)
	if err != nil {
		httpjson.Error(w, h.Log, "list groups", err)
		return
	}
	isAdmin, err := h.Subs.IsOrgAdmin(ctx, uid, org)
	if err != nil {
		httpjson.Error(w, h.Log, "list groups", err)
		return
	}
	views, err := h.Subs.ListGroupPreferences(ctx, uid, orgID, isAdmin)
	if err != nil {
		httpjson.Error(w, h.Log, "list groups", err)
		return
	}

	resp := groupsResponse{
		OrgID:   orgID,
		OrgName: htmlsanitize.PlainText(org.Name),
		IsAdmin: isAdmin,
		Groups:  make([]groupView, 0, len(views)),
	}
	for _, v := range views {
		resp.Groups = append(resp.Groups, groupView{
			ID:      v.Group.ID,
			Name:    htmlsanitize.PlainText(v.Group.Name),
			Private: v.Group.Private(org),
			Enabled: v.Enabled,
		})
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) groupParams(r *http.Request) (orgID, groupID primitive.ObjectID, err error) {
	if orgID, err = httpjson.IDParam(r, "orgID"); err != nil {
		return
	}
	groupID, err = httpjson.IDParam(r, "groupID")
	return
}

// ServeGetPreference handles GET /orgs/{orgID}/groups/{groupID}/preference.
func (h *Handler) ServeGetPreference(w http.ResponseWriter, r *http.Request) {
	orgID, groupID, err := h.groupParams(r)
	if err != nil {
		httpjson.Error(w, h.Log, "get preference", err)
		return
	}
	enabled, err := h.Subs.GetGroupPreference(r.Context(), h.userID(r), orgID, groupID)
	if err != nil {
		httpjson.Error(w, h.Log, "get preference", err)
		return
	}
	httpjson.Write(w, http.StatusOK, preferenceResponse{OrgID: orgID, GroupID: groupID, Enabled: enabled})
}

// ServeSetPreference handles PUT /orgs/{orgID}/groups/{groupID}/preference
// with {"enabled":bool}.
func (h *Handler) ServeSetPreference(w http.ResponseWriter, r *http.Request) {
	orgID, groupID, err := h.groupParams(r)
	if err != nil {
		httpjson.Error(w, h.Log, "set preference", err)
		return
	}
	var req preferenceRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, h.Log, "set preference", err)
		return
	}
	if err := h.Subs.SetGroupPreference(r.Context(), h.userID(r), orgID, groupID, *req.Enabled); err != nil {
		httpjson.Error(w, h.Log, "set preference", err)
		return
	}
	httpjson.Write(w, http.StatusOK, preferenceResponse{OrgID: orgID, GroupID: groupID, Enabled: *req.Enabled})
}
