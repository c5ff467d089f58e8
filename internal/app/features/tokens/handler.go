// internal/app/features/tokens/handler.go
package tokens

import (
	"context"
	"errors"
	"net/http"
	"strings"

	tokenstore "github.com/dalemusser/alerthub/internal/app/store/tokens"
	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/dalemusser/alerthub/internal/app/system/auditlog"
	"github.com/dalemusser/alerthub/internal/app/system/auth"
	"github.com/dalemusser/alerthub/internal/app/system/httpjson"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"github.com/dalemusser/alerthub/internal/app/tokens"
	"github.com/dalemusser/alerthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// InstallRecorder stores what an installation reports on launch.
type InstallRecorder interface {
	Record(ctx context.Context, d models.DeviceInstall) error
}

// OrgAdmins resolves organizations and their administrators.
type OrgAdmins interface {
	Organization(ctx context.Context, orgID primitive.ObjectID) (models.Organization, error)
	IsOrgAdmin(ctx context.Context, userID primitive.ObjectID, org models.Organization) (bool, error)
}

// CountReconciler recomputes one organization's follower count.
type CountReconciler interface {
	Reconcile(ctx context.Context, orgID primitive.ObjectID) (int, error)
}

// Handler serves token registration and the organization admin operations.
type Handler struct {
	Tokens     *tokens.Registrar
	Installs   InstallRecorder
	Admins     OrgAdmins
	Reconciler CountReconciler
	Sessions   *auth.SessionManager
	Log        *zap.Logger

	// Audit records token and admin events. Nil disables auditing.
	Audit *auditlog.Logger
}

// NewHandler creates a tokens handler.
func NewHandler(reg *tokens.Registrar, installs InstallRecorder, admins OrgAdmins, recon CountReconciler, sessions *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		Tokens:     reg,
		Installs:   installs,
		Admins:     admins,
		Reconciler: recon,
		Sessions:   sessions,
		Log:        logger,
	}
}

type registerRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type installRequest struct {
	InstallID string `json:"install_id" validate:"required,max=128"`
	PushToken string `json:"push_token" validate:"max=4096"`
	Platform  string `json:"platform" validate:"required,oneof=ios android web"`
}

type remediationResponse struct {
	OrgID             primitive.ObjectID   `json:"org_id"`
	Followers         int                  `json:"followers"`
	Missing           int                  `json:"missing"`
	Registered        int                  `json:"registered"`
	AlreadyRegistered int                  `json:"already_registered"`
	NoTokenAvailable  int                  `json:"no_token_available"`
	Failed            int                  `json:"failed"`
	FailedUserIDs     []primitive.ObjectID `json:"failed_user_ids,omitempty"`
	Results           []tokens.UserResult  `json:"results"`
}

type reconcileResponse struct {
	OrgID         primitive.ObjectID `json:"org_id"`
	FollowerCount int                `json:"follower_count"`
}

var errForbidden = errors.New("organization admins only")

func (h *Handler) userID(r *http.Request) primitive.ObjectID {
	id, _ := h.Sessions.CurrentUserID(r.Context())
	return id
}

// ServeStatus handles GET /tokens.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Tokens.Lookup(r.Context(), h.userID(r))
	if err != nil {
		httpjson.Error(w, h.Log, "token status", err)
		return
	}
	httpjson.Write(w, http.StatusOK, st)
}

// ServeRegister handles PUT /tokens with {"token","platform"}. It is the
// callback the app makes when its push platform issues a token.
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, h.Log, "register token", err)
		return
	}
	uid := h.userID(r)
	if err := h.Tokens.HandleTokenIssued(r.Context(), uid, req.Token, req.Platform); err != nil {
		httpjson.Error(w, h.Log, "register token", err)
		return
	}
	h.Audit.TokenRegistered(r.Context(), r, uid,
		strings.ToLower(strings.TrimSpace(req.Platform)),
		tokenstore.Fingerprint(strings.TrimSpace(req.Token)))

	st, err := h.Tokens.Lookup(r.Context(), uid)
	if err != nil {
		// Registered; only the read-back failed.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpjson.Write(w, http.StatusOK, st)
}

// ServeClear handles DELETE /tokens.
func (h *Handler) ServeClear(w http.ResponseWriter, r *http.Request) {
	uid := h.userID(r)
	if err := h.Tokens.ClearToken(r.Context(), uid); err != nil {
		httpjson.Error(w, h.Log, "clear token", err)
		return
	}
	h.Audit.TokenCleared(r.Context(), r, uid)
	w.WriteHeader(http.StatusNoContent)
}

// ServeInstall handles PUT /installs: the app reports its installation and
// the push token it currently holds, if any.
func (h *Handler) ServeInstall(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, h.Log, "record install", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "tokens.record_install")
	defer cancel()

	d := models.DeviceInstall{
		UserID:    h.userID(r),
		InstallID: strings.TrimSpace(req.InstallID),
		PushToken: strings.TrimSpace(req.PushToken),
		Platform:  req.Platform,
	}
	if err := h.Installs.Record(ctx, d); err != nil {
		httpjson.Error(w, h.Log, "record install", subscriptions.Classify(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireOrgAdmin resolves {orgID} and checks the caller administers it.
func (h *Handler) requireOrgAdmin(w http.ResponseWriter, r *http.Request, op string) (primitive.ObjectID, bool) {
	orgID, err := httpjson.IDParam(r, "orgID")
	if err != nil {
		httpjson.Error(w, h.Log, op, err)
		return primitive.NilObjectID, false
	}
	org, err := h.Admins.Organization(r.Context(), orgID)
	if err != nil {
		httpjson.Error(w, h.Log, op, err)
		return primitive.NilObjectID, false
	}
	uid := h.userID(r)
	ok, err := h.Admins.IsOrgAdmin(r.Context(), uid, org)
	if err != nil {
		httpjson.Error(w, h.Log, op, err)
		return primitive.NilObjectID, false
	}
	if !ok {
		h.Log.Info("non-admin attempted org operation",
			zap.String("op", op),
			zap.String("user_id", uid.Hex()),
			zap.String("org_id", orgID.Hex()))
		h.Audit.OrgAccessDenied(r.Context(), r, uid, orgID, op)
		httpjson.Write(w, http.StatusForbidden, map[string]string{"error": errForbidden.Error()})
		return primitive.NilObjectID, false
	}
	return orgID, true
}

// ServeRemediate handles POST /orgs/{orgID}/tokens/remediate. A sweep where
// some users failed answers 207 with the failed ids.
func (h *Handler) ServeRemediate(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.requireOrgAdmin(w, r, "remediate tokens")
	if !ok {
		return
	}
	report, err := h.Tokens.RegisterMissingTokens(r.Context(), orgID)
	if err != nil {
		httpjson.Error(w, h.Log, "remediate tokens", err)
		return
	}

	resp := remediationResponse{
		OrgID:             orgID,
		Followers:         report.Followers,
		Missing:           len(report.Results),
		Registered:        report.Count(tokens.Registered),
		AlreadyRegistered: report.Count(tokens.AlreadyRegistered),
		NoTokenAvailable:  report.Count(tokens.NoTokenAvailable),
		Failed:            report.Count(tokens.Failed),
		Results:           report.Results,
	}
	if resp.Results == nil {
		resp.Results = []tokens.UserResult{}
	}

	h.Audit.TokensRemediated(r.Context(), r, h.userID(r), orgID, resp.Missing, resp.Registered, resp.Failed)

	status := http.StatusOK
	var pf *tokens.PartialFailure
	if errors.As(report.Err(), &pf) {
		status = http.StatusMultiStatus
		resp.FailedUserIDs = pf.FailedUserIDs()
	}
	httpjson.Write(w, status, resp)
}

// ServeReconcile handles POST /orgs/{orgID}/reconcile.
func (h *Handler) ServeReconcile(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.requireOrgAdmin(w, r, "reconcile count")
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "tokens.reconcile")
	defer cancel()

	n, err := h.Reconciler.Reconcile(ctx, orgID)
	if err != nil {
		httpjson.Error(w, h.Log, "reconcile count", subscriptions.Classify(err))
		return
	}
	h.Audit.FollowerCountReconciled(r.Context(), r, h.userID(r), orgID, n)
	httpjson.Write(w, http.StatusOK, reconcileResponse{OrgID: orgID, FollowerCount: n})
}
