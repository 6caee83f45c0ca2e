package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/WeblateOrg/weblate-go/pkg/audit"
	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// Handlers provides HTTP handlers for access-control operations
type Handlers struct {
	store       *Store
	entities    *trans.Store
	checker     *Checker
	users       *UserCache
	auditLogger audit.Logger
}

// NewHandlers creates access-control handlers
func NewHandlers(store *Store, entities *trans.Store, checker *Checker, users *UserCache, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{
		store:       store,
		entities:    entities,
		checker:     checker,
		users:       users,
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers all access-control routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Permission checking
	router.HandleFunc("/auth/check", h.CheckPermission).Methods("POST")
	router.HandleFunc("/auth/users/{id}/projects/{project_id}/access", h.CheckProjectAccess).Methods("GET")

	// Team management
	router.HandleFunc("/auth/teams", h.CreateTeam).Methods("POST")
	router.HandleFunc("/auth/teams/{id}/members", h.AddTeamMember).Methods("POST")
	router.HandleFunc("/auth/teams/{id}/members/{user_id}", h.RemoveTeamMember).Methods("DELETE")

	// User blocks
	router.HandleFunc("/auth/users/{id}/blocks", h.BlockUser).Methods("POST")
	router.HandleFunc("/auth/blocks/{id}", h.UnblockUser).Methods("DELETE")

	// Invitations
	router.HandleFunc("/auth/invitations", h.CreateInvitation).Methods("POST")
	router.HandleFunc("/auth/invitations/{token}/accept", h.AcceptInvitation).Methods("POST")

	// Contributor agreements
	router.HandleFunc("/auth/users/{id}/agreements", h.SignAgreement).Methods("POST")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func (h *Handlers) loadUser(ctx context.Context, w http.ResponseWriter, userID int64) *User {
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to load user")
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return nil
	}
	if user == nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return nil
	}
	return user
}

// resolveTarget loads the permission target named by type and ID.
func (h *Handlers) resolveTarget(ctx context.Context, targetType string, targetID int64) (any, error) {
	switch targetType {
	case "":
		return nil, nil
	case "project":
		project, err := h.entities.GetProject(ctx, targetID)
		if err != nil || project == nil {
			return nil, fmt.Errorf("project %d not found", targetID)
		}
		return project, nil
	case "component":
		component, err := h.entities.GetComponent(ctx, targetID)
		if err != nil || component == nil {
			return nil, fmt.Errorf("component %d not found", targetID)
		}
		return component, nil
	case "translation":
		translation, err := h.entities.GetTranslation(ctx, targetID)
		if err != nil || translation == nil {
			return nil, fmt.Errorf("translation %d not found", targetID)
		}
		return translation, nil
	case "unit":
		unit, err := h.entities.GetUnit(ctx, targetID)
		if err != nil || unit == nil {
			return nil, fmt.Errorf("unit %d not found", targetID)
		}
		return unit, nil
	case "component_list":
		list, err := h.entities.GetComponentList(ctx, targetID)
		if err != nil || list == nil {
			return nil, fmt.Errorf("component list %d not found", targetID)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unknown target type %q", targetType)
	}
}

// CheckPermission evaluates one permission for one user against an
// optional target.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID     int64  `json:"user_id"`
		Permission string `json:"permission"`
		TargetType string `json:"target_type,omitempty"`
		TargetID   int64  `json:"target_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user := h.loadUser(ctx, w, req.UserID)
	if user == nil {
		return
	}
	target, err := h.resolveTarget(ctx, req.TargetType, req.TargetID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	decision, err := h.checker.Check(ctx, user, req.Permission, target)
	if err != nil {
		var unsupported *UnsupportedTargetError
		if errors.Is(err, ErrUnknownPermission) || errors.As(err, &unsupported) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logrus.WithError(err).Error("Permission check failed")
		http.Error(w, "Permission check failed", http.StatusInternalServerError)
		return
	}

	if !decision.Allowed {
		h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeAccessDenied, audit.EventStatusDenied).
			WithActor(user.ID, user.Username).
			WithResource(audit.ResourceType(req.TargetType), strconv.FormatInt(req.TargetID, 10)).
			WithMessage(req.Permission))
	}
	writeJSON(w, http.StatusOK, decision)
}

// CheckProjectAccess reports bare project access.
func (h *Handlers) CheckProjectAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	projectID, err := pathID(r, "project_id")
	if err != nil {
		http.Error(w, "Invalid project ID", http.StatusBadRequest)
		return
	}
	user := h.loadUser(ctx, w, userID)
	if user == nil {
		return
	}
	project, err := h.entities.GetProject(ctx, projectID)
	if err != nil || project == nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"access": h.checker.CanAccessProject(ctx, user, project),
	})
}

// CreateTeam creates a group from a JSON description.
func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Name              string  `json:"name"`
		ProjectSelection  int     `json:"project_selection"`
		LanguageSelection int     `json:"language_selection"`
		RoleNames         []string `json:"roles"`
		ProjectIDs        []int64 `json:"project_ids"`
		LanguageIDs       []int64 `json:"language_ids"`
		Enforce2FA        bool    `json:"enforce_2fa"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Team name is required", http.StatusBadRequest)
		return
	}

	group := &Group{
		Name:              req.Name,
		ProjectSelection:  ProjectSelection(req.ProjectSelection),
		LanguageSelection: LanguageSelection(req.LanguageSelection),
		Enforce2FA:        req.Enforce2FA,
	}
	for _, name := range req.RoleNames {
		role, err := h.store.GetRoleByName(ctx, name)
		if err != nil || role == nil {
			http.Error(w, fmt.Sprintf("Unknown role %q", name), http.StatusBadRequest)
			return
		}
		group.Roles = append(group.Roles, role)
	}
	for _, id := range req.ProjectIDs {
		project, err := h.entities.GetProject(ctx, id)
		if err != nil || project == nil {
			http.Error(w, fmt.Sprintf("Unknown project %d", id), http.StatusBadRequest)
			return
		}
		group.Projects = append(group.Projects, project)
	}
	languages, err := h.entities.GetLanguagesByIDs(ctx, req.LanguageIDs)
	if err != nil {
		http.Error(w, "Failed to resolve languages", http.StatusInternalServerError)
		return
	}
	for _, id := range req.LanguageIDs {
		if lang, ok := languages[id]; ok {
			group.Languages = append(group.Languages, lang)
		}
	}

	if err := h.store.CreateGroup(ctx, group); err != nil {
		logrus.WithError(err).Error("Failed to create team")
		http.Error(w, "Failed to create team", http.StatusInternalServerError)
		return
	}

	h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeTeamCreate, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeTeam, strconv.FormatInt(group.ID, 10)).
		WithMessage(group.Name))
	writeJSON(w, http.StatusCreated, group)
}

// AddTeamMember adds a user to a team.
func (h *Handlers) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid team ID", http.StatusBadRequest)
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.AddUserToGroup(ctx, req.UserID, groupID); err != nil {
		logrus.WithError(err).Error("Failed to add team member")
		http.Error(w, "Failed to add team member", http.StatusInternalServerError)
		return
	}
	h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeTeamMemberAdd, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeTeam, strconv.FormatInt(groupID, 10)).
		WithDetails(map[string]int64{"user_id": req.UserID}))
	w.WriteHeader(http.StatusNoContent)
}

// RemoveTeamMember removes a user from a team.
func (h *Handlers) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid team ID", http.StatusBadRequest)
		return
	}
	userID, err := pathID(r, "user_id")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if err := h.store.RemoveUserFromGroup(ctx, userID, groupID); err != nil {
		logrus.WithError(err).Error("Failed to remove team member")
		http.Error(w, "Failed to remove team member", http.StatusInternalServerError)
		return
	}
	h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeTeamMemberRemove, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeTeam, strconv.FormatInt(groupID, 10)).
		WithDetails(map[string]int64{"user_id": userID}))
	w.WriteHeader(http.StatusNoContent)
}

// BlockUser blocks a user on a project, optionally until an expiry.
func (h *Handlers) BlockUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	var req struct {
		ProjectID int64      `json:"project_id"`
		Expiry    *time.Time `json:"expiry,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	project, err := h.entities.GetProject(ctx, req.ProjectID)
	if err != nil || project == nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	block := &UserBlock{UserID: userID, Project: project}
	if req.Expiry != nil {
		block.Expiry = *req.Expiry
	}
	if err := h.store.CreateUserBlock(ctx, block); err != nil {
		logrus.WithError(err).Error("Failed to block user")
		http.Error(w, "Failed to block user", http.StatusInternalServerError)
		return
	}
	h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeBlockCreate, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeProject, project.Slug).
		WithDetails(map[string]int64{"user_id": userID}))
	writeJSON(w, http.StatusCreated, block)
}

// UnblockUser removes a block.
func (h *Handlers) UnblockUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blockID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid block ID", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteUserBlock(ctx, blockID); err != nil {
		logrus.WithError(err).Error("Failed to unblock user")
		http.Error(w, "Failed to unblock user", http.StatusInternalServerError)
		return
	}
	h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeBlockDelete, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeUser, strconv.FormatInt(blockID, 10)))
	w.WriteHeader(http.StatusNoContent)
}

// CreateInvitation creates a pending invitation and returns its token.
func (h *Handlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var invitation Invitation
	if err := json.NewDecoder(r.Body).Decode(&invitation); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if invitation.UserID == 0 && invitation.Email == "" {
		http.Error(w, "Invitation needs a user or an e-mail", http.StatusBadRequest)
		return
	}
	if err := h.store.CreateInvitation(ctx, &invitation); err != nil {
		logrus.WithError(err).Error("Failed to create invitation")
		http.Error(w, "Failed to create invitation", http.StatusInternalServerError)
		return
	}
	h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeInviteCreate, audit.EventStatusSuccess).
		WithActor(invitation.AuthorID, "").
		WithResource(audit.ResourceTypeInvitation, invitation.Token))
	writeJSON(w, http.StatusCreated, invitation)
}

// AcceptInvitation consumes an invitation token on behalf of a user.
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := mux.Vars(r)["token"]

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	invitation, err := h.store.GetInvitationByToken(ctx, token)
	if err != nil {
		logrus.WithError(err).Error("Failed to load invitation")
		http.Error(w, "Failed to load invitation", http.StatusInternalServerError)
		return
	}
	if invitation == nil {
		http.Error(w, "Invitation not found", http.StatusNotFound)
		return
	}
	// Personal invitations can only be accepted by their addressee.
	if invitation.UserID != 0 && invitation.UserID != req.UserID {
		http.Error(w, "Invitation is for a different user", http.StatusForbidden)
		return
	}

	if err := h.store.AcceptInvitation(ctx, invitation, req.UserID); err != nil {
		logrus.WithError(err).Error("Failed to accept invitation")
		http.Error(w, "Failed to accept invitation", http.StatusConflict)
		return
	}
	event := audit.NewEvent(audit.EventTypeInviteAccept, audit.EventStatusSuccess).
		WithActor(req.UserID, "").
		WithResource(audit.ResourceTypeInvitation, token)
	if invitation.IsSuperuser {
		h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeSuperuserGrant, audit.EventStatusSuccess).
			WithActor(req.UserID, ""))
	}
	h.auditLogger.Log(ctx, event)
	w.WriteHeader(http.StatusNoContent)
}

// SignAgreement records acceptance of a component's contributor
// agreement.
func (h *Handlers) SignAgreement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	var req struct {
		ComponentID int64 `json:"component_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	component, err := h.entities.GetComponent(ctx, req.ComponentID)
	if err != nil || component == nil {
		http.Error(w, "Component not found", http.StatusNotFound)
		return
	}
	if component.Agreement == "" {
		http.Error(w, "Component has no contributor agreement", http.StatusBadRequest)
		return
	}
	if err := h.store.SignAgreement(ctx, userID, req.ComponentID); err != nil {
		logrus.WithError(err).Error("Failed to sign agreement")
		http.Error(w, "Failed to sign agreement", http.StatusInternalServerError)
		return
	}
	h.auditLogger.Log(ctx, audit.NewEvent(audit.EventTypeAgreementSign, audit.EventStatusSuccess).
		WithActor(userID, "").
		WithResource(audit.ResourceTypeComponent, component.Slug))
	w.WriteHeader(http.StatusNoContent)
}
