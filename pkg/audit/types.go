package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Team and role events
	EventTypeTeamCreate       EventType = "team.create"
	EventTypeTeamUpdate       EventType = "team.update"
	EventTypeTeamMemberAdd    EventType = "team.member_add"
	EventTypeTeamMemberRemove EventType = "team.member_remove"
	EventTypeRoleUpdate       EventType = "role.update"

	// Blocking events
	EventTypeBlockCreate EventType = "block.create"
	EventTypeBlockDelete EventType = "block.delete"
	EventTypeBlockExpire EventType = "block.expire"

	// Invitation events
	EventTypeInviteCreate EventType = "invite.create"
	EventTypeInviteAccept EventType = "invite.accept"
	EventTypeInviteExpire EventType = "invite.expire"

	// Access events
	EventTypeAccessDenied        EventType = "access.denied"
	EventTypeAccessControlChange EventType = "access.control_change"
	EventTypeSuperuserGrant      EventType = "access.superuser_grant"
	EventTypeAgreementSign       EventType = "access.agreement_sign"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted upon
type ResourceType string

const (
	ResourceTypeProject    ResourceType = "project"
	ResourceTypeComponent  ResourceType = "component"
	ResourceTypeTeam       ResourceType = "team"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeInvitation ResourceType = "invitation"
)

// Event is a single audit log entry.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Actor; nil for system actions like scheduled sweeps.
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	Status  EventStatus `json:"status"`
	Message string      `json:"message,omitempty"`

	// Details carries event-specific structured data.
	Details json.RawMessage `json:"details,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Status:    status,
	}
}

// WithActor attaches the acting user.
func (e *Event) WithActor(userID int64, username string) *Event {
	e.UserID = &userID
	e.Username = username
	return e
}

// WithResource attaches the target resource.
func (e *Event) WithResource(resourceType ResourceType, resourceID string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithMessage attaches a human-readable message.
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}

// WithDetails attaches structured details; marshal failures are
// silently dropped rather than losing the event.
func (e *Event) WithDetails(details any) *Event {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// SearchFilter narrows an audit log search.
type SearchFilter struct {
	Types        []EventType
	UserID       *int64
	ResourceType ResourceType
	ResourceID   string
	Since        *time.Time
	Until        *time.Time
	Limit        int
}
