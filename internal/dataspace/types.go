// Package dataspace holds the data-sharing domain: organisations, catalogue,
// access transactions and their approval workflow, and the append-only logs.
package dataspace

import (
	"encoding/json"
	"time"

	"procuredata.io/internal/auth"
)

type OrganizationType string

const (
	OrgConsumer   OrganizationType = "consumer"
	OrgProvider   OrganizationType = "provider"
	OrgDataHolder OrganizationType = "data_holder"
)

type Organization struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	TaxID     string           `json:"tax_id"`
	Type      OrganizationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
}

type DataProduct struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	SchemaDefinition json.RawMessage `json:"schema_definition,omitempty"`
	Version          string          `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
}

type AssetStatus string

const (
	AssetAvailable  AssetStatus = "available"
	AssetRestricted AssetStatus = "restricted"
	AssetArchived   AssetStatus = "archived"
)

type DataAsset struct {
	ID             string         `json:"id"`
	ProductID      string         `json:"product_id"`
	SubjectOrgID   string         `json:"subject_org_id"`
	HolderOrgID    string         `json:"holder_org_id"`
	Status         AssetStatus    `json:"status"`
	CustomMetadata map[string]any `json:"custom_metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentNotRequired PaymentStatus = "not_required"
)

// DataTransaction is a consumer's request to access an asset.
type DataTransaction struct {
	ID                 string        `json:"id"`
	AssetID            string        `json:"asset_id"`
	ConsumerOrgID      string        `json:"consumer_org_id"`
	SubjectOrgID       string        `json:"subject_org_id"`
	HolderOrgID        string        `json:"holder_org_id"`
	Purpose            string        `json:"purpose"`
	Justification      string        `json:"justification"`
	AccessDurationDays int           `json:"access_duration_days"`
	Status             Status        `json:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	RequestedBy        string        `json:"requested_by"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TransactionDetails is a transaction joined with the names notifications need.
type TransactionDetails struct {
	Transaction     DataTransaction `json:"transaction"`
	ProductName     string          `json:"product_name"`
	ConsumerOrgName string          `json:"consumer_org_name"`
	SubjectOrgName  string          `json:"subject_org_name"`
	HolderOrgName   string          `json:"holder_org_name"`
}

type ApprovalAction string

const (
	ActionPreApprove ApprovalAction = "pre_approve"
	ActionApprove    ApprovalAction = "approve"
	ActionDeny       ApprovalAction = "deny"
	ActionCancel     ApprovalAction = "cancel"
)

// ApprovalEntry is one row of a transaction's approval history. Never mutated.
type ApprovalEntry struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transaction_id"`
	ActorUserID   string         `json:"actor_user_id"`
	ActorOrgID    string         `json:"actor_org_id"`
	Action        ApprovalAction `json:"action"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

type Notification struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	OrganizationID string           `json:"organization_id,omitempty"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Type           NotificationType `json:"type"`
	Link           string           `json:"link,omitempty"`
	IsRead         bool             `json:"is_read"`
	CreatedAt      time.Time        `json:"created_at"`
}

// AuditLog is an append-only record of a user action within an organisation.
type AuditLog struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	UserID         string         `json:"user_id,omitempty"`
	UserEmail      string         `json:"user_email,omitempty"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource"`
	Details        map[string]any `json:"details,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type GovernanceLevel string

const (
	LevelInfo     GovernanceLevel = "info"
	LevelWarning  GovernanceLevel = "warning"
	LevelCritical GovernanceLevel = "critical"
)

// GovernanceLog is an append-only data-governance event.
type GovernanceLog struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id,omitempty"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Level          GovernanceLevel `json:"level"`
	Category       string          `json:"category"`
	Message        string          `json:"message"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Membership links a user to an organisation (a user_profiles row).
type Membership struct {
	UserID           string           `json:"user_id"`
	OrganizationID   string           `json:"organization_id"`
	OrganizationName string           `json:"organization_name"`
	OrganizationType OrganizationType `json:"organization_type"`
	FullName         string           `json:"full_name"`
	Position         string           `json:"position,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// RoleAssignment is a user_roles row. OrganizationID is empty for global roles.
type RoleAssignment struct {
	UserID         string    `json:"user_id"`
	Role           auth.Role `json:"role"`
	OrganizationID string    `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RequesterActivity summarises the transactions requested by one user.
type RequesterActivity struct {
	Count  int
	Recent []DataTransaction
}
