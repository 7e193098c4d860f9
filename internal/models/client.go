package models

import "time"

// Client is the tenant-scoped subject a schedule or run belongs to.
// Endpoint overrides are optional; empty values fall back to the
// environment-level trigger endpoints.
type Client struct {
	ID                uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Email             string `gorm:"column:email;size:255" json:"email"`
	SourceResponseID  string `gorm:"column:source_response_id;size:255;index:idx_clients_source_response" json:"source_response_id"`
	SchedulingEnabled bool   `gorm:"column:scheduling_enabled;default:false" json:"scheduling_enabled"`
	DocEndpoint       string `gorm:"column:doc_endpoint;size:500" json:"doc_endpoint"`
	DocFallbackURL    string `gorm:"column:doc_fallback_url;size:500" json:"doc_fallback_url"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}
