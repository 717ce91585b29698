package domain

import (
	"context"
	"time"
)

// Store persists communities, members and their self-reported locations.
// Lookups return (nil, nil) when the record does not exist.
type Store interface {
	UpsertGuild(ctx context.Context, g Guild) error
	GetGuild(ctx context.Context, id string) (*Guild, error)

	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, u User) error

	SetLocation(ctx context.Context, loc Location) error
	GetLocation(ctx context.Context, guildID, userID string) (*Location, error)
	DeleteLocation(ctx context.Context, guildID, userID string) (bool, error)
	ListUserLocations(ctx context.Context, userID string) ([]Location, error)

	Close() error
}

// Guild is a community the bot has been set up in.
type Guild struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Role is a member's privilege level with the bot itself.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a person known to the bot across all communities.
type User struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is a member's self-reported location inside one community.
type Location struct {
	GuildID         string    `json:"guild_id"`
	GuildName       string    `json:"guild_name,omitempty"`
	UserID          string    `json:"user_id"`
	CountryCode     string    `json:"country_code"`
	SubdivisionCode string    `json:"subdivision_code,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
