package model

import "time"

// User represents an application user record as stored in the `users`
// table.  The Role gates access to the admin surface (ADMIN vs
// SUBSCRIBER) while the Tier gates which ticket types the user may
// claim; both travel in the access token so the identity middleware can
// resolve (userID, tier) without a database round-trip.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address, used for admin assignment lookups.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN or SUBSCRIBER.
//  Tier         – membership tier checked against ticket type criteria.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    Tier         Tier      // users.tier
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// Roles stored in users.role and carried in the JWT "role" claim.
const (
    RoleAdmin      = "ADMIN"
    RoleSubscriber = "SUBSCRIBER"
)

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user; only the SHA-256 hash of the raw
// token is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
