package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the DDL for the engine's tables, applied in order.  The
// allocation invariants live here as constraints: UNIQUE(user_id,
// event_id) on ticket_claims makes a second claim per user impossible
// even under concurrent inserts, UNIQUE(ticket_id) makes a
// double-referenced artifact impossible, and the primary key on
// ingest_committed_pages keeps one source page from being issued as
// two artifacts.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'SUBSCRIBER',
		tier          VARCHAR(16)  NOT NULL DEFAULT 'BASIC',
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_refresh_tokens_hash (token_hash),
		CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS events (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		event_date    DATETIME NOT NULL,
		capacity      INT UNSIGNED NOT NULL,
		claimed_count INT UNSIGNED NOT NULL DEFAULT 0,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS ticket_types (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		event_id      BIGINT UNSIGNED NOT NULL,
		name          VARCHAR(255) NOT NULL,
		price_cents   INT UNSIGNED NOT NULL DEFAULT 0,
		quantity      INT UNSIGNED NOT NULL DEFAULT 0,
		tier_criteria VARCHAR(64) NOT NULL DEFAULT 'BASIC,PLUS,VIP',
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_ticket_types_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS ticket_artifacts (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		event_id       BIGINT UNSIGNED NOT NULL,
		ticket_type_id BIGINT UNSIGNED NULL,
		object_key     VARCHAR(255) NOT NULL,
		page_number    INT UNSIGNED NOT NULL DEFAULT 0,
		is_claimed     TINYINT(1) NOT NULL DEFAULT 0,
		claimed_by     BIGINT UNSIGNED NULL,
		claimed_at     DATETIME NULL,
		created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_artifacts_pool (ticket_type_id, is_claimed, created_at),
		CONSTRAINT fk_artifacts_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE,
		CONSTRAINT fk_artifacts_type FOREIGN KEY (ticket_type_id) REFERENCES ticket_types (id) ON DELETE SET NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS ticket_claims (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id        BIGINT UNSIGNED NOT NULL,
		event_id       BIGINT UNSIGNED NOT NULL,
		ticket_id      BIGINT UNSIGNED NOT NULL,
		ticket_type_id BIGINT UNSIGNED NOT NULL,
		claimed_at     DATETIME NOT NULL,
		UNIQUE KEY uq_claims_user_event (user_id, event_id),
		UNIQUE KEY uq_claims_ticket (ticket_id),
		CONSTRAINT fk_claims_user FOREIGN KEY (user_id) REFERENCES users (id),
		CONSTRAINT fk_claims_event FOREIGN KEY (event_id) REFERENCES events (id),
		CONSTRAINT fk_claims_ticket FOREIGN KEY (ticket_id) REFERENCES ticket_artifacts (id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS ingest_sessions (
		id             CHAR(26) PRIMARY KEY,
		ticket_type_id BIGINT UNSIGNED NOT NULL,
		event_id       BIGINT UNSIGNED NOT NULL,
		object_key     VARCHAR(255) NOT NULL,
		page_count     INT UNSIGNED NOT NULL,
		created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_ingest_type FOREIGN KEY (ticket_type_id) REFERENCES ticket_types (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS ingest_committed_pages (
		session_id  CHAR(26) NOT NULL,
		page_number INT UNSIGNED NOT NULL,
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, page_number),
		CONSTRAINT fk_committed_session FOREIGN KEY (session_id) REFERENCES ingest_sessions (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}

// Migrate applies the schema statements one by one.  Statements use
// CREATE TABLE IF NOT EXISTS so Migrate is safe to run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
