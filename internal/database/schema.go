package database

import (
	"context"
	"database/sql"
	"fmt"
)

// AuthSchema creates the credential store and OAuth2 tables used by the
// authorization server.
var AuthSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_username (username)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		UNIQUE KEY uq_roles_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS authorities (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		UNIQUE KEY uq_authorities_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users_roles (
		user_id BIGINT NOT NULL,
		role_id BIGINT NOT NULL,
		PRIMARY KEY (user_id, role_id),
		CONSTRAINT fk_users_roles_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_users_roles_role FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS roles_authorities (
		role_id BIGINT NOT NULL,
		authority_id BIGINT NOT NULL,
		PRIMARY KEY (role_id, authority_id),
		CONSTRAINT fk_roles_authorities_role FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE,
		CONSTRAINT fk_roles_authorities_authority FOREIGN KEY (authority_id) REFERENCES authorities(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS oauth_clients (
		id CHAR(36) NOT NULL PRIMARY KEY,
		client_id VARCHAR(100) NOT NULL,
		secret_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		grant_types VARCHAR(512) NOT NULL,
		redirect_uris TEXT NOT NULL,
		scopes VARCHAR(512) NOT NULL,
		require_consent BOOLEAN NOT NULL DEFAULT TRUE,
		access_token_ttl_seconds BIGINT NOT NULL,
		refresh_token_ttl_seconds BIGINT NOT NULL,
		reuse_refresh_tokens BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_oauth_clients_client_id (client_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		client_id VARCHAR(100) NOT NULL,
		scope VARCHAR(512) NOT NULL DEFAULT '',
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY ix_refresh_tokens_user (user_id),
		CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// ResourceSchema creates the course catalogue tables used by the resource
// server. Lessons and reviews are removed with their parent.
var ResourceSchema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY ix_courses_owner (owner_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS lessons (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		course_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY ix_lessons_course (course_id),
		CONSTRAINT fk_lessons_course FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		lesson_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL DEFAULT 0,
		title VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY ix_reviews_lesson (lesson_id),
		CONSTRAINT fk_reviews_lesson FOREIGN KEY (lesson_id) REFERENCES lessons(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate executes each statement in order. Statements must be idempotent.
func Migrate(ctx context.Context, db *sql.DB, statements []string) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
