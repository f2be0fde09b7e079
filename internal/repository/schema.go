package repository

import (
	"github.com/bubble-duels/duels-backend/pkg/database"
)

// schema 배틀 엔진 테이블. voter의 (battle_id, user_id) PK가
// 유저당 배틀당 1표 불변식을 저장소 수준에서 강제한다
const schema = `
CREATE TABLE IF NOT EXISTS battles (
	id UUID PRIMARY KEY,
	participant_a_id TEXT NOT NULL,
	participant_a_name TEXT NOT NULL,
	participant_a_image TEXT NOT NULL DEFAULT '',
	votes_a INTEGER NOT NULL DEFAULT 0 CHECK (votes_a >= 0),
	participant_b_id TEXT NOT NULL,
	participant_b_name TEXT NOT NULL,
	participant_b_image TEXT NOT NULL DEFAULT '',
	votes_b INTEGER NOT NULL DEFAULT 0 CHECK (votes_b >= 0),
	status TEXT NOT NULL DEFAULT 'waiting',
	target_votes INTEGER NOT NULL,
	duration_seconds INTEGER NOT NULL,
	started_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	created_by TEXT NOT NULL,
	winner_side TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_battles_status ON battles (status);
CREATE INDEX IF NOT EXISTS idx_battles_expires_at ON battles (expires_at) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS battle_voters (
	battle_id UUID NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	side TEXT NOT NULL,
	voted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (battle_id, user_id)
);

CREATE TABLE IF NOT EXISTS participants (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	image_ref TEXT NOT NULL DEFAULT ''
);
`

// EnsureSchema 테이블 생성 (idempotent)
func EnsureSchema(db *database.DB) error {
	_, err := db.Exec(schema)
	return err
}
