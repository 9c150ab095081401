package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"argus/pkg/database"
	"argus/pkg/intel"
)

//go:embed migrations
var migrationFiles embed.FS

// PostgresStore loads entity/relationship snapshots from postgres. Snapshots
// are materialized into a MemoryGraph before scoring so the assessment core
// never blocks on the database.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore wraps a connected database.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the store schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return database.AutoMigrate(ctx, s.db, migrationFiles, "migrations")
}

// Migrator exposes fine-grained migration control for operational tooling.
func (s *PostgresStore) Migrator() (*database.Migrator, error) {
	return database.NewMigrator(s.db, migrationFiles, "migrations")
}

// LoadGraph materializes a snapshot of all entities and relationships.
func (s *PostgresStore) LoadGraph(ctx context.Context) (*MemoryGraph, error) {
	entities, err := s.loadEntities(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := s.loadRelationships(ctx)
	if err != nil {
		return nil, err
	}
	g := NewMemoryGraph()
	g.Load(entities, rels)
	return g, nil
}

func (s *PostgresStore) loadEntities(ctx context.Context) ([]*intel.Entity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, entity_type, value, risk_score, confidence,
		       first_seen, last_seen, verified, metadata, tags
		FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var entities []*intel.Entity
	for rows.Next() {
		var (
			e         intel.Entity
			entType   string
			firstSeen sql.NullTime
			lastSeen  sql.NullTime
			metaRaw   []byte
			tags      pq.StringArray
		)
		if err := rows.Scan(&e.ID, &entType, &e.Value, &e.RiskScore, &e.Confidence,
			&firstSeen, &lastSeen, &e.Verified, &metaRaw, &tags); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Type = intel.EntityType(entType)
		if firstSeen.Valid {
			e.FirstSeen = firstSeen.Time
		}
		if lastSeen.Valid {
			e.LastSeen = lastSeen.Time
		}
		e.Metadata = decodeMeta(metaRaw)
		e.Tags = tags
		entities = append(entities, &e)
	}
	return entities, rows.Err()
}

func (s *PostgresStore) loadRelationships(ctx context.Context) ([]*intel.Relationship, error) {
	rows, err := s.db.Query(ctx, `
		SELECT source_id, target_id, rel_type, confidence, weight, metadata, created_at
		FROM relationships`)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []*intel.Relationship
	for rows.Next() {
		var (
			r         intel.Relationship
			relType   string
			metaRaw   []byte
			createdAt sql.NullTime
		)
		if err := rows.Scan(&r.SourceID, &r.TargetID, &relType, &r.Confidence,
			&r.Weight, &metaRaw, &createdAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		r.Type = intel.RelationType(relType)
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time
		}
		r.Metadata = decodeMeta(metaRaw)
		rels = append(rels, &r)
	}
	return rels, rows.Err()
}

// SaveVerdict persists an assessment outcome for audit queries.
func (s *PostgresStore) SaveVerdict(ctx context.Context, entityID string, riskScore float64, riskLevel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO risk_verdicts (entity_id, risk_score, risk_level, verdict, assessed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entityID, riskScore, riskLevel, body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// decodeMeta tolerates null, invalid and string-wrapped metadata columns.
func decodeMeta(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return map[string]any{"_raw": string(raw)}
	}
	return meta
}
