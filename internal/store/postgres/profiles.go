package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callinsight/internal/models"
	"callinsight/internal/store"
)

// ProfileStore reads administrator-managed analysis profiles. The profiles
// table is owned by the external management tooling; the pipeline never
// writes it.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a profile store backed by the given pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// GetProfile fetches one profile by id, resolving its variant once so the
// analysis stage can dispatch on Kind without re-inspecting shapes.
func (p *ProfileStore) GetProfile(ctx context.Context, profileID string) (models.AnalysisProfile, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT profile_id, name, model, temperature,
			comprehensive_analysis, comprehensive_prompt, response_schema, prompts
		FROM profiles WHERE profile_id = $1`, profileID)

	var out models.AnalysisProfile
	var comprehensive bool
	var prompt *string
	var schema json.RawMessage
	var prompts map[string]string
	err := row.Scan(&out.ID, &out.Name, &out.Model, &out.Temperature,
		&comprehensive, &prompt, &schema, &prompts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AnalysisProfile{}, store.ErrProfileNotFound
		}
		return models.AnalysisProfile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	if comprehensive {
		out.Kind = models.ProfileComprehensive
		if prompt != nil {
			out.Prompt = *prompt
		}
		out.ResponseSchema = schema
	} else {
		out.Kind = models.ProfileSeparate
		out.Prompts = prompts
	}
	return out, nil
}
