package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"futurehuman/internal/domain"
)

const agentColumns = `id,user_id,name,role,company_name,description,persona_id,background_color,voice_language,voice_name,style_json,brain_id,brain_instructions,background_id,created_at,updated_at`

func (r Repo) InsertAgent(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	styleJSON, err := json.Marshal(a.Style)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO agents(`+agentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.Identity.Name, nullable(a.Identity.Role), nullable(a.Identity.CompanyName), nullable(a.Identity.Description),
		nullableStringPtr(a.Appearance.PersonaID), nullableStringPtr(a.Appearance.BackgroundColor),
		nullable(a.Voice.Language), nullable(a.Voice.Name), string(styleJSON),
		a.Brain.ID, nullable(a.Brain.Instructions), nullableStringPtr(a.Background.BackgroundID),
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAgent(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	styleJSON, err := json.Marshal(a.Style)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE agents SET name=?, role=?, company_name=?, description=?, persona_id=?, background_color=?, voice_language=?, voice_name=?, style_json=?, brain_id=?, brain_instructions=?, background_id=?, updated_at=? WHERE id=?`,
		a.Identity.Name, nullable(a.Identity.Role), nullable(a.Identity.CompanyName), nullable(a.Identity.Description),
		nullableStringPtr(a.Appearance.PersonaID), nullableStringPtr(a.Appearance.BackgroundColor),
		nullable(a.Voice.Language), nullable(a.Voice.Name), string(styleJSON),
		a.Brain.ID, nullable(a.Brain.Instructions), nullableStringPtr(a.Background.BackgroundID),
		a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAgent(scan func(dest ...any) error) (domain.Agent, error) {
	var a domain.Agent
	var role, company, desc, persona, bgColor, voiceLang, voiceName, brainInstr, backgroundID sql.NullString
	var styleJSON string
	err := scan(&a.ID, &a.UserID, &a.Identity.Name, &role, &company, &desc, &persona, &bgColor,
		&voiceLang, &voiceName, &styleJSON, &a.Brain.ID, &brainInstr, &backgroundID, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if role.Valid {
		a.Identity.Role = role.String
	}
	if company.Valid {
		a.Identity.CompanyName = company.String
	}
	if desc.Valid {
		a.Identity.Description = desc.String
	}
	if persona.Valid {
		a.Appearance.PersonaID = &persona.String
	}
	if bgColor.Valid {
		a.Appearance.BackgroundColor = &bgColor.String
	}
	if voiceLang.Valid {
		a.Voice.Language = voiceLang.String
	}
	if voiceName.Valid {
		a.Voice.Name = voiceName.String
	}
	if brainInstr.Valid {
		a.Brain.Instructions = brainInstr.String
	}
	if backgroundID.Valid {
		a.Background.BackgroundID = &backgroundID.String
	}
	if err := json.Unmarshal([]byte(styleJSON), &a.Style); err != nil {
		return a, err
	}
	return a, nil
}

func (r Repo) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=?`, id)
	return scanAgent(row.Scan)
}

func (r Repo) ListAgents(ctx context.Context, userID string) ([]domain.Agent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAgent(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
