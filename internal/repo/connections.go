package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"futurehuman/internal/domain"
)

const connectionColumns = `id,agent_id,provider_id,ext_id,status,config_json,token,created_at,updated_at`

func (r Repo) InsertConnection(ctx context.Context, tx *sql.Tx, c domain.Connection) (int64, error) {
	configJSON, err := marshalConfig(c.Config)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO connections(agent_id,provider_id,ext_id,status,config_json,token,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.AgentID, c.ProviderID, c.ExtID, c.Status, configJSON, nullableStringPtr(c.Token), c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateConnection(ctx context.Context, tx *sql.Tx, c domain.Connection) error {
	configJSON, err := marshalConfig(c.Config)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE connections SET status=?, config_json=?, token=?, updated_at=? WHERE id=? AND agent_id=?`,
		c.Status, configJSON, nullableStringPtr(c.Token), c.UpdatedAt, c.ID, c.AgentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConnection(scan func(dest ...any) error) (domain.Connection, error) {
	var c domain.Connection
	var configJSON, token sql.NullString
	err := scan(&c.ID, &c.AgentID, &c.ProviderID, &c.ExtID, &c.Status, &configJSON, &token, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &c.Config); err != nil {
			return c, err
		}
	}
	if token.Valid {
		c.Token = &token.String
	}
	return c, nil
}

func (r Repo) GetConnection(ctx context.Context, agentID string, id int64) (domain.Connection, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id=? AND agent_id=?`, id, agentID)
	return scanConnection(row.Scan)
}

func (r Repo) ListConnections(ctx context.Context, agentID string) ([]domain.Connection, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE agent_id=? ORDER BY id ASC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteConnection(ctx context.Context, tx *sql.Tx, agentID string, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE id=? AND agent_id=?`, id, agentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalConfig(cfg map[string]any) (any, error) {
	if cfg == nil {
		return nil, nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
