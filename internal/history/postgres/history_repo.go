package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/agentpulse/internal/history"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

type HistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(connString string, maxConns int) (*HistoryRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("history repo: open: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 15
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &HistoryRepo{db: db}, nil
}

// Ping проверяет живость соединения (вызывается из main при старте).
func (r *HistoryRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *HistoryRepo) Close() error {
	return r.db.Close()
}

func (r *HistoryRepo) WriteBatch(ctx context.Context, records []history.Record) error {
	if len(records) == 0 {
		return nil
	}

	// Количество колонок в таблице dashboard_history
	numFields := 9
	placeholderStr := ""
	vals := make([]interface{}, 0, len(records)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, rec := range records {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		payload, _ := json.Marshal(rec.Payload)

		vals = append(vals,
			rec.ID, rec.Kind, rec.Status, rec.AgentName,
			rec.Title, rec.Detail, rec.Severity, payload, rec.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO dashboard_history (record_id, kind, status, agent_name, title, detail, severity, payload, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}
