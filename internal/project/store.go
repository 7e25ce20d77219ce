package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/spatiality/spatiality/db"
	"github.com/spatiality/spatiality/internal/openai"
)

// Store manages project and conversation persistence in a sqlite database.
//
// Store is safe for concurrent use by multiple goroutines; sqlite-level
// contention is absorbed by the busy timeout.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file if needed, applies pending migrations and
// returns a ready Store.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if err := db.Migrate(dbPath); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// WAL mode for concurrency, busy timeout to absorb writer contention.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Debug("project store opened", "path", dbPath)
	return &Store{db: conn, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new project. The name must be unique.
func (s *Store) Create(ctx context.Context, name, defaultContext string) (*Project, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	p := &Project{
		ID:             uuid.New(),
		Name:           name,
		DefaultContext: defaultContext,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, default_context, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID.String(), p.Name, p.DefaultContext, p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.logger.Debug("project created", "id", p.ID, "name", p.Name)
	return p, nil
}

// Get retrieves a project by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, default_context, created_at, updated_at
		 FROM projects WHERE id = ?`, id.String())
	return scanProject(row)
}

// GetByName retrieves a project by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, default_context, created_at, updated_at
		 FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

// List returns all projects ordered by most recently updated.
func (s *Store) List(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, default_context, created_at, updated_at
		 FROM projects ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// SetDefaultContext replaces a project's default context.
func (s *Store) SetDefaultContext(ctx context.Context, id uuid.UUID, defaultContext string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET default_context = ?, updated_at = ? WHERE id = ?`,
		defaultContext, time.Now().UTC().Unix(), id.String())
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireAffected(res)
}

// Rename changes a project's name. The new name must be unique.
func (s *Store) Rename(ctx context.Context, id uuid.UUID, name string) error {
	name, err := NormalizeName(name)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Unix(), id.String())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		return fmt.Errorf("rename project: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a project and its conversation record.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	s.logger.Debug("project deleted", "id", id)
	return nil
}

// AppendMessages adds messages to a project's conversation record in order,
// continuing the sequence numbering from the last persisted message. The
// whole batch is committed atomically.
func (s *Store) AppendMessages(ctx context.Context, projectID uuid.UUID, messages []openai.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE project_id = ?`,
		projectID.String()).Scan(&next)
	if err != nil {
		return fmt.Errorf("next sequence number: %w", err)
	}

	now := time.Now().UTC().Unix()
	for i, msg := range messages {
		var toolCalls sql.NullString
		if len(msg.ToolCalls) > 0 {
			raw, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			toolCalls = sql.NullString{String: string(raw), Valid: true}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (project_id, seq, role, content, tool_calls, tool_call_id, name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID.String(), next+int64(i), string(msg.Role), msg.Content,
			toolCalls, msg.ToolCallID, msg.Name, now)
		if err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	s.logger.Debug("messages appended", "project", projectID, "count", len(messages))
	return nil
}

// Messages returns a project's full conversation record in sequence order.
func (s *Store) Messages(ctx context.Context, projectID uuid.UUID) ([]openai.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id, name
		 FROM messages WHERE project_id = ? ORDER BY seq ASC`,
		projectID.String())
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []openai.Message
	for rows.Next() {
		var (
			role      string
			msg       openai.Message
			toolCalls sql.NullString
		)
		if err := rows.Scan(&role, &msg.Content, &toolCalls, &msg.ToolCallID, &msg.Name); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = openai.Role(role)
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var (
		p                    Project
		id                   string
		createdAt, updatedAt int64
	)
	err := row.Scan(&id, &p.Name, &p.DefaultContext, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid project id %q: %w", id, err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// isUniqueViolation detects sqlite unique-constraint failures without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
