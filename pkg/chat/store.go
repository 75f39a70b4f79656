package chat

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kbforge/kbforge/pkg/models"
)

// eligibleChannelTypes restricts processing to open and private
// channels; direct and group messages are excluded.
var eligibleChannelTypes = []string{"O", "P"}

// Store is the relational post store consumed by the chat processor.
type Store interface {
	// LatestPostAt returns the maximum creation timestamp across all
	// posts, or 0 when the table is empty.
	LatestPostAt(ctx context.Context) (int64, error)

	// RootPostsBetween returns root posts in [start, end) for an
	// eligible channel, ordered by creation time.
	RootPostsBetween(ctx context.Context, start, end int64, channelID string) ([]models.Message, error)

	// PostsInThreads returns every post whose id or root id is in
	// rootIDs, ordered by creation time.
	PostsInThreads(ctx context.Context, rootIDs []string) ([]models.Message, error)

	// UsersByIDs resolves user ids to usernames.
	UsersByIDs(ctx context.Context, userIDs []string) (map[string]string, error)

	// ChannelsByIDs returns the channels matching the given ids.
	ChannelsByIDs(ctx context.Context, channelIDs []string) ([]models.Channel, error)
}

// SQLStore implements Store against a Mattermost-schema MySQL database.
// Rows are mapped to value types at this boundary; nothing above it
// sees database types.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens a database handle for the given DSN and verifies
// connectivity.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) LatestPostAt(ctx context.Context) (int64, error) {
	var maxTS int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(CreateAt), 0) FROM Posts").Scan(&maxTS)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest post timestamp: %w", err)
	}
	return maxTS, nil
}

func (s *SQLStore) RootPostsBetween(ctx context.Context, start, end int64, channelID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT p.Id, p.CreateAt, p.UserId, p.ChannelId, COALESCE(p.RootId, ''), p.Message
		FROM Posts p
		JOIN Channels c ON p.ChannelId = c.Id
		WHERE p.CreateAt >= ? AND p.CreateAt < ?
		  AND COALESCE(p.RootId, '') = ''
		  AND p.ChannelId = ?
		  AND c.Type IN (%s)
		ORDER BY p.CreateAt`, quoteList(eligibleChannelTypes))

	rows, err := s.db.QueryContext(ctx, query, start, end, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query root posts: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SQLStore) PostsInThreads(ctx context.Context, rootIDs []string) ([]models.Message, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}

	in := placeholders(len(rootIDs))
	query := fmt.Sprintf(`
		SELECT Id, CreateAt, UserId, ChannelId, COALESCE(RootId, ''), Message
		FROM Posts
		WHERE Id IN (%s) OR RootId IN (%s)
		ORDER BY CreateAt`, in, in)

	args := make([]interface{}, 0, 2*len(rootIDs))
	for i := 0; i < 2; i++ {
		for _, id := range rootIDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread posts: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SQLStore) UsersByIDs(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}

	query := fmt.Sprintf(
		"SELECT Id, Username FROM Users WHERE Id IN (%s)", placeholders(len(userIDs)))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(userIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make(map[string]string, len(userIDs))
	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users[id] = username
	}
	return users, rows.Err()
}

func (s *SQLStore) ChannelsByIDs(ctx context.Context, channelIDs []string) ([]models.Channel, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		"SELECT Id, Name, DisplayName, Type FROM Channels WHERE Id IN (%s)",
		placeholders(len(channelIDs)))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(channelIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.DisplayName, &ch.Type); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.CreateAt, &m.UserID, &m.ChannelID, &m.RootID, &m.Text); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ",")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
