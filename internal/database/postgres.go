package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ammar1510/chatty/internal/models"
)

const uniqueViolation = "23505"

type PostgresDB struct {
	*sql.DB
}

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresDB{db}, nil
}

// Ping checks the connection is still alive
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

var userColumns = userColumnsFor("")

// userColumnsFor lists the user columns, each qualified with prefix (e.g. "u.")
func userColumnsFor(prefix string) string {
	return fmt.Sprintf(`%[1]sid, %[1]semail, %[1]sfull_name, %[1]spassword_hash, %[1]sprofile_pic, %[1]sabout,
	%[1]sis_verified, COALESCE(%[1]sverification_code, ''), %[1]sverification_expires_at,
	COALESCE(%[1]sreset_token, ''), %[1]sreset_expires_at, %[1]screated_at, %[1]supdated_at`, prefix)
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user          models.User
		verifyExpires sql.NullTime
		resetExpires  sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.ProfilePic, &user.About,
		&user.IsVerified, &user.VerificationCode, &verifyExpires,
		&user.ResetToken, &resetExpires, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if verifyExpires.Valid {
		t := verifyExpires.Time
		user.VerificationExpiresAt = &t
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		user.ResetExpiresAt = &t
	}
	return &user, nil
}

func scanUsers(rows *sql.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (db *PostgresDB) queryUser(ctx context.Context, where string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, args...))
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, profile_pic, about, is_verified,
		                   verification_code, verification_expires_at, reset_token, reset_expires_at,
		                   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		user.ID, user.Email, user.FullName, user.PasswordHash, user.ProfilePic, user.About, user.IsVerified,
		nullString(user.VerificationCode), nullTime(user.VerificationExpiresAt),
		nullString(user.ResetToken), nullTime(user.ResetExpiresAt),
		user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrUserAlreadyExists
	}
	return err
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return db.queryUser(ctx, "id = $1", id)
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.queryUser(ctx, "email = $1", email)
}

func (db *PostgresDB) GetUserByVerificationCode(ctx context.Context, code string, now time.Time) (*models.User, error) {
	return db.queryUser(ctx,
		"verification_code = $1 AND verification_expires_at > $2 AND NOT is_verified ORDER BY created_at DESC LIMIT 1",
		code, now)
}

func (db *PostgresDB) GetUserByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	return db.queryUser(ctx, "reset_token = $1 AND reset_expires_at > $2", token, now)
}

func (db *PostgresDB) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	result, err := db.ExecContext(ctx, `
		UPDATE users SET email = $2, full_name = $3, password_hash = $4, profile_pic = $5, about = $6,
		       is_verified = $7, verification_code = $8, verification_expires_at = $9,
		       reset_token = $10, reset_expires_at = $11, updated_at = $12
		WHERE id = $1`,
		user.ID, user.Email, user.FullName, user.PasswordHash, user.ProfilePic, user.About,
		user.IsVerified, nullString(user.VerificationCode), nullTime(user.VerificationExpiresAt),
		nullString(user.ResetToken), nullTime(user.ResetExpiresAt), user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrUserAlreadyExists
	}
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (db *PostgresDB) DeleteUnverifiedUser(ctx context.Context, email string, now time.Time) (bool, error) {
	result, err := db.ExecContext(ctx, `
		DELETE FROM users
		WHERE email = $1 AND NOT is_verified AND verification_expires_at <= $2`,
		email, now)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (db *PostgresDB) DeleteExpiredUnverifiedUsers(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		"DELETE FROM users WHERE NOT is_verified AND verification_expires_at <= $1", now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// escapeLike makes fragment match literally inside a LIKE pattern
func escapeLike(fragment string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(fragment)
}

func (db *PostgresDB) SearchUsersByEmail(ctx context.Context, fragment string, excludeUserID uuid.UUID) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE email ILIKE '%' || $1 || '%' AND id <> $2
		ORDER BY email
		LIMIT 50`,
		escapeLike(fragment), excludeUserID)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (db *PostgresDB) GetFriends(ctx context.Context, userID uuid.UUID) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+userColumnsFor("u.")+`
		FROM user_friends f JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY f.created_at`,
		userID)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (db *PostgresDB) AreFriends(ctx context.Context, userID, otherID uuid.UUID) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM user_friends WHERE user_id = $1 AND friend_id = $2)",
		userID, otherID).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) AddFriendship(ctx context.Context, userID, otherID uuid.UUID) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_friends (user_id, friend_id, created_at)
		VALUES ($1, $2, $3), ($2, $1, $3)
		ON CONFLICT DO NOTHING`,
		userID, otherID, time.Now())
	return err
}

func (db *PostgresDB) RemoveFriendship(ctx context.Context, userID, otherID uuid.UUID) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM user_friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
		userID, otherID)
	return err
}

const messageColumns = `m.id, m.sender_id, m.receiver_id, COALESCE(m.text, ''), COALESCE(m.image, ''), m.created_at,
	ARRAY(SELECT h.user_id::text FROM message_hidden h WHERE h.message_id = m.id ORDER BY h.user_id)`

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg    models.Message
		hidden []string
	)
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.Image, &msg.CreatedAt, pq.Array(&hidden))
	if err != nil {
		return nil, err
	}
	msg.HiddenFor = make([]uuid.UUID, 0, len(hidden))
	for _, h := range hidden {
		id, err := uuid.Parse(h)
		if err != nil {
			return nil, err
		}
		msg.HiddenFor = append(msg.HiddenFor, id)
	}
	return &msg, nil
}

func (db *PostgresDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.HiddenFor == nil {
		msg.HiddenFor = []uuid.UUID{}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SenderID, msg.ReceiverID, nullString(msg.Text), nullString(msg.Image), msg.CreatedAt,
	)
	return err
}

func (db *PostgresDB) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages m WHERE m.id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	return msg, err
}

func (db *PostgresDB) GetConversation(ctx context.Context, a, b, viewer uuid.UUID) ([]*models.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE ((m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1))
		  AND NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = $3)
		ORDER BY m.created_at ASC, m.id ASC`,
		a, b, viewer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *PostgresDB) HideConversation(ctx context.Context, viewer, other uuid.UUID) (int64, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO message_hidden (message_id, user_id)
		SELECT id, $1 FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ON CONFLICT DO NOTHING`,
		viewer, other)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (db *PostgresDB) DeleteMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg := &models.Message{HiddenFor: []uuid.UUID{}}
	err := db.QueryRowContext(ctx, `
		DELETE FROM messages WHERE id = $1
		RETURNING id, sender_id, receiver_id, COALESCE(text, ''), COALESCE(image, ''), created_at`,
		id).Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.Image, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (db *PostgresDB) CreateBotExchange(ctx context.Context, exchange *models.BotExchange) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, row := range []*models.BotMessage{exchange.UserTurn, exchange.BotTurn} {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bot_messages (id, exchange_id, turn, sender_id, receiver_id, message, reply, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			row.ID, row.ExchangeID, string(row.Turn), row.SenderID, row.ReceiverID, row.Message, row.Reply, row.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (db *PostgresDB) GetBotConversation(ctx context.Context, userID string) ([]*models.BotMessage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, exchange_id, turn, sender_id, receiver_id, message, reply, created_at
		FROM bot_messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at ASC, CASE turn WHEN 'user' THEN 0 ELSE 1 END, id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*models.BotMessage{}
	for rows.Next() {
		var (
			m    models.BotMessage
			turn string
		)
		if err := rows.Scan(&m.ID, &m.ExchangeID, &turn, &m.SenderID, &m.ReceiverID, &m.Message, &m.Reply, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Turn = models.Turn(turn)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (db *PostgresDB) DeleteBotConversation(ctx context.Context, userID string) (int64, error) {
	result, err := db.ExecContext(ctx,
		"DELETE FROM bot_messages WHERE sender_id = $1 OR receiver_id = $1", userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const friendRequestColumns = "id, sender_id, receiver_id, status, created_at, updated_at"

func scanFriendRequest(row rowScanner) (*models.FriendRequest, error) {
	var (
		req    models.FriendRequest
		status string
	)
	if err := row.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.Status = models.FriendRequestStatus(status)
	return &req, nil
}

func (db *PostgresDB) CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	now := time.Now()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.StatusPending
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO friend_requests (`+friendRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.SenderID, req.ReceiverID, string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrFriendRequestExists
	}
	return err
}

func (db *PostgresDB) getFriendRequest(ctx context.Context, where string, args ...interface{}) (*models.FriendRequest, error) {
	req, err := scanFriendRequest(db.QueryRowContext(ctx,
		"SELECT "+friendRequestColumns+" FROM friend_requests WHERE "+where, args...))
	if err == sql.ErrNoRows {
		return nil, ErrFriendRequestNotFound
	}
	return req, err
}

func (db *PostgresDB) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	return db.getFriendRequest(ctx, "id = $1", id)
}

func (db *PostgresDB) FindFriendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	return db.getFriendRequest(ctx, "sender_id = $1 AND receiver_id = $2", senderID, receiverID)
}

func (db *PostgresDB) ListPendingRequests(ctx context.Context, receiverID uuid.UUID) ([]*models.FriendRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+friendRequestColumns+` FROM friend_requests
		WHERE receiver_id = $1 AND status = $2
		ORDER BY created_at`,
		receiverID, string(models.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []*models.FriendRequest{}
	for rows.Next() {
		req, err := scanFriendRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (db *PostgresDB) UpdateFriendRequestStatus(ctx context.Context, id uuid.UUID, status models.FriendRequestStatus) error {
	result, err := db.ExecContext(ctx,
		"UPDATE friend_requests SET status = $2, updated_at = $3 WHERE id = $1",
		id, string(status), time.Now())
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFriendRequestNotFound
	}
	return nil
}

func (db *PostgresDB) DeleteFriendRequest(ctx context.Context, id uuid.UUID) error {
	result, err := db.ExecContext(ctx, "DELETE FROM friend_requests WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFriendRequestNotFound
	}
	return nil
}

func (db *PostgresDB) DeleteFriendRequestsBetween(ctx context.Context, a, b uuid.UUID) (int64, error) {
	result, err := db.ExecContext(ctx, `
		DELETE FROM friend_requests
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)`,
		a, b)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}
