// Package store is the message store gateway: the durable half of the
// messaging subsystem. Persistence here is the source of truth; realtime
// delivery is a latency optimization layered on top of it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gocql/gocql"

	"github.com/founderskick/realtime/pkg/model"
	"github.com/founderskick/realtime/pkg/snowflake"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrNotAllowed = errors.New("operation not allowed for this user")
)

const (
	fetchLimit        = 100
	markReadBatchSize = 100
)

// SubmitInput is a message submission. Either text or an attachment
// reference must be present.
type SubmitInput struct {
	SenderID   string `json:"sender_id" validate:"required"`
	ReceiverID string `json:"receiver_id" validate:"required,nefield=SenderID"`
	Text       string `json:"text" validate:"required_without=FileURL"`
	FileURL    string `json:"file_url"`
	FileType   string `json:"file_type"`
}

type Gateway struct {
	db       *Session
	ids      *snowflake.Node
	validate *validator.Validate
	log      *slog.Logger
}

func NewGateway(db *Session, ids *snowflake.Node, log *slog.Logger) *Gateway {
	return &Gateway{
		db:       db,
		ids:      ids,
		validate: validator.New(),
		log:      log,
	}
}

// SubmitMessage persists a message and settles its conversation record:
// insert the message, find-or-create the conversation under the canonical
// pair key, then advance the last-message pointer. Callers dispatch the
// realtime push only after this returns nil.
func (g *Gateway) SubmitMessage(ctx context.Context, in SubmitInput) (model.Message, error) {
	if err := g.validate.Struct(in); err != nil {
		return model.Message{}, fmt.Errorf("invalid message: %w", err)
	}

	id := g.ids.Generate()
	msg := model.Message{
		ID:         id,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
		FileURL:    in.FileURL,
		FileType:   in.FileType,
		// The ID encodes the creation instant; reading it back keeps the
		// timestamp and the sort order in exact agreement.
		CreatedAt: snowflake.Time(id).UTC(),
	}
	key := ConvoKey(in.SenderID, in.ReceiverID)

	if err := g.db.Query(
		`INSERT INTO messages (convo_key, id, sender_id, receiver_id, body, file_url, file_type, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, false, ?)`,
		key, msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.FileURL, msg.FileType, msg.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return model.Message{}, fmt.Errorf("persist message: %w", err)
	}

	if err := g.ensureConversation(ctx, key, msg); err != nil {
		return model.Message{}, err
	}

	// Denormalized per-user rows drive the conversation list query.
	for _, pair := range [][2]string{{msg.SenderID, msg.ReceiverID}, {msg.ReceiverID, msg.SenderID}} {
		if err := g.db.Query(
			`INSERT INTO user_conversations (user_id, other_user_id, last_updated) VALUES (?, ?, ?) USING TIMESTAMP ?`,
			pair[0], pair[1], msg.CreatedAt, writeStamp(msg),
		).WithContext(ctx).Exec(); err != nil {
			return model.Message{}, fmt.Errorf("update conversation index: %w", err)
		}
	}

	return msg, nil
}

// ensureConversation resolves the concurrent first-message race: the LWT
// insert on the canonical key is the authoritative tie-break, so two
// simultaneous first writers converge on one conversation row. The loser's
// insert is simply not applied, and both proceed to advance the pointer.
func (g *Gateway) ensureConversation(ctx context.Context, key string, msg model.Message) error {
	a, b := msg.SenderID, msg.ReceiverID
	if a > b {
		a, b = b, a
	}

	applied, err := g.db.Query(
		`INSERT INTO conversations (convo_key, participant_a, participant_b, created_at)
		 VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		key, a, b, msg.CreatedAt,
	).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	if !applied {
		g.log.Debug("conversation already exists", "convo_key", key)
	}

	// Stamping the write with the message's creation time makes
	// last-writer-wins follow creation order: a stale write that arrives
	// late can no longer overwrite a newer pointer.
	if err := g.db.Query(
		`UPDATE conversations USING TIMESTAMP ? SET last_message_id = ?, last_message_text = ?, updated_at = ? WHERE convo_key = ?`,
		writeStamp(msg), msg.ID, msg.Text, msg.CreatedAt, key,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("advance last message: %w", err)
	}
	return nil
}

// writeStamp is the cell timestamp for pointer writes, in microseconds as
// Scylla expects, derived from the message's snowflake ID rather than the
// local clock.
func writeStamp(msg model.Message) int64 {
	return snowflake.Time(msg.ID).UnixMicro()
}

// FetchMessages returns the latest messages between two users in creation
// order and marks every unread message addressed to userID in the
// conversation as read, including ones older than the response window.
// Repeating the fetch is idempotent: already-read rows are left alone.
func (g *Gateway) FetchMessages(ctx context.Context, userID, otherID string) ([]model.Message, error) {
	key := ConvoKey(userID, otherID)

	iter := g.db.Query(
		`SELECT id, sender_id, receiver_id, body, file_url, file_type, is_read, created_at
		 FROM messages WHERE convo_key = ? LIMIT ?`,
		key, fetchLimit,
	).WithContext(ctx).Iter()

	var messages []model.Message
	var m model.Message
	for iter.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.FileURL, &m.FileType, &m.IsRead, &m.CreatedAt) {
		messages = append(messages, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	// Rows cluster newest-first; clients render oldest-first.
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	if err := g.markConversationRead(ctx, key, userID, otherID); err != nil {
		return nil, err
	}
	return messages, nil
}

// markConversationRead flips every unread message addressed to userID in
// the conversation. The scan deliberately carries no LIMIT: the response
// window is capped, the read receipt is not. Flips run in bounded batches;
// the counter resets only after all of them land, so a failed flip leaves
// the count visible rather than silently zeroed.
func (g *Gateway) markConversationRead(ctx context.Context, key, userID, otherID string) error {
	iter := g.db.Query(
		`SELECT id, receiver_id, is_read FROM messages WHERE convo_key = ?`, key,
	).WithContext(ctx).Iter()

	var (
		id       int64
		receiver string
		isRead   bool
		unread   []int64
	)
	for iter.Scan(&id, &receiver, &isRead) {
		if receiver == userID && !isRead {
			unread = append(unread, id)
		}
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("scan unread messages: %w", err)
	}
	if len(unread) == 0 {
		return nil
	}

	for _, ids := range chunkIDs(unread, markReadBatchSize) {
		batch := g.db.NewBatch(gocql.LoggedBatch).WithContext(ctx)
		for _, id := range ids {
			batch.Query(`UPDATE messages SET is_read = true WHERE convo_key = ? AND id = ?`, key, id)
		}
		if err := g.db.ExecuteBatch(batch); err != nil {
			return fmt.Errorf("mark messages read: %w", err)
		}
	}

	// Counter rows reset by deletion, the way Scylla counters want it.
	if err := g.db.Query(
		`DELETE FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`,
		userID, otherID,
	).WithContext(ctx).Exec(); err != nil {
		g.log.Error("reset unread counter", "user_id", userID, "other_user_id", otherID, "error", err)
	}
	return nil
}

// chunkIDs splits ids into slices of at most size elements.
func chunkIDs(ids []int64, size int) [][]int64 {
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		chunks = append(chunks, ids[start:min(start+size, len(ids))])
	}
	return chunks
}

// FetchConversations lists a user's conversations, most recent first, with
// the counterpart, a last-message preview and the unread count resolved.
func (g *Gateway) FetchConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	iter := g.db.Query(
		`SELECT other_user_id, last_updated FROM user_conversations WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	var summaries []model.ConversationSummary
	var s model.ConversationSummary
	for iter.Scan(&s.OtherUserID, &s.LastUpdated) {
		summaries = append(summaries, s)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}

	for i := range summaries {
		other := summaries[i].OtherUserID
		if err := g.db.Query(
			`SELECT unread_count FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`,
			userID, other,
		).WithContext(ctx).Scan(&summaries[i].UnreadCount); err != nil && err != gocql.ErrNotFound {
			g.log.Error("fetch unread counter", "user_id", userID, "other_user_id", other, "error", err)
		}
		if err := g.db.Query(
			`SELECT last_message_id, last_message_text FROM conversations WHERE convo_key = ?`,
			ConvoKey(userID, other),
		).WithContext(ctx).Scan(&summaries[i].LastMessageID, &summaries[i].LastMessage); err != nil && err != gocql.ErrNotFound {
			g.log.Error("fetch conversation record", "convo_key", ConvoKey(userID, other), "error", err)
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
	})
	return summaries, nil
}

// IncrementUnread bumps the receiver's unread counter for the sender. Runs
// in the projection worker, off the submission path.
func (g *Gateway) IncrementUnread(ctx context.Context, receiverID, senderID string) error {
	return g.db.Query(
		`UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND other_user_id = ?`,
		receiverID, senderID,
	).WithContext(ctx).Exec()
}

// CreateConnectionRequest persists a pending connection request.
func (g *Gateway) CreateConnectionRequest(ctx context.Context, senderID, receiverID string) (model.ConnectionRequest, error) {
	cr := model.ConnectionRequest{
		ID:         g.ids.Generate(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.ConnectionPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := g.db.Query(
		`INSERT INTO connection_requests (id, sender_id, receiver_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		cr.ID, cr.SenderID, cr.ReceiverID, cr.Status, cr.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return model.ConnectionRequest{}, fmt.Errorf("persist connection request: %w", err)
	}
	return cr, nil
}

// AcceptConnectionRequest marks a pending request accepted. Only the
// request's receiver may accept it; accepting twice is idempotent.
func (g *Gateway) AcceptConnectionRequest(ctx context.Context, id int64, receiverID string) (model.ConnectionRequest, error) {
	cr := model.ConnectionRequest{ID: id}
	err := g.db.Query(
		`SELECT sender_id, receiver_id, status, created_at FROM connection_requests WHERE id = ?`, id,
	).WithContext(ctx).Scan(&cr.SenderID, &cr.ReceiverID, &cr.Status, &cr.CreatedAt)
	if err == gocql.ErrNotFound {
		return model.ConnectionRequest{}, ErrNotFound
	}
	if err != nil {
		return model.ConnectionRequest{}, fmt.Errorf("load connection request: %w", err)
	}
	if cr.ReceiverID != receiverID {
		return model.ConnectionRequest{}, ErrNotAllowed
	}
	if cr.Status == model.ConnectionAccepted {
		return cr, nil
	}

	if err := g.db.Query(
		`UPDATE connection_requests SET status = ? WHERE id = ?`, model.ConnectionAccepted, id,
	).WithContext(ctx).Exec(); err != nil {
		return model.ConnectionRequest{}, fmt.Errorf("accept connection request: %w", err)
	}
	cr.Status = model.ConnectionAccepted
	return cr, nil
}
