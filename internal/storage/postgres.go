package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"travelquest/backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgreSQL error codes that mean "run the transaction again".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

const pairCondition = "(sender_uid = ? AND receiver_uid = ?) OR (sender_uid = ? AND receiver_uid = ?)"

// Service is the PostgreSQL implementation of Storage.
type Service struct {
	DB    *gorm.DB
	retry retryPolicy
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, maxTxAttempts int) *Service {
	return &Service{
		DB:    db,
		retry: newRetryPolicy(maxTxAttempts),
	}
}

// AutoMigrate creates or updates the tables of all documents.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.PublicProfile{},
		&models.Conversation{},
		&models.VerificationRequest{},
		&models.Message{},
	); err != nil {
		return err
	}
	return rekeyConversations(db)
}

// rekeyConversations rewrites pair keys stored in an older format so that
// lookups by models.PairKey keep finding existing conversations.
func rekeyConversations(db *gorm.DB) error {
	var batch []models.Conversation
	return db.Select("id", "pair_key", "participants").FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
		for _, conv := range batch {
			if len(conv.Participants) != 2 {
				continue
			}
			key := models.PairKey(conv.Participants[0], conv.Participants[1])
			if key == conv.PairKey {
				continue
			}
			if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Update("pair_key", key).Error; err != nil {
				return err
			}
		}
		return nil
	}).Error
}

// CreateConversationIfAbsent inserts conv unless a conversation with the same
// pair key exists, in which case the stored one is loaded into conv.
func (s *Service) CreateConversationIfAbsent(ctx context.Context, conv *models.Conversation) (bool, error) {
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "pair_key"}}, DoNothing: true}).
		Create(conv)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var existing models.Conversation
	if err := s.DB.WithContext(ctx).Where("pair_key = ?", conv.PairKey).First(&existing).Error; err != nil {
		return false, notFound(err)
	}
	*conv = existing
	return false, nil
}

func (s *Service) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// ListConversationsForUser returns the user's conversations, most recent activity first.
func (s *Service) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.DB.WithContext(ctx).
		Where("? = ANY(participants)", userID).
		Order("last_message_at DESC, created_at DESC").
		Find(&convs).Error
	return convs, err
}

// AppendMessage stores msg and bumps the conversation's last activity in one transaction.
func (s *Service) AppendMessage(ctx context.Context, msg *models.Message) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("last_message_at", msg.Timestamp)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(msg).Error
	})
}

// ListMessages returns the messages of a conversation in ascending order.
func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp asc, id asc").
		Find(&msgs).Error
	return msgs, err
}

func (s *Service) ListPendingForReceiver(ctx context.Context, receiverID string) ([]models.VerificationRequest, error) {
	var reqs []models.VerificationRequest
	err := s.DB.WithContext(ctx).
		Where("receiver_uid = ? AND status = ?", receiverID, models.StatusPending).
		Order("timestamp asc").
		Find(&reqs).Error
	return reqs, err
}

func (s *Service) ListRequestsBetween(ctx context.Context, a, b string) ([]models.VerificationRequest, error) {
	var reqs []models.VerificationRequest
	err := s.DB.WithContext(ctx).
		Where(pairCondition, a, b, b, a).
		Order("timestamp asc").
		Find(&reqs).Error
	return reqs, err
}

func (s *Service) GetProfile(ctx context.Context, uid string) (*models.PublicProfile, error) {
	var profile models.PublicProfile
	if err := s.DB.WithContext(ctx).Where("uid = ?", uid).First(&profile).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

func (s *Service) GetProfiles(ctx context.Context, uids []string) ([]models.PublicProfile, error) {
	var profiles []models.PublicProfile
	if len(uids) == 0 {
		return profiles, nil
	}
	err := s.DB.WithContext(ctx).Where("uid IN ?", uids).Find(&profiles).Error
	return profiles, err
}

// EnsureProfile creates the profile if it does not exist. An existing
// profile, and its meetup count, is left untouched.
func (s *Service) EnsureProfile(ctx context.Context, profile *models.PublicProfile) (bool, error) {
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "uid"}}, DoNothing: true}).
		Create(profile)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) SetTelegramChatID(ctx context.Context, uid string, chatID int64) error {
	result := s.DB.WithContext(ctx).Model(&models.PublicProfile{}).
		Where("uid = ?", uid).
		Update("telegram_chat_id", chatID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) GetProfileByTelegramChatID(ctx context.Context, chatID int64) (*models.PublicProfile, error) {
	var profile models.PublicProfile
	if err := s.DB.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&profile).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

// RunInTx runs fn in a SERIALIZABLE transaction. Serialization failures and
// unique violations are conflicts and the whole of fn is run again.
func (s *Service) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.retry.run(ctx, func() error {
		err := s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(&pgTx{db: db})
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
		return translateError(err)
	})
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// pgTx adapts a gorm transaction to Tx.
type pgTx struct {
	db    *gorm.DB
	guard txGuard
}

func (t *pgTx) GetConversation(id string) (*models.Conversation, error) {
	if err := t.guard.read(); err != nil {
		return nil, err
	}
	var conv models.Conversation
	if err := t.db.Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (t *pgTx) GetRequest(conversationID, requestID string) (*models.VerificationRequest, error) {
	if err := t.guard.read(); err != nil {
		return nil, err
	}
	var req models.VerificationRequest
	err := t.db.Where("conversation_id = ? AND id = ?", conversationID, requestID).First(&req).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (t *pgTx) FindRequestsBetween(a, b string) ([]models.VerificationRequest, error) {
	if err := t.guard.read(); err != nil {
		return nil, err
	}
	var reqs []models.VerificationRequest
	err := t.db.Where(pairCondition, a, b, b, a).Order("timestamp asc").Find(&reqs).Error
	return reqs, err
}

func (t *pgTx) GetProfile(uid string) (*models.PublicProfile, error) {
	if err := t.guard.read(); err != nil {
		return nil, err
	}
	var profile models.PublicProfile
	if err := t.db.Where("uid = ?", uid).First(&profile).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

func (t *pgTx) CreateRequest(req *models.VerificationRequest) error {
	t.guard.write()
	return t.db.Create(req).Error
}

func (t *pgTx) SetRequestStatus(conversationID, requestID string, from, to models.RequestStatus) error {
	t.guard.write()
	result := t.db.Model(&models.VerificationRequest{}).
		Where("conversation_id = ? AND id = ? AND status = ?", conversationID, requestID, from).
		Update("status", to)
	return conditional(result)
}

func (t *pgTx) SetMeetupCount(uid string, from, to int) error {
	t.guard.write()
	result := t.db.Model(&models.PublicProfile{}).
		Where("uid = ? AND meetup_count = ?", uid, from).
		Update("meetup_count", to)
	return conditional(result)
}

func (t *pgTx) SetMeetupStatus(conversationID string, status models.MeetupStatus) error {
	t.guard.write()
	result := t.db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"meetup_confirmed": status.Confirmed,
			"last_request_id":  status.LastRequestID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// conditional turns a write that matched no row into a conflict.
func conditional(result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// txGuard enforces reads-before-writes inside one transaction.
type txGuard struct {
	wrote bool
}

func (g *txGuard) read() error {
	if g.wrote {
		return ErrReadAfterWrite
	}
	return nil
}

func (g *txGuard) write() { g.wrote = true }
