package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/live-queue-system/pkg/models"
)

type MySQLDB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string) (*MySQLDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Auto-migrate the schema
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLDB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	return db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.SongRequest{},
		&models.Vote{},
		&models.TipTransaction{},
		&models.BlocklistEntry{},
	)
}

// Event operations

func (db *MySQLDB) CreateEvent(ctx context.Context, event *models.Event) error {
	return db.WithContext(ctx).Create(event).Error
}

func (db *MySQLDB) GetEventByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (db *MySQLDB) GetEventByCode(ctx context.Context, code string) (*models.Event, error) {
	var event models.Event
	if err := db.WithContext(ctx).First(&event, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (db *MySQLDB) UpdateEvent(ctx context.Context, event *models.Event) error {
	return db.WithContext(ctx).Save(event).Error
}

func (db *MySQLDB) ListEventsByStatus(ctx context.Context, status models.EventStatus) ([]*models.Event, error) {
	var events []*models.Event
	if err := db.WithContext(ctx).Where("status = ?", status).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Request operations

func (db *MySQLDB) CreateRequest(ctx context.Context, req *models.SongRequest) error {
	return db.WithContext(ctx).Create(req).Error
}

func (db *MySQLDB) GetRequest(ctx context.Context, id uuid.UUID) (*models.SongRequest, error) {
	var req models.SongRequest
	if err := db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (db *MySQLDB) ListRequestsByStatus(ctx context.Context, eventID uuid.UUID, status models.RequestStatus) ([]*models.SongRequest, error) {
	var reqs []*models.SongRequest
	if err := db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, status).
		Order("request_time ASC").
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (db *MySQLDB) CountActiveRequests(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&models.SongRequest{}).
		Where("event_id = ? AND status IN ?", eventID,
			[]models.RequestStatus{models.StatusPending, models.StatusApproved}).
		Count(&count).Error
	return count, err
}

func (db *MySQLDB) HasRecentDuplicate(ctx context.Context, eventID, submitterID uuid.UUID, songID string, since time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&models.SongRequest{}).
		Where("event_id = ? AND submitter_id = ? AND song_id = ? AND request_time >= ?",
			eventID, submitterID, songID, since).
		Count(&count).Error
	return count > 0, err
}

func (db *MySQLDB) ListStalePending(ctx context.Context, before time.Time) ([]*models.SongRequest, error) {
	var reqs []*models.SongRequest
	if err := db.WithContext(ctx).
		Where("status = ? AND request_time < ?", models.StatusPending, before).
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

// ApplyTransition validates the move against the transition table and applies
// it only if the stored version still matches expectedVersion. Retrying a
// transition whose end-state is already in place succeeds without mutating.
func (db *MySQLDB) ApplyTransition(ctx context.Context, id uuid.UUID, expectedVersion int64, next models.RequestStatus) (bool, error) {
	current, err := db.GetRequest(ctx, id)
	if err != nil {
		return false, err
	}

	if current.Status == next {
		return true, nil
	}
	if !models.CanTransition(current.Status, next) {
		return false, ErrInvalidTransition
	}

	result := db.WithContext(ctx).Model(&models.SongRequest{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"status":  next,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (db *MySQLDB) AddTip(ctx context.Context, id uuid.UUID, expectedVersion int64, amount int64) (bool, error) {
	result := db.WithContext(ctx).Model(&models.SongRequest{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"tip_amount": gorm.Expr("tip_amount + ?", amount),
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ToggleVote inserts or removes the (request, voter) row and rewrites the
// aggregate count under the same version guard, in one transaction.
func (db *MySQLDB) ToggleVote(ctx context.Context, requestID, voterID uuid.UUID, expectedVersion int64) (bool, bool, error) {
	var voted, ok bool

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Vote
		findErr := tx.Where("request_id = ? AND voter_id = ?", requestID, voterID).First(&existing).Error

		delta := 1
		switch {
		case findErr == nil:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			delta = -1
			voted = false
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			vote := &models.Vote{
				ID:        uuid.New(),
				RequestID: requestID,
				VoterID:   voterID,
				CreatedAt: time.Now(),
			}
			if err := tx.Create(vote).Error; err != nil {
				return err
			}
			voted = true
		default:
			return findErr
		}

		result := tx.Model(&models.SongRequest{}).
			Where("id = ? AND version = ?", requestID, expectedVersion).
			Updates(map[string]interface{}{
				"vote_count": gorm.Expr("vote_count + ?", delta),
				"version":    gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race; roll the vote row change back with the tx.
			ok = false
			return gorm.ErrInvalidTransaction
		}
		ok = true
		return nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrInvalidTransaction) {
			return false, false, nil
		}
		return false, false, err
	}
	return voted, ok, nil
}

// Tip transaction operations

func (db *MySQLDB) GetTransaction(ctx context.Context, transactionID string) (*models.TipTransaction, error) {
	var tx models.TipTransaction
	if err := db.WithContext(ctx).First(&tx, "transaction_id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (db *MySQLDB) RecordTransaction(ctx context.Context, tx *models.TipTransaction) error {
	result := db.WithContext(ctx).Where("transaction_id = ?", tx.TransactionID).
		FirstOrCreate(&models.TipTransaction{}, tx)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateTransaction
	}
	return nil
}

// Blocklist operations

func (db *MySQLDB) AddBlocklistEntry(ctx context.Context, entry *models.BlocklistEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (db *MySQLDB) RemoveBlocklistEntry(ctx context.Context, eventID, entryID uuid.UUID) error {
	return db.WithContext(ctx).
		Where("event_id = ? AND id = ?", eventID, entryID).
		Delete(&models.BlocklistEntry{}).Error
}

func (db *MySQLDB) ListBlocklist(ctx context.Context, eventID uuid.UUID) ([]*models.BlocklistEntry, error) {
	var entries []*models.BlocklistEntry
	if err := db.WithContext(ctx).Where("event_id = ?", eventID).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
