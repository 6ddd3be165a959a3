// Package store persists ledger snapshots in PostgreSQL. It is an external
// collaborator: the broker core never calls it, the owning process decides
// when to save and restore.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vbroker/internal/ledger"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Option defines connection options for PostgreSQL.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	ConnString string
}

// SnapshotRecord is one persisted ledger snapshot.
type SnapshotRecord struct {
	ID         uint      `gorm:"primaryKey"`
	InstanceID string    `gorm:"index;size:128"`
	TakenAt    time.Time `gorm:"index"`
	Currency   string    `gorm:"size:16"`
	Cash       string    `gorm:"size:64"`
	Allocated  string    `gorm:"size:64"`
	Positions  []byte    `gorm:"type:jsonb"`
}

// TableName keeps the table name explicit.
func (SnapshotRecord) TableName() string { return "ledger_snapshots" }

// Postgres stores and loads ledger snapshots.
type Postgres struct {
	db *gorm.DB
}

// Open connects and migrates the snapshot table.
func Open(opt Option) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate snapshot table")
	}
	return &Postgres{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Postgres) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save persists one snapshot.
func (s *Postgres) Save(ctx context.Context, snap ledger.Snapshot) error {
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return errors.Wrap(err, "marshal positions")
	}
	record := SnapshotRecord{
		InstanceID: snap.InstanceID,
		TakenAt:    time.Unix(0, snap.Timestamp).UTC(),
		Currency:   snap.Currency,
		Cash:       snap.Cash.String(),
		Allocated:  snap.Allocated.String(),
		Positions:  positions,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	return nil
}

// Latest loads the most recent snapshot for an instance. The bool reports
// whether one exists.
func (s *Postgres) Latest(ctx context.Context, instanceID string) (ledger.Snapshot, bool, error) {
	var record SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("taken_at DESC").
		First(&record).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Snapshot{}, false, nil
	}
	if err != nil {
		return ledger.Snapshot{}, false, errors.Wrap(err, "load snapshot")
	}
	snap, err := recordToSnapshot(record)
	if err != nil {
		return ledger.Snapshot{}, false, err
	}
	return snap, true, nil
}

func recordToSnapshot(record SnapshotRecord) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{
		Timestamp:  record.TakenAt.UnixNano(),
		InstanceID: record.InstanceID,
		Currency:   record.Currency,
	}
	if err := snap.Cash.Scan(record.Cash); err != nil {
		return ledger.Snapshot{}, errors.Wrap(err, "parse cash")
	}
	if err := snap.Allocated.Scan(record.Allocated); err != nil {
		return ledger.Snapshot{}, errors.Wrap(err, "parse allocated")
	}
	if len(record.Positions) > 0 {
		if err := json.Unmarshal(record.Positions, &snap.Positions); err != nil {
			return ledger.Snapshot{}, errors.Wrap(err, "unmarshal positions")
		}
	}
	return snap, nil
}

func (opt Option) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}
