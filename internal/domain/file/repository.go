package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repository is the File Record Store. Every call is atomic at the single
// record granularity; SetChunkHandle is the only mutation after Create.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	SetChunkHandle(ctx context.Context, id string, chunkIndex int, remoteHandle string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)
	Delete(ctx context.Context, id string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type fileModel struct {
	ID          string       `gorm:"column:id;primaryKey;type:varchar(36)"`
	FileName    string       `gorm:"column:file_name;not null"`
	FileSize    int64        `gorm:"column:file_size;not null"`
	FileType    string       `gorm:"column:file_type;not null"`
	OwnerID     *string      `gorm:"column:owner_id;index"`
	TotalChunks int          `gorm:"column:total_chunks;not null"`
	CreatedAt   time.Time    `gorm:"column:created_at;index"`
	Chunks      []chunkModel `gorm:"foreignKey:FileID;references:ID;constraint:OnDelete:CASCADE"`
}

func (fileModel) TableName() string { return "files" }

type chunkModel struct {
	FileID       string    `gorm:"column:file_id;primaryKey;type:varchar(36)"`
	ChunkIndex   int       `gorm:"column:chunk_index;primaryKey;autoIncrement:false"`
	RemoteHandle string    `gorm:"column:remote_handle;not null;default:''"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (chunkModel) TableName() string { return "file_chunks" }

func toDomainRecord(m fileModel) *Record {
	var owner string
	if m.OwnerID != nil {
		owner = *m.OwnerID
	}

	chunks := make([]ChunkSlot, 0, len(m.Chunks))
	for _, c := range m.Chunks {
		chunks = append(chunks, ChunkSlot{ChunkIndex: c.ChunkIndex, RemoteHandle: c.RemoteHandle})
	}

	return &Record{
		ID:          m.ID,
		FileName:    m.FileName,
		FileSize:    m.FileSize,
		FileType:    m.FileType,
		OwnerID:     owner,
		TotalChunks: m.TotalChunks,
		Chunks:      chunks,
		CreatedAt:   m.CreatedAt,
	}
}

// AutoMigrate creates or updates the tables backing the store and the orphan ledger.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&fileModel{}, &chunkModel{}, &orphanModel{})
}

func (r *repository) Create(ctx context.Context, params CreateParams) (*Record, error) {
	if params.TotalChunks < 1 {
		return nil, ErrInvalidChunkIndex
	}

	now := time.Now().UTC()
	m := fileModel{
		ID:          uuid.New().String(),
		FileName:    params.FileName,
		FileSize:    params.FileSize,
		FileType:    params.FileType,
		TotalChunks: params.TotalChunks,
		CreatedAt:   now,
		Chunks:      make([]chunkModel, params.TotalChunks),
	}
	if params.OwnerID != "" {
		owner := params.OwnerID
		m.OwnerID = &owner
	}
	for i := range m.Chunks {
		m.Chunks[i] = chunkModel{FileID: m.ID, ChunkIndex: i + 1, UpdatedAt: now}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, storeErr("create file record", err)
	}

	return toDomainRecord(m), nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Record, error) {
	var m fileModel
	err := r.db.WithContext(ctx).
		Preload("Chunks", func(db *gorm.DB) *gorm.DB { return db.Order("chunk_index ASC") }).
		Where("id = ?", id).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get file record", err)
	}
	return toDomainRecord(m), nil
}

func (r *repository) SetChunkHandle(ctx context.Context, id string, chunkIndex int, remoteHandle string) error {
	if chunkIndex < 1 {
		return ErrInvalidChunkIndex
	}

	res := r.db.WithContext(ctx).
		Model(&chunkModel{}).
		Where("file_id = ? AND chunk_index = ?", id, chunkIndex).
		Updates(map[string]any{
			"remote_handle": remoteHandle,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return storeErr("set chunk handle", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// No slot matched: either the record is gone or the index is past totalChunks.
	var count int64
	if err := r.db.WithContext(ctx).Model(&fileModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return storeErr("set chunk handle", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrInvalidChunkIndex
}

func (r *repository) ListByOwner(ctx context.Context, ownerID string) ([]*Record, error) {
	q := r.db.WithContext(ctx).
		Preload("Chunks", func(db *gorm.DB) *gorm.DB { return db.Order("chunk_index ASC") })
	if ownerID == "" {
		q = q.Where("owner_id IS NULL")
	} else {
		q = q.Where("owner_id = ?", ownerID)
	}

	var rows []fileModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, storeErr("list file records", err)
	}

	out := make([]*Record, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainRecord(m))
	}
	return out, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", id).Delete(&chunkModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&fileModel{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return storeErr("delete file record", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// storeErr classifies a database error. A foreign-key violation on a chunk
// slot means the owning record was deleted concurrently.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
