package file

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// OrphanLedger remembers remote chunks that no record references, so a
// maintenance sweep can remove them later.
type OrphanLedger interface {
	Add(ctx context.Context, o *OrphanedChunk) error
	List(ctx context.Context, limit int) ([]*OrphanedChunk, error)
	Remove(ctx context.Context, id int64) error
	// Referenced reports whether any chunk slot still points at the handle.
	Referenced(ctx context.Context, remoteHandle string) (bool, error)
}

type orphanLedger struct {
	db *gorm.DB
}

func NewOrphanLedger(db *gorm.DB) OrphanLedger {
	return &orphanLedger{db: db}
}

type orphanModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RemoteHandle string    `gorm:"column:remote_handle;not null;index"`
	FileID       string    `gorm:"column:file_id;type:varchar(36)"`
	ChunkIndex   int       `gorm:"column:chunk_index"`
	Reason       string    `gorm:"column:reason"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (orphanModel) TableName() string { return "orphaned_chunks" }

func (l *orphanLedger) Add(ctx context.Context, o *OrphanedChunk) error {
	m := orphanModel{
		RemoteHandle: o.RemoteHandle,
		FileID:       o.FileID,
		ChunkIndex:   o.ChunkIndex,
		Reason:       string(o.Reason),
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.db.WithContext(ctx).Create(&m).Error; err != nil {
		return storeErr("add orphaned chunk", err)
	}
	o.ID = m.ID
	o.CreatedAt = m.CreatedAt
	return nil
}

func (l *orphanLedger) List(ctx context.Context, limit int) ([]*OrphanedChunk, error) {
	q := l.db.WithContext(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []orphanModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, storeErr("list orphaned chunks", err)
	}

	out := make([]*OrphanedChunk, 0, len(rows))
	for _, m := range rows {
		out = append(out, &OrphanedChunk{
			ID:           m.ID,
			RemoteHandle: m.RemoteHandle,
			FileID:       m.FileID,
			ChunkIndex:   m.ChunkIndex,
			Reason:       OrphanReason(m.Reason),
			CreatedAt:    m.CreatedAt,
		})
	}
	return out, nil
}

func (l *orphanLedger) Remove(ctx context.Context, id int64) error {
	if err := l.db.WithContext(ctx).Where("id = ?", id).Delete(&orphanModel{}).Error; err != nil {
		return storeErr("remove orphaned chunk", err)
	}
	return nil
}

func (l *orphanLedger) Referenced(ctx context.Context, remoteHandle string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&chunkModel{}).
		Where("remote_handle = ?", remoteHandle).
		Count(&count).Error
	if err != nil {
		return false, storeErr("check chunk reference", err)
	}
	return count > 0, nil
}
