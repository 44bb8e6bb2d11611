package repository

import (
	"context"
	"errors"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrProjectNotFound   = errors.New("项目不存在")
	ErrProjectClosed     = errors.New("项目已关闭")
	ErrInsufficientSlots = errors.New("剩余份额不足")
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *ProjectRepository) GetByProjectID(ctx context.Context, projectID string) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

// GetByProjectIDTx 在事务内读取项目（对账引擎用，保证读到的是本事务视角的数据）
func (r *ProjectRepository) GetByProjectIDTx(ctx context.Context, tx *gorm.DB, projectID string) (*model.Project, error) {
	if tx == nil {
		tx = r.db
	}
	var project model.Project
	err := tx.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

// DeductSlots 条件扣减项目份额并累加已募集金额
//
// 【关键点】扣减条件直接写进 WHERE（slots_available >= ?），
// 两个并发投资事件同时盯着最后一份时，数据库只会让一个 UPDATE 命中，
// 另一个 RowsAffected==0：
//   - 如果是份额真的不够 -> ErrInsufficientSlots（业务性拒绝，渠道不必重试）
//   - 如果是并发写冲突导致条件失效 -> 同样表现为份额不足，由上层在事务回滚后定性
// 绝不允许"先读再写"两步分离的扣减
func (r *ProjectRepository) DeductSlots(ctx context.Context, tx *gorm.DB, projectID string, slots int, amount int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Project{}).
		Where("project_id = ? AND slots_available >= ?", projectID, slots).
		Updates(map[string]interface{}{
			"slots_available": gorm.Expr("slots_available - ?", slots),
			"amount_raised":   gorm.Expr("amount_raised + ?", amount),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 区分项目不存在和份额不足
		if _, err := r.GetByProjectIDTx(ctx, tx, projectID); err != nil {
			return err
		}
		return ErrInsufficientSlots
	}

	return nil
}

// UpdateFields 管理端更新项目字段（标题、份额重置、状态等）
func (r *ProjectRepository) UpdateFields(ctx context.Context, projectID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.Project{}).
		Where("project_id = ?", projectID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}

	return nil
}

// List 按状态过滤的项目列表
func (r *ProjectRepository) List(ctx context.Context, status string, page, pageSize int) ([]*model.Project, int64, error) {
	var projects []*model.Project
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Project{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&projects).Error

	return projects, total, err
}
