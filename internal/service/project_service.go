package service

import (
	"context"
	"fmt"

	"investsystem/internal/model"
	"investsystem/internal/repository"

	"gorm.io/gorm"
)

type ProjectService struct {
	db             *gorm.DB
	projectRepo    *repository.ProjectRepository
	investmentRepo *repository.InvestmentRepository
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{
		db:             db,
		projectRepo:    repository.NewProjectRepository(db),
		investmentRepo: repository.NewInvestmentRepository(db),
	}
}

type CreateProjectRequest struct {
	ProjectID      string
	Title          string
	Description    string
	Location       string
	ImageURL       string
	TargetAmount   int64
	SlotsAvailable int
	SlotPrice      int64
	ROIPercentage  float64
}

// CreateProject 管理员创建项目，初始即为 open
func (s *ProjectService) CreateProject(ctx context.Context, req *CreateProjectRequest) (*model.Project, error) {
	project := &model.Project{
		ProjectID:      req.ProjectID,
		Title:          req.Title,
		Description:    req.Description,
		Location:       req.Location,
		ImageURL:       req.ImageURL,
		TargetAmount:   req.TargetAmount,
		SlotsAvailable: req.SlotsAvailable,
		SlotPrice:      req.SlotPrice,
		ROIPercentage:  req.ROIPercentage,
		Status:         model.ProjectStatusOpen,
		AdminVerified:  true,
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("创建项目失败: %w", err)
	}

	return project, nil
}

// UpdateProject 管理员更新项目（含手工重置份额、关闭项目）
// 这条路径不走对账引擎，白名单限制可改字段
func (s *ProjectService) UpdateProject(ctx context.Context, projectID string, updates map[string]interface{}) error {
	allowed := map[string]bool{
		"title":           true,
		"description":     true,
		"location":        true,
		"image_url":       true,
		"target_amount":   true,
		"slots_available": true,
		"slot_price":      true,
		"roi_percentage":  true,
		"status":          true,
	}

	filtered := make(map[string]interface{}, len(updates))
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}

	if len(filtered) == 0 {
		return fmt.Errorf("没有可更新的字段")
	}

	if status, ok := filtered["status"].(string); ok {
		if status != model.ProjectStatusOpen && status != model.ProjectStatusClosed {
			return fmt.Errorf("非法的项目状态: %s", status)
		}
	}

	return s.projectRepo.UpdateFields(ctx, projectID, filtered)
}

func (s *ProjectService) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	return s.projectRepo.GetByProjectID(ctx, projectID)
}

func (s *ProjectService) ListProjects(ctx context.Context, status string, page, pageSize int) ([]*model.Project, int64, error) {
	return s.projectRepo.List(ctx, status, page, pageSize)
}

// InvestmentWithProject 持仓 + 所投项目快照
type InvestmentWithProject struct {
	*model.Investment
	Project *model.Project `json:"project"`
}

// ListUserInvestments 用户持仓列表（带项目信息）
func (s *ProjectService) ListUserInvestments(ctx context.Context, uid string) ([]*InvestmentWithProject, error) {
	investments, err := s.investmentRepo.ListByUserUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("查询持仓失败: %w", err)
	}

	result := make([]*InvestmentWithProject, 0, len(investments))
	for _, inv := range investments {
		item := &InvestmentWithProject{Investment: inv}
		if project, err := s.projectRepo.GetByProjectID(ctx, inv.ProjectID); err == nil {
			item.Project = project
		}
		result = append(result, item)
	}

	return result, nil
}
