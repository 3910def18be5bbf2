package discovery

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type CampaignRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Campaign, error)
}

type campaignRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCampaignRepo(db *gorm.DB, baseLog *logger.Logger) CampaignRepo {
	return &campaignRepo{
		db:  db,
		log: baseLog.With("repo", "CampaignRepo"),
	}
}

func (r *campaignRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Campaign, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Campaign
	if err := dbc.Handle(r.db).Where("campaign_id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}
