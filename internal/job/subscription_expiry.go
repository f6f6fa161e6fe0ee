package job

import (
	"context"
	"log"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/repository"

	"gorm.io/gorm"
)

// SubscriptionExpiryJob 订阅到期清理任务
//
// 定期把 expires_at 已过的订阅置为失效。
// CurrentTariff 在读取时也会校验到期时间，
// 这个任务只是让表里的 is_active 尽快收敛到真实状态
type SubscriptionExpiryJob struct {
	db         *gorm.DB
	tariffRepo *repository.TariffRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
}

func NewSubscriptionExpiryJob(db *gorm.DB, cfg *config.Config) *SubscriptionExpiryJob {
	return &SubscriptionExpiryJob{
		db:         db,
		tariffRepo: repository.NewTariffRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   time.Minute,
	}
}

func (j *SubscriptionExpiryJob) Start(ctx context.Context) {
	log.Println("[SubscriptionExpiry] 订阅到期清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SubscriptionExpiry] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[SubscriptionExpiry] 任务停止")
			return
		case <-ticker.C:
			j.deactivateExpired(ctx)
		}
	}
}

func (j *SubscriptionExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *SubscriptionExpiryJob) deactivateExpired(ctx context.Context) {
	affected, err := j.tariffRepo.DeactivateExpired(ctx, time.Now())
	if err != nil {
		log.Printf("[SubscriptionExpiry] 清理到期订阅失败: %v", err)
		return
	}
	if affected > 0 {
		log.Printf("[SubscriptionExpiry] 已停用 %d 条到期订阅", affected)
	}
}
