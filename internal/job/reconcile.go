package job

import (
	"context"
	"log"
	"time"

	"incentive/internal/config"
	"incentive/internal/ledger"
	"incentive/internal/repository"

	"gorm.io/gorm"
)

// ReconcileJob 定期核对用户积分计数器与流水汇总
//
// 只读、只报告，不自动修正：出现偏差说明有绕过账本的写入，需要人工排查
type ReconcileJob struct {
	ledger    *ledger.Ledger
	userRepo  *repository.UserRepository
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewReconcileJob(db *gorm.DB, cfg *config.Config) *ReconcileJob {
	interval := time.Duration(cfg.Business.ReconcileIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileJob{
		ledger:    ledger.New(db),
		userRepo:  repository.NewUserRepository(db),
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: 200,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[ReconcileJob] 积分对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.reconcileAll(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

// reconcileAll 按主键分批遍历全部用户，返回存在偏差的结果
func (j *ReconcileJob) reconcileAll(ctx context.Context) []*ledger.ReconcileResult {
	var (
		drifted []*ledger.ReconcileResult
		checked int
		afterID int64
	)

	for {
		ids, err := j.userRepo.ListIDsAfter(ctx, afterID, j.batchSize)
		if err != nil {
			log.Printf("[ReconcileJob] 查询用户失败: afterID=%d, err=%v", afterID, err)
			break
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				return drifted
			}
			result, err := j.ledger.Reconcile(ctx, nil, id)
			if err != nil {
				log.Printf("[ReconcileJob] 对账失败: userID=%d, err=%v", id, err)
				continue
			}
			checked++
			if !result.Balanced() {
				drifted = append(drifted, result)
				log.Printf("[ReconcileJob] 积分不平: userID=%d, total=%d, sum=%d, accomplishment=%d, cumulativeSum=%d",
					result.UserID, result.TotalPoints, result.TransactionSum, result.AccomplishmentTotalPoints, result.CumulativeSum)
			}
		}
		afterID = ids[len(ids)-1]
	}

	if len(drifted) > 0 {
		log.Printf("[ReconcileJob] 本次核对 %d 个用户，%d 个存在偏差", checked, len(drifted))
	}
	return drifted
}
