// Package reminder формирует сводку истекающих подписок и запускает её по расписанию.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/view"
)

// Report - результат одного прогона сводки.
type Report struct {
	Stats    view.SubscriptionStats
	Expiring []view.SubscriptionRow
}

// Digest читает подписки и пишет в журнал те, что скоро истекают.
type Digest struct {
	subs *gateway.Collection[model.Subscription]
	log  *zap.Logger
	now  func() time.Time
}

// NewDigest создаёт сводку поверх хранилища коллекций.
func NewDigest(gw gateway.Gateway, logger *zap.Logger) *Digest {
	return &Digest{
		subs: gateway.For[model.Subscription](gw),
		log:  logger.With(zap.String("collection", string(model.CollectionSubscriptions))),
		now:  time.Now,
	}
}

// Run выполняет один прогон сводки.
func (d *Digest) Run(ctx context.Context) (Report, error) {
	records, err := d.subs.ListAll(ctx)
	if err != nil {
		d.log.Error("failed to load subscriptions for digest", zap.Error(err))
		return Report{}, fmt.Errorf("load subscriptions: %w", err)
	}

	today := d.now()
	rows := view.Subscriptions(records, "", today)
	expiring := lo.Filter(rows, func(r view.SubscriptionRow, _ int) bool {
		return r.Status == view.StatusExpiringSoon
	})

	for _, r := range expiring {
		d.log.Info("subscription expires soon",
			zap.String("id", r.ID),
			zap.String("name", r.Name),
			zap.String("expiration_date", r.ExpirationDate),
			zap.Int("days_remaining", r.DaysRemaining))
	}

	stats := view.SubscriptionSummary(records, today)
	d.log.Info("subscription digest",
		zap.Int("total", stats.Total),
		zap.Int("active", stats.Active),
		zap.Int("expired", stats.Expired),
		zap.Int("expiring_soon", stats.ExpiringSoon))

	return Report{Stats: stats, Expiring: expiring}, nil
}

// Scheduler запускает сводку по cron-расписанию.
type Scheduler struct {
	cron   *cron.Cron
	cancel context.CancelFunc
	ctx    context.Context
}

// NewScheduler регистрирует digest на cron-расписании schedule (стандартный формат из пяти полей или @every).
func NewScheduler(schedule string, digest *Digest, logger *zap.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{log: logger})),
		cancel: cancel,
		ctx:    ctx,
	}

	_, err := s.cron.AddFunc(schedule, func() {
		// Ошибка уже записана в журнал внутри Run.
		_, _ = digest.Run(s.ctx)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse reminder schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения запущенного прогона.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger направляет журнал cron в zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
