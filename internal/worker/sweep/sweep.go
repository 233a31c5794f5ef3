// Package sweep はロールプレイセッションと招待の定期メンテナンスジョブを提供する。
// 終了処理されないまま放置されたactiveセッションのabandoned遷移と、
// 有効期限を過ぎたpending招待のexpired遷移を定期実行する。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hkawano/voicedojo/internal/metrics"
	"github.com/hkawano/voicedojo/internal/repository"
)

// SweeperConfig はスイープジョブの設定。
type SweeperConfig struct {
	Interval   time.Duration // スイープの実行間隔
	StaleAfter time.Duration // activeセッションをabandoned扱いにするまでの放置時間
}

// DefaultSweeperConfig はデフォルトのスイープ設定を返す。
// 15分間隔で実行し、2時間更新のないactiveセッションを放置とみなす。
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   15 * time.Minute,
		StaleAfter: 2 * time.Hour,
	}
}

// Sweeper はロールプレイセッションと招待の定期メンテナンスを行う。
// 両方の遷移は冪等であり、重複実行しても二重遷移は発生しない。
type Sweeper struct {
	roleplayRepo   repository.RoleplayRepository
	invitationRepo repository.InvitationRepository
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	config         SweeperConfig
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
func NewSweeper(
	roleplayRepo repository.RoleplayRepository,
	invitationRepo repository.InvitationRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config SweeperConfig,
) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultSweeperConfig().StaleAfter
	}
	return &Sweeper{
		roleplayRepo:   roleplayRepo,
		invitationRepo: invitationRepo,
		collector:      collector,
		logger:         logger,
		config:         config,
	}
}

// Start は設定された間隔でスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("スイープジョブを開始しました",
		slog.Duration("interval", s.config.Interval),
		slog.Duration("stale_after", s.config.StaleAfter),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スイープジョブを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("スイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は放置セッションの遷移と期限切れ招待の遷移を1回実行する。
// 片方が失敗してももう片方は実行する。
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := time.Now()
	now := time.Now()

	var firstErr error

	abandoned, err := s.roleplayRepo.SweepAbandoned(ctx, now.Add(-s.config.StaleAfter))
	if err != nil {
		firstErr = fmt.Errorf("放置セッションのスイープに失敗: %w", err)
	} else if abandoned > 0 {
		s.collector.RecordSweepAbandoned(abandoned)
		s.logger.Info("放置セッションをabandonedへ遷移させました",
			slog.Int64("count", abandoned),
		)
	}

	expired, err := s.invitationRepo.ExpireStale(ctx, now)
	if err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("期限切れ招待の遷移に失敗: %w", err)
		}
		s.logger.Error("期限切れ招待の遷移に失敗しました",
			slog.String("error", err.Error()),
		)
	} else if expired > 0 {
		s.collector.RecordInvitationsExpired(expired)
		s.logger.Info("期限切れ招待をexpiredへ遷移させました",
			slog.Int64("count", expired),
		)
	}

	s.logger.Info("スイープが完了しました",
		slog.Int64("abandoned_sessions", abandoned),
		slog.Int64("expired_invitations", expired),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return firstErr
}
