// Package roleplay はAI音声ロールプレイセッションのライフサイクル管理を提供する。
// セッションの開始・終了・履歴取得と、音声プロバイダとの連携を担う。
package roleplay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hkawano/voicedojo/internal/metrics"
	"github.com/hkawano/voicedojo/internal/model"
	"github.com/hkawano/voicedojo/internal/repository"
	"github.com/hkawano/voicedojo/internal/security"
	"github.com/hkawano/voicedojo/internal/voice"
)

// ServiceConfig はロールプレイサービスの設定。
type ServiceConfig struct {
	AgentID      string        // 会話エージェントのID
	PollInterval time.Duration // 分析結果ポーリングの間隔
	PollMaxWait  time.Duration // 分析結果ポーリングの最大待機時間
}

// Service はロールプレイセッションのサービス層。
type Service struct {
	roleplayRepo repository.RoleplayRepository
	provider     voice.ProviderService
	sanitizer    security.TextSanitizerService
	collector    metrics.MetricsCollector
	config       ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	roleplayRepo repository.RoleplayRepository,
	provider voice.ProviderService,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		roleplayRepo: roleplayRepo,
		provider:     provider,
		sanitizer:    sanitizer,
		collector:    collector,
		config:       config,
	}
}

// Token はクライアント接続用の短命トークンをプロバイダから取得する。
// 静的APIキーはサーバー内に留まり、クライアントへはこのトークンのみを渡す。
func (s *Service) Token(ctx context.Context) (string, error) {
	start := time.Now()
	token, err := s.provider.GetConversationToken(ctx)
	s.collector.RecordProviderLatency("get_token", time.Since(start))
	if err != nil {
		s.collector.RecordProviderFailure("get_token")
		slog.Error("会話トークンの取得に失敗しました", slog.String("error", err.Error()))
		return "", model.NewProviderError()
	}
	return token, nil
}

// Start は新しいロールプレイセッションを開始する。
// プロバイダ側の会話作成に成功した場合のみレコードを作成する。
// プロバイダが失敗した場合、レコードは一切作られない。
func (s *Service) Start(ctx context.Context, userID string) (*model.RoleplaySession, error) {
	start := time.Now()
	conversationID, err := s.provider.StartConversation(ctx, s.config.AgentID)
	s.collector.RecordProviderLatency("start_conversation", time.Since(start))
	if err != nil {
		s.collector.RecordProviderFailure("start_conversation")
		s.collector.RecordRoleplayStart("provider_error")
		slog.Error("会話の開始に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProviderError()
	}

	now := time.Now()
	session := &model.RoleplaySession{
		ID:             uuid.New().String(),
		UserID:         userID,
		ConversationID: conversationID,
		Status:         model.RoleplayStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.roleplayRepo.Create(ctx, session); err != nil {
		s.collector.RecordRoleplayStart("db_error")
		// プロバイダ側の会話は孤児になるがスイーパーの対象外のため記録を残す
		slog.Error("セッションレコードの作成に失敗しました",
			slog.String("user_id", userID),
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	s.collector.RecordRoleplayStart("success")
	slog.Info("ロールプレイセッションを開始しました",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
	)
	return session, nil
}

// End はロールプレイセッションを終了し、分析結果を取り込む。
// 処理は一方向の連鎖で、どの段階の失敗も自動リトライしない:
//  1. セッション行を再取得して会話IDを復元する（呼び出し元の状態は信用しない）
//  2. プロバイダ側の会話を終了する
//  3. 分析完了まで有界でポーリングする（非同期結果の待機であってエラーリトライではない）
//  4. トランスクリプトとサマリーをサニタイズして行を完了状態に更新する
//
// 失敗時は行が到達した状態のまま残る（不整合はスイーパーが回収する）。
func (s *Service) End(ctx context.Context, userID, sessionID string) (*model.RoleplaySession, error) {
	session, err := s.roleplayRepo.FindByIDForUser(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewRoleplayNotFoundError(sessionID)
	}
	if session.Status != model.RoleplayStatusActive {
		// completedまたはabandoned: 状態は決して巻き戻さない
		return nil, model.NewRoleplayCompletedError()
	}

	endStart := time.Now()
	err = s.provider.EndConversation(ctx, session.ConversationID)
	s.collector.RecordProviderLatency("end_conversation", time.Since(endStart))
	if err != nil {
		s.collector.RecordProviderFailure("end_conversation")
		slog.Error("会話の終了に失敗しました",
			slog.String("session_id", sessionID),
			slog.String("conversation_id", session.ConversationID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProviderError()
	}

	conv, err := s.awaitAnalysis(ctx, session.ConversationID)
	if err != nil {
		return nil, err
	}

	transcript := make([]model.TranscriptTurn, len(conv.Transcript))
	for i, turn := range conv.Transcript {
		transcript[i] = model.TranscriptTurn{
			Role:           turn.Role,
			Message:        s.sanitizer.SanitizeText(turn.Message),
			TimeInCallSecs: turn.TimeInCallSecs,
		}
	}

	session.Transcript = transcript
	session.DurationSecs = conv.Metadata.CallDurationSecs
	if conv.Analysis != nil {
		session.Summary = s.sanitizer.SanitizeText(conv.Analysis.TranscriptSummary)
		session.Topic = s.sanitizer.SanitizeText(conv.Analysis.Topic)
		session.Outcome = conv.Analysis.CallSuccessful
	}

	completed, err := s.roleplayRepo.Complete(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("セッションの完了に失敗しました: %w", err)
	}
	if !completed {
		// ポーリング中にスイーパー等が状態を進めた場合
		return nil, model.NewRoleplayCompletedError()
	}

	s.collector.RecordRoleplayCompleted()
	slog.Info("ロールプレイセッションを完了しました",
		slog.String("session_id", sessionID),
		slog.Int("duration_secs", session.DurationSecs),
	)

	return s.roleplayRepo.FindByIDForUser(ctx, sessionID, userID)
}

// List はユーザーのセッション履歴をお気に入りフラグ付きで新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.RoleplaySessionWithFavorite, error) {
	sessions, err := s.roleplayRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("セッション履歴の取得に失敗しました: %w", err)
	}
	return sessions, nil
}

// Get はセッションをお気に入りフラグ付きで取得する。
// 他ユーザーのセッションは存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, userID, sessionID string) (*model.RoleplaySessionWithFavorite, error) {
	session, err := s.roleplayRepo.FindByIDForUserWithFavorite(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewRoleplayNotFoundError(sessionID)
	}
	return session, nil
}

// awaitAnalysis はプロバイダの分析完了を有界でポーリングして待つ。
// PollMaxWaitを超えた場合はタイムアウトエラーを返す。
func (s *Service) awaitAnalysis(ctx context.Context, conversationID string) (*voice.Conversation, error) {
	deadline := time.Now().Add(s.config.PollMaxWait)

	for {
		callStart := time.Now()
		conv, err := s.provider.GetConversation(ctx, conversationID)
		s.collector.RecordProviderLatency("get_conversation", time.Since(callStart))
		if err != nil {
			s.collector.RecordProviderFailure("get_conversation")
			slog.Error("会話の取得に失敗しました",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewProviderError()
		}

		switch conv.Status {
		case voice.ConversationStatusDone:
			return conv, nil
		case voice.ConversationStatusFailed:
			slog.Error("プロバイダが会話の処理に失敗しました",
				slog.String("conversation_id", conversationID),
			)
			return nil, model.NewProviderError()
		}

		if time.Now().Add(s.config.PollInterval).After(deadline) {
			slog.Warn("分析結果の待機がタイムアウトしました",
				slog.String("conversation_id", conversationID),
				slog.Duration("max_wait", s.config.PollMaxWait),
			)
			return nil, model.NewProviderTimeoutError()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}
