package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"interior/internal/entity"
	"interior/internal/ledger"
	"interior/internal/metrics"
	"interior/internal/model"
	"interior/internal/payment"

	"github.com/sirupsen/logrus"
)

// Webhook outcomes.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
)

// WebhookResult 描述一次 webhook 的处理结果。
type WebhookResult struct {
	EventID      string
	EventType    string
	Status       string
	UserID       uint
	GenerationID uint
	Credited     int64
}

// PaymentOptions 结账页配置。
type PaymentOptions struct {
	HDPriceID  string
	SuccessURL string
	CancelURL  string
}

// PaymentService 处理支付回调入账与 HD 解锁。
type PaymentService struct {
	repo    model.Repository
	ledger  *ledger.Ledger
	gateway payment.Gateway
	prices  payment.PriceTable
	opts    PaymentOptions
}

func NewPaymentService(repo model.Repository, l *ledger.Ledger, gateway payment.Gateway, prices payment.PriceTable, opts PaymentOptions) *PaymentService {
	if prices == nil {
		prices = payment.PriceTable{}
	}
	return &PaymentService{repo: repo, ledger: l, gateway: gateway, prices: prices, opts: opts}
}

// HandleWebhook 先验签；签名错误返回 payment.ErrInvalidSignature，其余事件要么
// 入账、要么幂等跳过。返回非签名错误时调用方应让支付方重试。
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.gateway == nil {
		return nil, ErrPaymentUnavailable
	}
	evt, err := s.gateway.VerifyEvent(payload, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		logrus.WithError(err).WithField("security", true).Warn("rejected payment webhook with invalid signature")
		if errors.Is(err, payment.ErrInvalidSignature) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}

	result := &WebhookResult{EventID: evt.ID, EventType: evt.Type}
	logger := logrus.WithFields(logrus.Fields{"event_id": evt.ID, "event_type": evt.Type})

	record := &entity.DbPaymentEvent{
		Provider:        payment.ProviderStripe,
		ProviderEventID: evt.ID,
		EventType:       evt.Type,
		PayloadJSON:     string(evt.Payload),
		Metadata:        sessionMetadata(evt.Session),
	}
	fresh, err := s.repo.CreatePaymentEvent(ctx, record)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(evt.Type, "error").Inc()
		logger.WithError(err).Error("failed to journal payment event")
		return nil, fmt.Errorf("journal payment event: %w", err)
	}
	if !fresh {
		result.Status = WebhookDuplicate
		metrics.WebhookEvents.WithLabelValues(evt.Type, WebhookDuplicate).Inc()
		logger.Info("payment webhook replay ignored")
		return result, nil
	}

	procErr := s.dispatch(ctx, evt, result)
	processingError := ""
	if procErr != nil {
		processingError = procErr.Error()
	}
	if err := s.repo.MarkPaymentEventProcessed(ctx, record.ID, processingError); err != nil {
		logger.WithError(err).Error("failed to mark payment event processed")
	}
	if procErr != nil {
		metrics.WebhookEvents.WithLabelValues(evt.Type, "error").Inc()
		logger.WithError(procErr).Error("failed to process payment webhook")
		return nil, procErr
	}
	metrics.WebhookEvents.WithLabelValues(evt.Type, result.Status).Inc()
	return result, nil
}

func (s *PaymentService) dispatch(ctx context.Context, evt *payment.Event, result *WebhookResult) error {
	switch evt.Type {
	case payment.EventCheckoutCompleted, payment.EventCheckoutAsyncPaymentSucceeded:
	default:
		result.Status = WebhookIgnored
		return nil
	}
	session := evt.Session
	if session == nil || !session.Paid {
		// 异步支付会在 async_payment_succeeded 时再次到达
		result.Status = WebhookIgnored
		return nil
	}

	if session.GenerationID() > 0 || session.Metadata[payment.MetadataPurpose] == payment.PurposeHD {
		return s.unlockFromWebhook(ctx, session, result)
	}
	return s.creditPurchase(ctx, session, result)
}

func (s *PaymentService) creditPurchase(ctx context.Context, session *payment.CheckoutSession, result *WebhookResult) error {
	userID, err := session.UserID()
	if err != nil {
		return fmt.Errorf("resolve buyer: %w", err)
	}
	result.UserID = userID
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return fmt.Errorf("resolve buyer %d: %w", userID, mapNotFound(err, ErrAccountNotFound))
	}

	// 回调里不带 line_items，需要重新取一次
	items := session.LineItems
	if len(items) == 0 {
		full, err := s.gateway.GetCheckoutSession(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
		items = full.LineItems
	}
	credits, err := s.prices.CreditsFor(items)
	if err != nil {
		return err
	}

	exists, err := s.ledger.HasTransaction(ctx, entity.CreditTypePurchase, session.ID)
	if err != nil {
		return fmt.Errorf("check purchase: %w", err)
	}
	if exists {
		result.Status = WebhookDuplicate
		return nil
	}
	// 并发重投时上面的检查可能都看不到对方，以库里的唯一键为准
	balance, err := s.ledger.CreditOnce(ctx, userID, credits, entity.CreditTypePurchase, session.ID)
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		result.Status = WebhookDuplicate
		return nil
	}
	if err != nil {
		return fmt.Errorf("credit purchase: %w", mapLedgerError(err))
	}
	result.Status = WebhookProcessed
	result.Credited = credits
	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"session_id": session.ID,
		"credits":    credits,
		"balance":    balance,
	}).Info("credited purchase")
	return nil
}

func (s *PaymentService) unlockFromWebhook(ctx context.Context, session *payment.CheckoutSession, result *WebhookResult) error {
	genID := session.GenerationID()
	if genID == 0 {
		return fmt.Errorf("hd checkout %s carries no generation id", session.ID)
	}
	result.GenerationID = genID
	gen, err := s.repo.GetGeneration(ctx, genID)
	if err != nil {
		return fmt.Errorf("hd checkout %s: %w", session.ID, mapNotFound(err, ErrGenerationNotFound))
	}
	result.UserID = gen.UserID
	if buyer, err := session.UserID(); err != nil || buyer != gen.UserID {
		logrus.WithFields(logrus.Fields{
			"session_id":    session.ID,
			"generation_id": genID,
			"security":      true,
		}).Warn("hd checkout buyer does not own generation")
		return ErrPaymentNotVerified
	}
	if gen.HDUnlocked {
		result.Status = WebhookDuplicate
		return nil
	}
	changed, err := s.repo.MarkGenerationHDUnlocked(ctx, genID, session.ID)
	if err != nil {
		return fmt.Errorf("unlock hd: %w", err)
	}
	result.Status = WebhookProcessed
	if !changed {
		result.Status = WebhookDuplicate
	}
	return nil
}

// UnlockHD 验证一次性支付后把生成记录标记为 HD。已解锁时不会再请求支付方。
func (s *PaymentService) UnlockHD(ctx context.Context, userID, generationID uint, sessionID string) (*entity.DbGeneration, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id", Message: "session id is required"}
	}
	gen, err := s.ownedGeneration(ctx, userID, generationID)
	if err != nil {
		return nil, err
	}
	if gen.HDUnlocked {
		return gen, nil
	}
	if s.gateway == nil {
		return nil, ErrPaymentUnavailable
	}

	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("failed to fetch checkout session")
		return nil, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
	logger := logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"generation_id": generationID,
		"session_id":    sessionID,
	})
	if !session.Paid {
		logger.Warn("hd unlock attempted with unpaid session")
		return nil, ErrPaymentNotVerified
	}
	if session.GenerationID() != gen.ID {
		logger.WithField("security", true).Warn("hd unlock metadata does not match generation")
		return nil, ErrPaymentNotVerified
	}
	if buyer, err := session.UserID(); err == nil && buyer != userID {
		logger.WithField("security", true).Warn("hd unlock session belongs to another user")
		return nil, ErrPaymentNotVerified
	}

	changed, err := s.repo.MarkGenerationHDUnlocked(ctx, gen.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("unlock hd: %w", err)
	}
	if changed {
		logger.Info("hd unlocked")
	}
	gen.HDUnlocked = true
	gen.HDSessionID = session.ID
	return gen, nil
}

// CreateCreditsCheckout 为积分包创建支付页。
func (s *PaymentService) CreateCreditsCheckout(ctx context.Context, userID uint, priceID string) (*entity.CheckoutResponse, error) {
	priceID = strings.TrimSpace(priceID)
	if _, ok := s.prices[priceID]; !ok {
		return nil, &ValidationError{Field: "price_id", Message: "unknown price"}
	}
	return s.createCheckout(ctx, payment.CheckoutRequest{
		PriceID: priceID,
		UserID:  userID,
		Purpose: payment.PurposeCredits,
	})
}

// CreateHDCheckout 为已完成的生成创建 HD 解锁支付页。
func (s *PaymentService) CreateHDCheckout(ctx context.Context, userID, generationID uint) (*entity.CheckoutResponse, error) {
	if strings.TrimSpace(s.opts.HDPriceID) == "" {
		return nil, fmt.Errorf("%w: hd price", payment.ErrNotConfigured)
	}
	gen, err := s.ownedGeneration(ctx, userID, generationID)
	if err != nil {
		return nil, err
	}
	if gen.Status != entity.GenerationStatusCompleted {
		return nil, ErrGenerationNotReady
	}
	if gen.HDUnlocked {
		return nil, &ValidationError{Field: "generation_id", Message: "hd already unlocked"}
	}
	return s.createCheckout(ctx, payment.CheckoutRequest{
		PriceID:      s.opts.HDPriceID,
		UserID:       userID,
		GenerationID: gen.ID,
		Purpose:      payment.PurposeHD,
	})
}

func (s *PaymentService) createCheckout(ctx context.Context, req payment.CheckoutRequest) (*entity.CheckoutResponse, error) {
	if s.gateway == nil {
		return nil, ErrPaymentUnavailable
	}
	req.SuccessURL = s.opts.SuccessURL
	req.CancelURL = s.opts.CancelURL
	session, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": req.UserID,
			"purpose": req.Purpose,
		}).Error("failed to create checkout session")
		return nil, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
	return &entity.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

func (s *PaymentService) ownedGeneration(ctx context.Context, userID, generationID uint) (*entity.DbGeneration, error) {
	gen, err := s.repo.GetGeneration(ctx, generationID)
	if err != nil {
		return nil, mapNotFound(err, ErrGenerationNotFound)
	}
	if gen.UserID != userID {
		return nil, ErrGenerationNotFound
	}
	return gen, nil
}

func sessionMetadata(session *payment.CheckoutSession) entity.JSONMap {
	if session == nil || len(session.Metadata) == 0 {
		return nil
	}
	out := make(entity.JSONMap, len(session.Metadata))
	for k, v := range session.Metadata {
		out[k] = v
	}
	return out
}

// ParseGenerationID 解析路径参数。
func ParseGenerationID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, &ValidationError{Field: "id", Message: "invalid generation id"}
	}
	return uint(id), nil
}
