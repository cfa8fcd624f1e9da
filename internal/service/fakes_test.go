package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"interior/internal/entity"
	"interior/internal/ledger"
	"interior/internal/llm"
	"interior/internal/model"
	"interior/internal/payment"
	"interior/internal/storage"

	"github.com/stretchr/testify/require"
)

const testImage = "data:image/png;base64,iVBORw0KGgo="

type fakeUploader struct {
	mu      sync.Mutex
	err     error
	uploads int
	fromURL []string
}

func (f *fakeUploader) Upload(_ context.Context, _ string, opts storage.UploadOptions) (*storage.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.uploads++
	key := fmt.Sprintf("%s/%s.png", opts.Bucket, opts.FileName)
	return &storage.UploadResult{URL: "https://cdn.example.com/" + key, Path: key, ContentType: "image/png"}, nil
}

func (f *fakeUploader) UploadFromURL(_ context.Context, rawURL string, opts storage.UploadOptions) (*storage.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fromURL = append(f.fromURL, rawURL)
	key := fmt.Sprintf("%s/%s.png", opts.Bucket, opts.FileName)
	return &storage.UploadResult{URL: "https://cdn.example.com/" + key, Path: key}, nil
}

// fakeProvider 按顺序返回预设的轮询结果，用完后一直返回最后一个。
type fakeProvider struct {
	mu        sync.Mutex
	submitErr error
	requestID string
	script    []llm.PollResult
	polls     int
	submits   []llm.JobSpec
}

func (f *fakeProvider) Submit(_ context.Context, spec llm.JobSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, spec)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	if f.requestID == "" {
		return "req-1", nil
	}
	return f.requestID, nil
}

func (f *fakeProvider) PollStatus(_ context.Context, _ string) llm.PollResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.script) == 0 {
		return llm.PollResult{Status: llm.StatusProcessing}
	}
	idx := f.polls - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx]
}

// failingDebitStore 余额读取正常，扣费写入失败。
type failingDebitStore struct {
	ledger.Store
	err error
}

func (s failingDebitStore) ApplyCreditDelta(ctx context.Context, tx *entity.DbCreditTransaction) (int64, error) {
	if tx.Amount < 0 {
		return 0, s.err
	}
	return s.Store.ApplyCreditDelta(ctx, tx)
}

type fakeGateway struct {
	mu        sync.Mutex
	verifyErr error
	event     *payment.Event
	sessions  map[string]*payment.CheckoutSession
	getCalls  int
	created   []payment.CheckoutRequest
	createErr error
}

func (g *fakeGateway) VerifyEvent(_ []byte, signature string) (*payment.Event, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if signature != "valid" {
		return nil, payment.ErrInvalidSignature
	}
	return g.event, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	cs, ok := g.sessions[id]
	if !ok {
		return nil, errors.New("no such session")
	}
	return cs, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	id := fmt.Sprintf("cs_%d", len(g.created))
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

type harness struct {
	repo     model.Repository
	ledger   *ledger.Ledger
	uploader *fakeUploader
	provider *fakeProvider
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo, err := model.OpenSQLiteMemory()
	require.NoError(t, err)
	return &harness{
		repo:     repo,
		ledger:   ledger.New(repo),
		uploader: &fakeUploader{},
		provider: &fakeProvider{},
	}
}

func (h *harness) user(t *testing.T, email string, balance int64) uint {
	t.Helper()
	ctx := context.Background()
	u := &entity.DbUser{Email: email, PasswordHash: "x", Role: entity.UserRoleUser, IsActive: true}
	require.NoError(t, h.repo.CreateUser(ctx, u))
	if balance > 0 {
		_, err := h.ledger.Credit(ctx, u.ID, balance, entity.CreditTypeBonus, "seed")
		require.NoError(t, err)
	}
	return u.ID
}

func (h *harness) generationService(opts GenerationOptions) *GenerationService {
	return NewGenerationService(h.repo, h.ledger, h.uploader, h.provider, opts)
}

func (h *harness) trackingService(opts TrackingOptions) *TrackingService {
	return NewTrackingService(h.repo, h.ledger, h.provider, h.uploader, opts)
}

func (h *harness) countGenerations(t *testing.T, userID uint) int64 {
	t.Helper()
	_, meta, err := h.repo.ListGenerations(context.Background(), &entity.GenerationQuery{UserID: userID})
	require.NoError(t, err)
	return meta.Total
}

func (h *harness) balance(t *testing.T, userID uint) int64 {
	t.Helper()
	b, err := h.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func designRequest() entity.GenerateDesignRequest {
	return entity.GenerateDesignRequest{StyleSlug: "modern", RoomType: "living-room", Image: testImage}
}
