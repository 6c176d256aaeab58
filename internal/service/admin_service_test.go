package service

import (
	"context"
	"convai-builder-go/internal/config"
	"convai-builder-go/internal/model"
	"convai-builder-go/pkg/hash"
	"convai-builder-go/pkg/token"
	"errors"
	"testing"
)

func TestReselectVoices(t *testing.T) {
	store := newMemStore()
	repo := memBotRepo{store}
	_ = repo.Create(&model.Bot{ID: "a", Name: "Maya", SystemPrompt: "You are a travel guide.", VoiceName: VoiceAchernar})
	_ = repo.Create(&model.Bot{ID: "b", Name: "Victor", SystemPrompt: "You are a stern judge.", VoiceName: VoiceCharon})

	voices := NewVoiceService(&fakeLLM{reply: VoiceCharon}, "m")
	svc := NewAdminService(repo, nil, voices, nil, &recordingPublisher{})

	changes, err := svc.ReselectVoices(context.Background())
	if err != nil {
		t.Fatalf("ReselectVoices returned error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes", len(changes))
	}
	byID := map[string]VoiceChange{}
	for _, c := range changes {
		byID[c.BotID] = c
	}
	if !byID["a"].Changed || byID["b"].Changed {
		t.Errorf("unexpected changes %+v", changes)
	}
	if got := byID["a"].String(); got != `Updated "Maya": Achernar → Charon` {
		t.Errorf("String() = %s", got)
	}
	if got := byID["b"].String(); got != `"Victor": Already using optimal voice (Charon)` {
		t.Errorf("String() = %s", got)
	}
	stored, _ := repo.FindByID("a")
	if stored.VoiceName != VoiceCharon {
		t.Errorf("voice not persisted")
	}
}

func TestQueueVoiceReselection(t *testing.T) {
	store := newMemStore()
	repo := memBotRepo{store}
	_ = repo.Create(&model.Bot{ID: "a", Name: "Maya"})
	_ = repo.Create(&model.Bot{ID: "b", Name: "Victor"})
	pub := &recordingPublisher{}

	n, err := NewAdminService(repo, nil, nil, nil, pub).QueueVoiceReselection(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("queued %d, err %v", n, err)
	}
	for _, typ := range pub.types() {
		if typ != "select_voice" {
			t.Errorf("unexpected task %s", typ)
		}
	}
}

func TestAuthService(t *testing.T) {
	hashed, err := hash.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	jwtManager := token.NewJWTManager("test-secret", 1, 1)
	svc := NewAuthService(config.AdminConfig{Username: "admin", PasswordHash: hashed}, jwtManager)

	if _, _, err := svc.Login("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, _, err := svc.Login("root", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong username: %v", err)
	}

	access, refresh, err := svc.Login("admin", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	claims, err := jwtManager.VerifyToken(access)
	if err != nil || claims.Role != RoleAdmin || claims.Kind != token.KindAccess {
		t.Fatalf("access claims %+v, err %v", claims, err)
	}

	if _, _, err := svc.RefreshToken(access); err == nil {
		t.Errorf("access tokens must not refresh")
	}
	if _, _, err := svc.RefreshToken(refresh); err != nil {
		t.Errorf("RefreshToken returned error: %v", err)
	}
}

func TestAuthServiceWithoutPasswordHash(t *testing.T) {
	svc := NewAuthService(config.AdminConfig{Username: "admin"}, token.NewJWTManager("x", 1, 1))
	if _, _, err := svc.Login("admin", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login must be disabled without a password hash, got %v", err)
	}
}

func TestSearchServiceValidatesQuery(t *testing.T) {
	var gotSize int
	svc := NewSearchService(func(_ context.Context, q, botID string, size int) ([]model.MessageSearchHit, int64, error) {
		gotSize = size
		return []model.MessageSearchHit{{MessageDocument: model.MessageDocument{Content: q}}}, 1, nil
	})

	var verr *ValidationError
	if _, err := svc.SearchMessages(context.Background(), "  ", "", 10); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	res, err := svc.SearchMessages(context.Background(), "paris", "bot-1", 500)
	if err != nil {
		t.Fatalf("SearchMessages returned error: %v", err)
	}
	if res.Total != 1 || gotSize != 20 {
		t.Errorf("total=%d size=%d", res.Total, gotSize)
	}
}
