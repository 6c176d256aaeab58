package handler

import (
	"context"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/service"
	"convai-builder-go/pkg/llm"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type stubChatService struct {
	result     *service.TurnResult
	err        error
	gotBot     string
	gotSession string
	gotText    string
}

func (s *stubChatService) SendMessage(_ context.Context, botID, sessionID, text string) (*service.TurnResult, error) {
	s.gotBot, s.gotSession, s.gotText = botID, sessionID, text
	return s.result, s.err
}

func (s *stubChatService) StreamMessage(ctx context.Context, botID, sessionID, text string, _ llm.MessageWriter) (*service.TurnResult, error) {
	return s.SendMessage(ctx, botID, sessionID, text)
}

type stubConversationService struct {
	clearErr   error
	gotSession string
}

func (s *stubConversationService) Open(_ context.Context, botID, sessionID string) (*service.ChatView, error) {
	s.gotSession = sessionID
	return &service.ChatView{Bot: &model.Bot{ID: botID, Name: "Maya"}}, nil
}

func (s *stubConversationService) Clear(_ context.Context, _, sessionID string) error {
	s.gotSession = sessionID
	return s.clearErr
}

func (s *stubConversationService) ListByBot(string) ([]model.ConversationSummary, error) {
	return nil, nil
}

type stubBotService struct {
	service.BotService
	created *model.Bot
}

func (s *stubBotService) Create(_ context.Context, form service.BotForm) (*model.Bot, error) {
	if _, _, _, err := service.ValidateBotForm(form); err != nil {
		return nil, err
	}
	s.created = &model.Bot{ID: "bot-9", Name: strings.TrimSpace(form.Name)}
	return s.created, nil
}

func newChatRouter(chat service.ChatService, conv service.ConversationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewChatHandler(chat, conv, false)
	r.SetHTMLTemplate(template.Must(template.New("chat.html").Parse(`{{.SessionID}}`)))
	r.GET("/chat/:botID", h.Page)
	r.POST("/chat/:botID/send", h.Send)
	r.POST("/chat/:botID/clear", h.Clear)
	return r
}

func postJSON(r http.Handler, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSendReturnsTurn(t *testing.T) {
	ai := &service.MessageView{ID: 2, Type: model.MessageTypeAssistant, Content: "Hi!", HTML: "<p>Hi!</p>\n", Timestamp: "09:30", AudioURL: "https://audio.test/a.mp3"}
	chat := &stubChatService{result: &service.TurnResult{
		UserMessage:      service.MessageView{ID: 1, Type: model.MessageTypeUser, Content: "hello", Timestamp: "09:30"},
		AssistantMessage: ai,
		AudioGenerated:   true,
	}}
	r := newChatRouter(chat, &stubConversationService{})

	w := postJSON(r, "/chat/bot-1/send", `{"message":"hello","session_id":"sess-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if chat.gotBot != "bot-1" || chat.gotSession != "sess-1" || chat.gotText != "hello" {
		t.Errorf("service called with %q %q %q", chat.gotBot, chat.gotSession, chat.gotText)
	}

	var body struct {
		Success        bool                   `json:"success"`
		AIMessage      map[string]interface{} `json:"ai_message"`
		AudioGenerated bool                   `json:"audio_generated"`
		AudioError     *string                `json:"audio_error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || !body.AudioGenerated || body.AudioError != nil {
		t.Errorf("unexpected body %s", w.Body.String())
	}
	for _, key := range []string{"id", "content", "html", "timestamp", "audio_url"} {
		if _, ok := body.AIMessage[key]; !ok {
			t.Errorf("ai_message missing %q", key)
		}
	}
}

func TestSendFallsBackToSessionCookie(t *testing.T) {
	chat := &stubChatService{result: &service.TurnResult{AssistantMessage: &service.MessageView{}}}
	r := newChatRouter(chat, &stubConversationService{})

	w := postJSON(r, "/chat/bot-1/send", `{"message":"hello"}`, &http.Cookie{Name: "conversation_bot-1", Value: "from-cookie"})
	if w.Code != http.StatusOK || chat.gotSession != "from-cookie" {
		t.Fatalf("status %d, session %q", w.Code, chat.gotSession)
	}
}

func TestSendMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrEmptyMessage, http.StatusBadRequest},
		{fmt.Errorf("%w: maximum is 1000 characters", service.ErrMessageTooLong), http.StatusBadRequest},
		{service.ErrConversationNotFound, http.StatusBadRequest},
		{service.ErrBotNotFound, http.StatusNotFound},
		{service.ErrTurnInProgress, http.StatusConflict},
		{fmt.Errorf("%w: %w", service.ErrCompletionFailed, context.DeadlineExceeded), http.StatusBadGateway},
		{fmt.Errorf("db is down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			r := newChatRouter(&stubChatService{err: tc.err}, &stubConversationService{})
			w := postJSON(r, "/chat/bot-1/send", `{"message":"x","session_id":"s"}`)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			var body map[string]interface{}
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body["success"] != false || body["error"] == "" {
				t.Errorf("unexpected body %s", w.Body.String())
			}
		})
	}
}

func TestSendRejectsMalformedJSON(t *testing.T) {
	r := newChatRouter(&stubChatService{}, &stubConversationService{})
	if w := postJSON(r, "/chat/bot-1/send", `{"message":`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPageIssuesSessionCookie(t *testing.T) {
	conv := &stubConversationService{}
	r := newChatRouter(&stubChatService{}, conv)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/bot-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "conversation_bot-1" {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("session cookie not issued: %+v", session)
	}
	if conv.gotSession != session.Value || w.Body.String() != session.Value {
		t.Errorf("page used session %q, cookie %q", conv.gotSession, session.Value)
	}

	req := httptest.NewRequest(http.MethodGet, "/chat/bot-1", nil)
	req.AddCookie(&http.Cookie{Name: "conversation_bot-1", Value: "existing"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if conv.gotSession != "existing" {
		t.Errorf("reload should reuse the session, got %q", conv.gotSession)
	}
}

func TestClearRedirectsWithFlash(t *testing.T) {
	conv := &stubConversationService{}
	r := newChatRouter(&stubChatService{}, conv)

	req := httptest.NewRequest(http.MethodPost, "/chat/bot-1/clear", nil)
	req.AddCookie(&http.Cookie{Name: "conversation_bot-1", Value: "sess-1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/chat/bot-1" {
		t.Fatalf("got %d to %q", w.Code, w.Header().Get("Location"))
	}
	if conv.gotSession != "sess-1" {
		t.Errorf("cleared session %q", conv.gotSession)
	}
	if !hasCookie(w, flashCookie) {
		t.Errorf("flash cookie not set")
	}
}

func hasCookie(w *httptest.ResponseRecorder, name string) bool {
	for _, c := range w.Result().Cookies() {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

func newBotRouter(bots service.BotService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewBotHandler(bots, false)
	r.SetHTMLTemplate(template.Must(template.New("bot_form.html").Parse(`{{range $k, $v := .Errors}}{{$k}}={{$v}};{{end}}`)))
	r.POST("/create", h.Create)
	return r
}

func postForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateBotRedirectsToChat(t *testing.T) {
	bots := &stubBotService{}
	r := newBotRouter(bots)

	w := postForm(r, "/create", url.Values{"name": {"Maya"}, "system_prompt": {"You are a travel guide."}, "temperature": {"0.3"}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/chat/bot-9" {
		t.Fatalf("got %d to %q", w.Code, w.Header().Get("Location"))
	}
	if !hasCookie(w, flashCookie) {
		t.Errorf("flash cookie not set")
	}
}

func TestCreateBotRerendersOnInvalidInput(t *testing.T) {
	bots := &stubBotService{}
	r := newBotRouter(bots)

	w := postForm(r, "/create", url.Values{"name": {"M"}, "system_prompt": {"You are a travel guide."}, "temperature": {"warm"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "name=") || !strings.Contains(body, "temperature=Temperature must be a number.") {
		t.Errorf("missing field errors in %q", body)
	}
	if bots.created != nil {
		t.Errorf("invalid form must not create a bot")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("héllo wörld", 6); got != "héllo…" {
		t.Errorf("got %q", got)
	}
}

func TestPopFlashClearsCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got *Flash
	r.GET("/", func(c *gin.Context) {
		got = popFlash(c, false)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: flashCookie, Value: url.QueryEscape("error|Bot not found.")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got == nil || got.Kind != "error" || got.Message != "Bot not found." {
		t.Fatalf("got %+v", got)
	}
	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == flashCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Errorf("flash cookie should be expired after reading")
	}
}

func TestSameOrigin(t *testing.T) {
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://chat.example.com", true},
		{"https://CHAT.example.com", true},
		{"https://evil.example.net", false},
		{"http://chat.example.com:8443", false},
		{"://bad", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://chat.example.com/chat/bot-1/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := sameOrigin(req); got != tc.want {
			t.Errorf("sameOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}

func TestStreamRejectsCrossSiteOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewChatHandler(&stubChatService{result: &service.TurnResult{AssistantMessage: &service.MessageView{}}}, &stubConversationService{}, false)
	r.GET("/chat/:botID/ws", h.Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/bot-1/ws?session_id=sess-1"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example.net"}})
	if err == nil {
		t.Fatal("cross-site handshake should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {srv.URL}})
	if err != nil {
		t.Fatalf("same-origin handshake: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"message": "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var frame map[string]interface{}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame["type"] != "completion" {
		t.Errorf("frame = %v", frame)
	}
}
