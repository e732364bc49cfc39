package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"travelquest/backend/internal/chathub"
	"travelquest/backend/internal/config"
	"travelquest/backend/internal/localization"
	"travelquest/backend/internal/logger"
	"travelquest/backend/internal/meetup"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/ratelimit"
	"travelquest/backend/internal/storage"
	"travelquest/backend/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, uid, text string) error {
	args := m.Called(ctx, uid, text)
	return args.Error(0)
}

type testAPI struct {
	router   *gin.Engine
	h        *Handler
	store    *storage.Memory
	notifier *MockNotifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemory(5)
	hub := chathub.NewManagerService(chathub.NewLocalBroker(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	loc, err := localization.NewEmbedded()
	require.NoError(t, err)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	svc := meetup.NewService(store, ratelimit.Unlimited{}, hub, logger.NewNop())
	h := NewHandler(svc, NewAuthenticator("test-secret"), notifier, loc, logger.NewNop())
	r := gin.New()
	h.Register(r, true)
	return &testAPI{router: r, h: h, store: store, notifier: notifier}
}

func (a *testAPI) do(t *testing.T, method, path, uid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		token, err := a.h.Auth.Issue(uid)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok, "error body: %s", w.Body.String())
	return detail["code"].(string)
}

// setupPair registers alice and bob and returns their conversation id.
func (a *testAPI) setupPair(t *testing.T) string {
	t.Helper()
	for _, uid := range []string{"alice", "bob"} {
		w := a.do(t, http.MethodPost, "/profiles/me", uid, gin.H{"name": strings.ToUpper(uid)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := a.do(t, http.MethodPost, "/conversations", "alice", gin.H{"other_uid": "bob"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["conversation_id"].(string)
}

func TestAuth_RequiresToken(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", errorCode(t, w))

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticator_RejectsExpiredAndForeignTokens(t *testing.T) {
	auth := NewAuthenticator("secret")
	token, err := auth.Issue("alice")
	require.NoError(t, err)

	uid, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)

	_, err = NewAuthenticator("other").Verify(token)
	assert.Error(t, err)

	later := NewAuthenticator("secret")
	later.Now = func() time.Time { return time.Now().Add(2 * later.TTL) }
	_, err = later.Verify(token)
	assert.Error(t, err)
}

func TestAuthenticator_LinkCodesAndAccessTokensAreSeparate(t *testing.T) {
	auth := NewAuthenticator("secret")

	code, err := auth.IssueLinkCode("alice")
	require.NoError(t, err)
	uid, err := auth.VerifyLinkCode(code)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)
	_, err = auth.Verify(code)
	assert.Error(t, err, "a link code must not authenticate API calls")

	token, err := auth.Issue("alice")
	require.NoError(t, err)
	_, err = auth.VerifyLinkCode(token)
	assert.Error(t, err, "an access token must not link a chat")
	_, err = auth.VerifyLinkCode("alice")
	assert.Error(t, err)

	later := NewAuthenticator("secret")
	later.Now = func() time.Time { return time.Now().Add(config.LinkCodeTTL + time.Minute) }
	_, err = later.VerifyLinkCode(code)
	assert.Error(t, err, "link codes expire")
}

// TestTelegramLinkCode_LinksCallerChat walks the linking flow: the caller
// asks the API for a code and sends it to the bot, which links the chat to
// the caller and nobody else.
func TestTelegramLinkCode_LinksCallerChat(t *testing.T) {
	a := newTestAPI(t)
	a.setupPair(t)
	ctx := context.Background()

	w := a.do(t, http.MethodPost, "/profiles/me/telegram-link", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	code := body["code"].(string)
	assert.Equal(t, "/link "+code, body["command"])
	assert.EqualValues(t, config.LinkCodeTTL.Seconds(), body["expires_in"])

	link := func(text string, chatID int64) string {
		name := strings.SplitN(text, " ", 2)[0]
		msg := &tgbotapi.Message{
			Text:     text,
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
			Chat:     tgbotapi.Chat{ID: chatID},
		}
		reply, err := telegram.Reply(ctx, msg, a.store, a.h.Auth, a.h.Localizer)
		require.NoError(t, err)
		return reply
	}

	assert.Equal(t, a.h.Localizer.GetString("en", "link_invalid"), link("/link bob", 666))
	_, err := a.store.GetProfileByTelegramChatID(ctx, 666)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	link("/link "+code, 42)
	profile, err := a.store.GetProfileByTelegramChatID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.UID)

	bob, err := a.store.GetProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, bob.TelegramChatID)
}

func TestTelegramLinkCode_RequiresAuth(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/profiles/me/telegram-link", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueToken_Anonymous(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/auth/token", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["uid"])

	uid, err := a.h.Auth.Verify(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, body["uid"], uid)
}

func TestResolveConversation_SameForBothUsers(t *testing.T) {
	a := newTestAPI(t)
	c1 := a.setupPair(t)

	w := a.do(t, http.MethodPost, "/conversations", "bob", gin.H{"other_uid": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, c1, decode(t, w)["conversation_id"])

	w = a.do(t, http.MethodPost, "/conversations", "alice", gin.H{"other_uid": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, meetup.CodeInvalidArgument, errorCode(t, w))
}

func TestMeetupFlow_AcceptThenAlreadyAccepted(t *testing.T) {
	a := newTestAPI(t)
	c1 := a.setupPair(t)

	w := a.do(t, http.MethodPost, "/conversations/"+c1+"/requests", "alice", gin.H{"receiver_uid": "bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rid := decode(t, w)["request_id"].(string)
	a.notifier.AssertCalled(t, "Notify", mock.Anything, "bob", "ALICE asks you to confirm that you met.")

	w = a.do(t, http.MethodPost, "/conversations/"+c1+"/requests", "alice", gin.H{"receiver_uid": "bob"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, meetup.CodeAlreadyPending, errorCode(t, w))

	w = a.do(t, http.MethodGet, "/requests/pending", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["requests"], 1)

	w = a.do(t, http.MethodPost, "/conversations/"+c1+"/requests/"+rid+"/response", "bob",
		gin.H{"sender_uid": "alice", "decision": "accept"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "accept", decode(t, w)["status"])
	a.notifier.AssertCalled(t, "Notify", mock.Anything, "alice", "Meetup confirmed!")

	w = a.do(t, http.MethodGet, "/profiles/alice", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["meetup_count"])

	w = a.do(t, http.MethodPost, "/conversations/"+c1+"/requests/"+rid+"/response", "bob",
		gin.H{"sender_uid": "alice", "decision": "decline"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, meetup.CodeAlreadyResolved, errorCode(t, w))

	w = a.do(t, http.MethodPost, "/conversations/"+c1+"/requests", "bob", gin.H{"receiver_uid": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, meetup.CodeAlreadyAccepted, errorCode(t, w))
}

func TestResolve_InvalidDecision(t *testing.T) {
	a := newTestAPI(t)
	c1 := a.setupPair(t)

	w := a.do(t, http.MethodPost, "/conversations/"+c1+"/requests/r1/response", "bob",
		gin.H{"sender_uid": "alice", "decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, meetup.CodeInvalidArgument, errorCode(t, w))
}

func TestResolve_UnknownRequestIsNotFound(t *testing.T) {
	a := newTestAPI(t)
	c1 := a.setupPair(t)

	w := a.do(t, http.MethodPost, "/conversations/"+c1+"/requests/missing/response", "bob",
		gin.H{"sender_uid": "alice", "decision": "accept"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, meetup.CodeRequestNotFound, errorCode(t, w))
}

func TestErrorMessages_AreLocalized(t *testing.T) {
	a := newTestAPI(t)
	c1 := a.setupPair(t)
	a.do(t, http.MethodPost, "/conversations/"+c1+"/requests", "alice", gin.H{"receiver_uid": "bob"})

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(gin.H{"receiver_uid": "bob"}))
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+c1+"/requests", &buf)
	token, err := a.h.Auth.Issue("alice")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Language", "uk")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	detail := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, a.h.Localizer.GetString("uk", meetup.CodeAlreadyPending), detail["message"])
}

func TestMessages_SendAndList(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/users/bob/messages", "alice", gin.H{"text": "hi bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	c1 := decode(t, w)["conversation_id"].(string)

	w = a.do(t, http.MethodPost, "/conversations/"+c1+"/messages", "bob", gin.H{"text": "hi alice"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodGet, "/conversations/"+c1+"/messages", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi bob", msgs[0].(map[string]any)["text"])
	assert.Equal(t, "hi alice", msgs[1].(map[string]any)["text"])
	assert.Equal(t, "Unknown User", body["names"].(map[string]any)["bob"])

	w = a.do(t, http.MethodGet, "/conversations/"+c1+"/messages", "carol", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/conversations/missing/messages", "alice", gin.H{"text": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, meetup.CodeConversationNotFound, errorCode(t, w))
}

func TestInbox(t *testing.T) {
	a := newTestAPI(t)
	a.setupPair(t)

	w := a.do(t, http.MethodGet, "/conversations", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	convs := decode(t, w)["conversations"].([]any)
	require.Len(t, convs, 1)
	entry := convs[0].(map[string]any)
	assert.Equal(t, "alice", entry["other_uid"])
	assert.Equal(t, "ALICE", entry["other_name"])
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(meetup.CodeInvalidArgument))
	assert.Equal(t, http.StatusConflict, statusOf(meetup.CodeConflictingAcceptance))
	assert.Equal(t, http.StatusTooManyRequests, statusOf(meetup.CodeRateLimited))
	assert.Equal(t, http.StatusNotFound, statusOf(meetup.CodeProfileNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(meetup.CodeConflict))
	assert.Equal(t, http.StatusInternalServerError, statusOf(meetup.CodeInternal))
}

func TestStreamPending_WebSocket(t *testing.T) {
	a := newTestAPI(t)
	c1 := a.setupPair(t)

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	token, err := a.h.Auth.Issue("bob")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/requests?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame chathub.Frame[models.VerificationRequest]
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Empty(t, frame.Items)

	w := a.do(t, http.MethodPost, "/conversations/"+c1+"/requests", "alice", gin.H{"receiver_uid": "bob"})
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Len(t, frame.Items, 1)
	assert.Equal(t, "alice", frame.Items[0].SenderUID)
}
