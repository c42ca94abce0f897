package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"coin_exchange/internal/accounts"
	"coin_exchange/internal/boost"
	"coin_exchange/internal/domain"
	"coin_exchange/internal/exchange"
	"coin_exchange/internal/ledger"
	"coin_exchange/internal/middleware"
	"coin_exchange/internal/notify"
	"coin_exchange/internal/settlement"
	"coin_exchange/internal/testutil"
	"coin_exchange/internal/utils"
	"coin_exchange/internal/videos"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type stubCatalog struct{}

func (stubCatalog) LookupMedia(_ context.Context, id string) (*videos.Media, error) {
	return &videos.Media{Title: "title " + id, ChannelID: "UC" + id, ChannelTitle: "channel " + id}, nil
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) (*gin.Engine, *gorm.DB) {
	t.Helper()
	return newCachedTestServer(t, limiter, nil)
}

// newCachedTestServer is newTestServer with a Redis cache behind it.
func newCachedTestServer(t *testing.T, limiter *middleware.RateLimiter, rdb *redis.Client) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	hub := notify.NewHub(8)
	t.Cleanup(hub.Close)
	l := ledger.New(db)
	pub := notify.NewPublisher(db, hub)
	r := gin.New()
	NewRouter(r, Deps{
		DB:          db,
		Redis:       rdb,
		JWTSecret:   testSecret,
		Hub:         hub,
		Publisher:   pub,
		Ledger:      l,
		Accounts:    accounts.NewService(db, l),
		Exchange:    exchange.NewService(db, l, pub),
		Boost:       boost.NewAllocator(db, l, nil),
		Library:     videos.NewLibrary(db, l, stubCatalog{}),
		Settlement:  settlement.NewService(db, l, pub),
		RateLimiter: limiter,
	})
	return r, db
}

func call(t *testing.T, r http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func tokenFor(t *testing.T, userID uint) string {
	t.Helper()
	token, err := utils.GenerateJWT(userID, testSecret)
	require.NoError(t, err)
	return token
}

func TestRegisterLoginAndProfile(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w, body := call(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "alice@example.com", "channel_name": "Alice", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotEmpty(t, body["token"])

	w, _ = call(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "alice@example.com", "channel_name": "Again", "password": "secret1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "nope-nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = call(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	token := body["token"].(string)

	w, body = call(t, r, http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := body["user"].(map[string]any)
	require.Equal(t, "Alice", user["channel_name"])
	require.NotContains(t, user, "password")

	w, _ = call(t, r, http.MethodGet, "/api/users/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// testRedis connects to the Redis named by REDIS_TEST_ADDR on a scratch
// database, or skips the test.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return rdb
}

func TestReferralRegistrationDropsReferrerCache(t *testing.T) {
	rdb := testRedis(t)
	r, db := newCachedTestServer(t, nil, rdb)
	referrer := testutil.CreateUser(t, db, "referrer", 0)
	token := tokenFor(t, referrer.ID)

	_, body := call(t, r, http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, false, body["cached"])
	_, body = call(t, r, http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, true, body["cached"])

	w, _ := call(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "new@example.com", "channel_name": "New", "password": "secret1", "referral_code": referrer.ReferralCode,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	_, body = call(t, r, http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, false, body["cached"])
	require.EqualValues(t, 5, body["user"].(map[string]any)["balance"])
}

func TestUncachedHistoryPagesStayFresh(t *testing.T) {
	rdb := testRedis(t)
	r, db := newCachedTestServer(t, nil, rdb)
	user := testutil.CreateUser(t, db, "alice", 10)
	token := tokenFor(t, user.ID)

	_, body := call(t, r, http.MethodGet, "/api/users/ledger?page_size=50", token, nil)
	require.EqualValues(t, 0, body["total"])

	w, _ := call(t, r, http.MethodPost, "/api/users/gift", token, gin.H{"amount": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, body = call(t, r, http.MethodGet, "/api/users/ledger?page_size=50", token, nil)
	require.EqualValues(t, 1, body["total"])
	require.Equal(t, false, body["cached"])
}

func TestTokenQueryParameterAccepted(t *testing.T) {
	r, db := newTestServer(t, nil)
	user := testutil.CreateUser(t, db, "alice", 0)

	w, _ := call(t, r, http.MethodGet, "/api/users/notifications?token="+tokenFor(t, user.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSubscriptionFlowOverHTTP(t *testing.T) {
	r, db := newTestServer(t, nil)
	owner := testutil.CreateUser(t, db, "owner", 0)
	subscriber := testutil.CreateUser(t, db, "subscriber", 4)
	video := testutil.CreateVideo(t, db, owner.ID, false)

	w, body := call(t, r, http.MethodPost, "/api/subscriptions/perform", tokenFor(t, subscriber.ID), gin.H{"video_id": video.ID})
	require.Equal(t, http.StatusBadRequest, w.Code, "owner cannot pay the reward")
	require.Contains(t, body["error"], "insufficient funds")

	require.NoError(t, db.Model(&domain.User{}).Where("id = ?", owner.ID).Update("balance", 5).Error)
	w, body = call(t, r, http.MethodPost, "/api/subscriptions/perform", tokenFor(t, subscriber.ID), gin.H{"video_id": video.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 5, body["new_coins"])
	sub := body["subscription"].(map[string]any)

	w, _ = call(t, r, http.MethodPost, fmt.Sprintf("/api/subscriptions/refuse/%v", sub["id"]), tokenFor(t, owner.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 2, testutil.Balance(t, db, owner.ID))
	require.EqualValues(t, 7, testutil.Balance(t, db, subscriber.ID))

	w, _ = call(t, r, http.MethodPost, fmt.Sprintf("/api/subscriptions/refuse/%v", sub["id"]), tokenFor(t, owner.ID), nil)
	require.Equal(t, http.StatusBadRequest, w.Code, "terminal subscriptions stay terminal")

	w, _ = call(t, r, http.MethodPost, "/api/subscriptions/subscribe-back/999", tokenFor(t, owner.ID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDepositApprovalRequiresAdmin(t *testing.T) {
	r, db := newTestServer(t, nil)
	payer := testutil.CreateUser(t, db, "payer", 0)
	admin := testutil.CreateUser(t, db, "admin", 0)
	require.NoError(t, db.Model(&domain.User{}).Where("id = ?", admin.ID).Update("role", domain.RoleAdmin).Error)

	w, _ := call(t, r, http.MethodPost, "/api/payments/request", tokenFor(t, payer.ID), gin.H{"amount": 10, "depositor_phone": "0911"})
	require.Equal(t, http.StatusBadRequest, w.Code, "below minimum")

	w, body := call(t, r, http.MethodPost, "/api/payments/request", tokenFor(t, payer.ID), gin.H{"amount": 50, "depositor_phone": "0911"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	paymentID := body["payment"].(map[string]any)["id"]

	path := fmt.Sprintf("/admin/payments/%v/approve", paymentID)
	w, _ = call(t, r, http.MethodPost, path, tokenFor(t, payer.ID), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, body = call(t, r, http.MethodGet, "/admin/payments/pending", tokenFor(t, admin.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, body["total"])

	w, body = call(t, r, http.MethodPost, path, tokenFor(t, admin.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 50, body["new_coins"])

	w, _ = call(t, r, http.MethodPost, path, tokenFor(t, admin.ID), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.EqualValues(t, 50, testutil.Balance(t, db, payer.ID))

	w, body = call(t, r, http.MethodGet, "/admin/ledger?kind=deposit", tokenFor(t, admin.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, body["total"])

	w, _ = call(t, r, http.MethodGet, "/admin/ledger?from=yesterday", tokenFor(t, admin.ID), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVideoSlotAndBoostOverHTTP(t *testing.T) {
	r, db := newTestServer(t, nil)
	owner := testutil.CreateUser(t, db, "owner", 30)
	token := tokenFor(t, owner.ID)

	w, body := call(t, r, http.MethodPost, "/api/videos/my-videos", token, gin.H{"video_url": "https://youtu.be/abc"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.EqualValues(t, 30, body["new_coins"])
	videoID := body["video"].(map[string]any)["id"]

	w, body = call(t, r, http.MethodPost, fmt.Sprintf("/api/videos/my-videos/%v/boost", videoID), token, gin.H{"tier": "100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 5, body["new_coins"])

	w, _ = call(t, r, http.MethodPost, fmt.Sprintf("/api/videos/my-videos/%v/boost", videoID), token, gin.H{"tier": "7"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, r, http.MethodGet, "/api/videos/mandatory", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), videos.Mandatory.VideoID)
}

func TestRateLimiting(t *testing.T) {
	r, db := newTestServer(t, middleware.NewRateLimiter(0.001, 1))
	user := testutil.CreateUser(t, db, "alice", 0)
	token := tokenFor(t, user.ID)

	w, _ := call(t, r, http.MethodGet, "/api/videos/mandatory", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, r, http.MethodGet, "/api/videos/mandatory", token, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: x", domain.ErrInsufficientFunds), http.StatusBadRequest},
		{fmt.Errorf("%w: x", domain.ErrAlreadyProcessed), http.StatusBadRequest},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{videos.ErrCatalogConfig, http.StatusInternalServerError},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
