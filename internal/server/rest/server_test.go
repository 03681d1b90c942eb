package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/filex"
	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/accounts"
	"github.com/dmitrijs2005/gophaccounts/internal/server/auth"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	accountsrepo "github.com/dmitrijs2005/gophaccounts/internal/server/repositories/accounts"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Verify(p, h string) (bool, error) {
	return h == "h:"+p, nil
}

type recordingMailer struct {
	mu    sync.Mutex
	mails []string
	err   error
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.mails = append(m.mails, to+"|"+subject+"|"+body)
	return nil
}

type memoryImages struct {
	uploads map[string]string
	deleted []string
}

func (f *memoryImages) Upload(ctx context.Context, r io.Reader, contentType string) (models.Avatar, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return models.Avatar{}, err
	}
	id := "avatars/" + string(b)
	f.uploads[id] = contentType
	return models.Avatar{ID: id, URL: "http://s3/" + id}, nil
}

func (f *memoryImages) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type testEnv struct {
	srv     *Server
	mailer  *recordingMailer
	images  *memoryImages
	uploads *filex.TempStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	uploads, err := filex.NewTempStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		mailer:  &recordingMailer{},
		images:  &memoryImages{uploads: map[string]string{}},
		uploads: uploads,
	}

	svc := accounts.NewService(accountsrepo.NewMemoryRepository(), plainHasher{}, env.mailer, env.images,
		accounts.Settings{OTPValidity: 5 * time.Minute, ResetOTPValidity: 10 * time.Minute},
		accounts.WithCodeGenerator(func(int64) (int, error) { return 482913, nil }),
	)

	env.srv = NewServer(":0", logging.Nop{}, svc, uploads, Settings{SecretKey: testSecret, TokenValidity: time.Hour})
	return env
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, avatar string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if avatar != "" {
		fw, err := w.CreateFormFile("avatar", "face.png")
		require.NoError(t, err)
		_, err = fw.Write([]byte(avatar))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type bodyView struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	User    userView `json:"user"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) bodyView {
	t.Helper()
	var b bodyView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b), rec.Body.String())
	return b
}

func tokenCookieOf(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == tokenCookie {
			return c
		}
	}
	return nil
}

func (e *testEnv) registerAlice(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(multipartRequest(t, http.MethodPost, "/api/v1/register",
		map[string]string{"name": "Alice", "email": "a@x.com", "password": "pw1"}, "face"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := tokenCookieOf(rec)
	require.NotNil(t, c)
	return c
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(multipartRequest(t, http.MethodPost, "/api/v1/register",
		map[string]string{"name": "Alice", "email": "a@x.com", "password": "pw1"}, "face"))

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "OTP sent to your email, please verify your account", body.Message)
	assert.Equal(t, "a@x.com", body.User.Email)
	assert.False(t, body.User.Verified)
	assert.Equal(t, "avatars/face", body.User.Avatar.PublicID)
	assert.NotContains(t, rec.Body.String(), "h:pw1")

	c := tokenCookieOf(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	id, err := auth.GetAccountIDFromToken(c.Value, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, body.User.ID, id)

	assert.Equal(t, []string{"a@x.com|Verify your account|Your OTP is 482913"}, env.mailer.mails)

	entries, err := os.ReadDir(env.uploads.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "temp upload removed")
}

func TestRegister_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.registerAlice(t)

	tests := []struct {
		name    string
		fields  map[string]string
		status  int
		message string
	}{
		{"duplicate", map[string]string{"name": "Eve", "email": "a@x.com", "password": "pw"}, http.StatusBadRequest, "User already exists"},
		{"missing name", map[string]string{"email": "b@x.com", "password": "pw"}, http.StatusBadRequest, "Please enter all fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(multipartRequest(t, http.MethodPost, "/api/v1/register", tt.fields, ""))
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestRegister_MailFailureIs500(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("dial tcp: connection refused")

	rec := env.do(multipartRequest(t, http.MethodPost, "/api/v1/register",
		map[string]string{"name": "Alice", "email": "a@x.com", "password": "pw1"}, ""))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "dial tcp: connection refused", decode(t, rec).Message)
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.registerAlice(t)

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/verify", map[string]any{"otp": "111"}), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OTP or has been Expired", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/v1/verify", map[string]any{"otp": "482913"}), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Account Verified", body.Message)
	assert.True(t, body.User.Verified)
	assert.NotNil(t, tokenCookieOf(rec))

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/v1/verify", map[string]any{"otp": 482913}), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "code already consumed")
}

func TestVerify_MalformedOTP(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.registerAlice(t)

	for _, body := range []any{map[string]any{"otp": "abc"}, map[string]any{}, map[string]any{"otp": nil}} {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/verify", body), cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid OTP or has been Expired", decode(t, rec).Message)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	expired, err := auth.GenerateToken("someone", []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.GenerateToken("someone", []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	unknown, err := auth.GenerateToken("no-such-account", []byte(testSecret), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"garbage", &http.Cookie{Name: tokenCookie, Value: "not-a-jwt"}},
		{"expired", &http.Cookie{Name: tokenCookie, Value: expired}},
		{"wrong secret", &http.Cookie{Name: tokenCookie, Value: foreign}},
		{"unknown account", &http.Cookie{Name: tokenCookie, Value: unknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := env.do(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Please login first", decode(t, rec).Message)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.registerAlice(t)

	tests := []struct {
		name    string
		body    map[string]string
		status  int
		message string
	}{
		{"missing password", map[string]string{"email": "a@x.com"}, http.StatusBadRequest, "Please enter email and password"},
		{"unknown email", map[string]string{"email": "z@x.com", "password": "pw1"}, http.StatusBadRequest, "Invalid email or password"},
		{"wrong password", map[string]string{"email": "a@x.com", "password": "nope"}, http.StatusBadRequest, "Invalid email or password"},
		{"ok", map[string]string{"email": "a@x.com", "password": "pw1"}, http.StatusOK, "Login Successfully"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/login", tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec).Message)
			assert.Equal(t, tt.status == http.StatusOK, tokenCookieOf(rec) != nil)
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/logout", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged Out Successfully", decode(t, rec).Message)
	c := tokenCookieOf(rec)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.registerAlice(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), cookie)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Welcome back Alice", body.Message)
	assert.Equal(t, "Alice", body.User.Name)
	assert.NotNil(t, tokenCookieOf(rec), "token re-issued")
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.registerAlice(t)

	rec := env.do(multipartRequest(t, http.MethodPut, "/api/v1/updateprofile", map[string]string{"name": "Alicia"}, "new"), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Profile Updated Successfully", decode(t, rec).Message)
	assert.Equal(t, []string{"avatars/face"}, env.images.deleted)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), cookie)
	body := decode(t, rec)
	assert.Equal(t, "Alicia", body.User.Name)
	assert.Equal(t, "avatars/new", body.User.Avatar.PublicID)

	entries, err := os.ReadDir(env.uploads.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadBodyLimit(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.registerAlice(t)
	env.srv.maxUpload = 1024
	big := strings.Repeat("x", 4096)

	rec := env.do(multipartRequest(t, http.MethodPost, "/api/v1/register",
		map[string]string{"name": "Bob", "email": "b@x.com", "password": "pw"}, big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Avatar is too large", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/v1/login", map[string]string{"email": "b@x.com", "password": "pw"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no account created")

	rec = env.do(multipartRequest(t, http.MethodPut, "/api/v1/updateprofile", map[string]string{"name": "Alicia"}, big), cookie)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, env.images.deleted, "old avatar kept")

	entries, err := os.ReadDir(env.uploads.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing spooled")
}

func TestUpdatePassword(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.registerAlice(t)

	rec := env.do(jsonRequest(t, http.MethodPut, "/api/v1/updatepassword", map[string]string{"oldPassword": "bad", "newPassword": "pw2"}), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid Old Password", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPut, "/api/v1/updatepassword", map[string]string{"oldPassword": "pw1"}), cookie)
	assert.Equal(t, "Please enter all fields", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPut, "/api/v1/updatepassword", map[string]string{"oldPassword": "pw1", "newPassword": "pw2"}), cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password Updated Successfully", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/v1/login", map[string]string{"email": "a@x.com", "password": "pw2"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	env.registerAlice(t)

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/v1/forgetpassword", map[string]string{"email": "z@x.com"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User does not exist", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/v1/forgetpassword", map[string]string{"email": "a@x.com"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OTP sent to email a@x.com", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPut, "/api/v1/resetpassword", map[string]any{"otp": 1, "newPassword": "pw2"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Otp Invalid or has been expired", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPut, "/api/v1/resetpassword", map[string]any{"otp": "482913"}))
	assert.Equal(t, "Please enter all fields", decode(t, rec).Message)

	rec = env.do(jsonRequest(t, http.MethodPut, "/api/v1/resetpassword", map[string]any{"otp": 482913, "newPassword": "pw2"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Password Changed Successfully", decode(t, rec).Message)

	last := env.mailer.mails[len(env.mailer.mails)-1]
	assert.Equal(t, "a@x.com|Request for Reseting Password|Password Changed Successfully", last)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/v1/login", map[string]string{"email": "a@x.com", "password": "pw2"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
