package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/compopedia/compopedia/internal/auth"
	"github.com/compopedia/compopedia/internal/handler"
	"github.com/compopedia/compopedia/internal/imaging"
	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/render"
	"github.com/compopedia/compopedia/internal/repository/sqlite"
	"github.com/compopedia/compopedia/internal/service"
	"github.com/compopedia/compopedia/web"
)

// testUserHeader stands in for the session middleware: its value becomes
// the caller id.
const testUserHeader = "X-Test-User"

type testApp struct {
	db       *sqlite.DB
	router   http.Handler
	accounts *service.AuthService
	images   *service.ImageService
	github   *fakeGitHub
}

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.test/authorize?state=" + state
}

func (f *fakeGitHub) Exchange(ctx context.Context, code string) (*auth.GitHubUser, error) {
	return f.user, f.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := newTestLogger()

	db, err := sqlite.New(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	accounts := service.NewAuthService(db, tokens, auth.NewPasswordServiceWithCost(bcrypt.MinCost), logger)
	images := service.NewImageService(db, imaging.NewPool(imaging.NewProcessor(), 2, logger), logger)
	catalog := service.NewCatalogService(db, db, logger)
	components := service.NewComponentService(db, service.NewUploadDir(t.TempDir()), logger)

	gh := &fakeGitHub{}
	authH := handler.NewAuthHandler(accounts, gh, true, logger)
	compH := handler.NewComponentHandler(catalog, components, logger)
	imgH := handler.NewImageHandler(images, logger)
	pageH, err := handler.NewPageHandler(catalog, render.New(logger), web.Templates, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get(testUserHeader); id != "" {
				r = r.WithContext(auth.WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/", pageH.HandleList)
	r.Get("/components/{id}", pageH.HandleDetail)
	r.Get("/images/{id}", imgH.HandleGet)
	r.Get("/auth/github/login", authH.HandleGitHubLogin)
	r.Get("/auth/github/callback", authH.HandleGitHubCallback)
	r.Post("/api/auth/register", authH.HandleRegister)
	r.Post("/api/auth/login", authH.HandleLogin)
	r.Post("/api/auth/logout", authH.HandleLogout)
	r.Get("/api/me", authH.HandleMe)
	r.Put("/api/me/profile", authH.HandleUpdateProfile)
	r.Get("/api/me/components", compH.HandleMine)
	r.Get("/api/components", compH.HandleList)
	r.Get("/api/components/{id}", compH.HandleGet)
	r.Post("/api/components", compH.HandleCreate)
	r.Put("/api/components/{id}", compH.HandleUpdate)
	r.Delete("/api/components/{id}", compH.HandleDelete)
	r.Get("/api/categories", compH.HandleCategories)
	r.Post("/api/upload", imgH.HandleUpload)

	return &testApp{db: db, router: r, accounts: accounts, images: images, github: gh}
}

// do sends a request as userID ("" for anonymous).
func (a *testApp) do(t *testing.T, method, target, userID, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) doJSON(t *testing.T, method, target, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, method, target, userID, "application/json", bytes.NewBufferString(body))
}

func (a *testApp) createUser(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := a.accounts.Register(context.Background(), service.RegisterInput{Name: "Tester", Email: email, Password: "secret1"})
	require.NoError(t, err)
	return u
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartFile builds a form with data in the "file" field.
func multipartFile(t *testing.T, field, filename, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func (a *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}
