package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/config"
	"github.com/courselane/course_platform/internal/hash"
	"github.com/courselane/course_platform/internal/ledger"
	"github.com/courselane/course_platform/internal/models"
	"github.com/courselane/course_platform/internal/token"
	"github.com/courselane/course_platform/internal/util"
	"github.com/courselane/course_platform/internal/validation"
)

const testWebhookSecret = "whsec_test_secret"

type stubMailer struct {
	fail bool
	sent []sentMail
}

type sentMail struct {
	to, subject, body string
}

func (m *stubMailer) Send(to, subject, body string) error {
	if m.fail {
		return errors.New("smtp connection refused")
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type stubCheckout struct {
	sess *stripe.CheckoutSession
	err  error

	gotCourse *models.Course
	gotEmail  string
}

func (s *stubCheckout) CreateCheckoutSession(_ context.Context, course *models.Course, email string) (*stripe.CheckoutSession, error) {
	s.gotCourse = course
	s.gotEmail = email
	return s.sess, s.err
}

type testEnv struct {
	e      *echo.Echo
	db     *gorm.DB
	tokens *token.Service
	ledger *ledger.Ledger
	mailer *stubMailer

	auth      *AuthHandler
	users     *UserHandler
	courses   *CourseHandler
	purchases *PurchaseHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	e := echo.New()
	e.Validator = validation.New()

	tokens := &token.Service{Secret: []byte("test-secret"), TTL: time.Hour}
	led := &ledger.Ledger{DB: db}
	mailer := &stubMailer{}

	return &testEnv{
		e:      e,
		db:     db,
		tokens: tokens,
		ledger: led,
		mailer: mailer,
		auth: &AuthHandler{
			DB:              db,
			Tokens:          tokens,
			Mailer:          mailer,
			ResetURL:        "https://app.example.com/reset-password/",
			CookieExpiresIn: 1,
		},
		users:   &UserHandler{DB: db, Ledger: led},
		courses: &CourseHandler{DB: db, Ledger: led},
		purchases: &PurchaseHandler{
			DB:            db,
			Ledger:        led,
			WebhookSecret: testWebhookSecret,
		},
	}
}

// request builds an echo context for a direct handler call. body may be nil,
// a raw []byte or anything JSON-marshalable.
func (env *testEnv) request(method, target string, body any) (echo.Context, *httptest.ResponseRecorder) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		buf, _ := json.Marshal(b)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return env.e.NewContext(req, rec), rec
}

func (env *testEnv) createUser(t *testing.T, name, email, password, role string) *models.User {
	t.Helper()
	pwHash, err := hash.HashPassword(password)
	require.NoError(t, err)
	// Every production write path stores addresses normalized; the fixture
	// has to match or email lookups diverge from what is at rest.
	user := models.User{Name: name, Email: util.NormalizeEmail(email), Role: role, PasswordHash: pwHash, Active: true}
	require.NoError(t, env.db.Create(&user).Error)
	return &user
}

// createCourse seeds a course with one module and one clip so a published
// course keeps its published flag through Normalize.
func (env *testEnv) createCourse(t *testing.T, instructorID uint, price float64, published bool) *models.Course {
	t.Helper()
	course := models.Course{
		Title:        "test course",
		Summary:      "summary",
		Author:       "test author",
		InstructorID: instructorID,
		Category:     "go",
		Language:     "english",
		Price:        price,
		Published:    published,
		Modules: []models.Module{{
			Title: "module 1",
			Clips: []models.Clip{{Title: "clip 1", PlayerURL: "https://cdn.example.com/clip1.m3u8"}},
		}},
	}
	course.Normalize()
	require.NoError(t, env.db.Create(&course).Error)
	return &course
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func requireHTTPError(t *testing.T, err error, code int, message string) {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, code, he.Code)
	if message != "" {
		require.Equal(t, message, he.Message)
	}
}

func (env *testEnv) countPurchases(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.db.Model(&models.Purchase{}).Count(&count).Error)
	return count
}
