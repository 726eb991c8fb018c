package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradeboard/internal/core"
)

func table(t *testing.T, count int64) core.Table {
	t.Helper()
	tbl, err := core.NewTable(core.Record{Division: core.Primary, Class: "P1", Grade: core.GradeA, Count: count})
	require.NoError(t, err)
	return tbl
}

func TestNewSessionUsesDefaultDataset(t *testing.T) {
	s := NewStore(10, time.Hour)
	sess := s.New()
	_, err := uuid.Parse(sess.ID)
	require.NoError(t, err)
	assert.False(t, sess.Uploaded)

	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)
}

func TestReplaceThenFailKeepsTable(t *testing.T) {
	s := NewStore(10, time.Hour)
	id := s.New().ID

	first := table(t, 5)
	s.Replace(id, first, "first.csv")

	sess := s.Fail(id, errors.New("missing column Count"))
	assert.True(t, sess.Uploaded)
	assert.Equal(t, "first.csv", sess.Source)
	assert.Equal(t, first.Records(), sess.Table.Records())
	assert.Equal(t, "missing column Count", sess.LastError)

	sess = s.Replace(id, table(t, 9), "second.csv")
	assert.Empty(t, sess.LastError)
	assert.Equal(t, int64(9), sess.Table.Records()[0].Count)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := NewStore(10, time.Hour)
	a, b := s.New().ID, s.New().ID
	s.Replace(a, table(t, 1), "a.csv")

	got, _ := s.Get(b)
	assert.False(t, got.Uploaded)
	assert.Equal(t, 0, got.Table.Len())
}

func TestReset(t *testing.T) {
	s := NewStore(10, time.Hour)
	id := s.New().ID
	s.Replace(id, table(t, 1), "a.csv")
	sess := s.Reset(id)
	assert.False(t, sess.Uploaded)
	assert.Equal(t, id, sess.ID)
}

func TestMaxSessionsEvicts(t *testing.T) {
	s := NewStore(2, time.Hour)
	first := s.New().ID
	s.New()
	s.New()
	_, ok := s.Get(first)
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestEnsureSetsCookieOnce(t *testing.T) {
	s := NewStore(10, time.Hour)

	rec := httptest.NewRecorder()
	sess := s.Ensure(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, sess.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	again := s.Ensure(rec, req)
	assert.Equal(t, sess.ID, again.ID)
	assert.Empty(t, rec.Result().Cookies())
}

func TestEnsureRejectsForgedCookie(t *testing.T) {
	s := NewStore(10, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-uuid"})
	rec := httptest.NewRecorder()
	sess := s.Ensure(rec, req)
	assert.NotEqual(t, "not-a-uuid", sess.ID)
	assert.Len(t, rec.Result().Cookies(), 1)
}
