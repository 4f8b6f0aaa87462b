package redis

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/newroots/portfolio/internal/models"
	"github.com/newroots/portfolio/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rStore *Redis
	rdis   *miniredis.Miniredis

	ctx = context.Background()

	mockAccount = models.Account{
		Email:      "owner@example.com",
		Password:   "$2a$10$notarealhashnotarealhashnotarealhashnotarea",
		FullName:   "Site Owner",
		IsVerified: true,
		IsAdmin:    true,
		CreatedAt:  1700000000000,
	}
	mockOTP = models.OTP{
		Email:       "owner@example.com",
		Code:        "042137",
		Attempts:    0,
		MaxAttempts: 5,
		IssuedAt:    1700000000000,
		ExpiresAt:   1700000600000,
	}
)

func init() {
	rd, err := miniredis.Run()
	if err != nil {
		log.Println(err)
	}
	rdis = rd

	port, _ := strconv.Atoi(rd.Port())
	rStore = New(Conf{
		Host: rd.Host(),
		Port: port,
	})
}

func setup(t *testing.T) *Redis {
	rdis.FlushDB()
	t.Cleanup(func() {
		rdis.FlushDB()
	})
	return rStore
}

func TestAccountRoundtrip(t *testing.T) {
	rStore := setup(t)

	_, err := rStore.Account(ctx, mockAccount.Email)
	assert.Equal(t, store.ErrNotExist, err, "account should not exist yet")

	require.NoError(t, rStore.PutAccount(ctx, mockAccount), "error writing account")

	out, err := rStore.Account(ctx, mockAccount.Email)
	require.NoError(t, err, "error reading account")
	assert.Equal(t, mockAccount, out, "returned account doesn't match")
}

func TestAccountUpdates(t *testing.T) {
	rStore := setup(t)
	require.NoError(t, rStore.PutAccount(ctx, mockAccount))

	at := time.UnixMilli(1700000999000)
	require.NoError(t, rStore.TouchLogin(ctx, mockAccount.Email, at))
	require.NoError(t, rStore.SetPassword(ctx, mockAccount.Email, "newhash"))

	out, err := rStore.Account(ctx, mockAccount.Email)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), out.LastLogin, "last login not stamped")
	assert.Equal(t, "newhash", out.Password, "password hash not replaced")
}

func TestAccountUpdateMissing(t *testing.T) {
	rStore := setup(t)

	assert.Equal(t, store.ErrNotExist, rStore.SetPassword(ctx, "nobody@example.com", "hash"))
	assert.Equal(t, store.ErrNotExist, rStore.SetVerified(ctx, "nobody@example.com", time.Now()))
	assert.Equal(t, store.ErrNotExist, rStore.TouchLogin(ctx, "nobody@example.com", time.Now()))
}

func TestSetVerified(t *testing.T) {
	rStore := setup(t)

	a := mockAccount
	a.IsVerified = false
	require.NoError(t, rStore.PutAccount(ctx, a))

	require.NoError(t, rStore.SetVerified(ctx, a.Email, time.Now()))

	out, err := rStore.Account(ctx, a.Email)
	require.NoError(t, err)
	assert.True(t, out.IsVerified, "account should be verified")
}

func TestOTPRoundtrip(t *testing.T) {
	rStore := setup(t)

	_, err := rStore.OTP(ctx, mockOTP.Email)
	assert.Equal(t, store.ErrNotExist, err, "OTP should not exist yet")

	require.NoError(t, rStore.SetOTP(ctx, mockOTP, 20*time.Minute))

	out, err := rStore.OTP(ctx, mockOTP.Email)
	require.NoError(t, err)
	assert.Equal(t, mockOTP, out, "returned OTP doesn't match")
}

func TestOTPSupersede(t *testing.T) {
	rStore := setup(t)
	require.NoError(t, rStore.SetOTP(ctx, mockOTP, 20*time.Minute))

	// Bump attempts, then overwrite. The new record must start clean.
	_, err := rStore.IncrAttempts(ctx, mockOTP.Email)
	require.NoError(t, err)

	second := mockOTP
	second.Code = "918273"
	require.NoError(t, rStore.SetOTP(ctx, second, 20*time.Minute))

	out, err := rStore.OTP(ctx, mockOTP.Email)
	require.NoError(t, err)
	assert.Equal(t, "918273", out.Code, "old code should be superseded")
	assert.Equal(t, 0, out.Attempts, "attempts should reset on supersede")
}

func TestOTPAttempts(t *testing.T) {
	rStore := setup(t)
	require.NoError(t, rStore.SetOTP(ctx, mockOTP, 20*time.Minute))

	n, err := rStore.IncrAttempts(ctx, mockOTP.Email)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = rStore.IncrAttempts(ctx, mockOTP.Email)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOTPReclaim(t *testing.T) {
	rStore := setup(t)
	require.NoError(t, rStore.SetOTP(ctx, mockOTP, 2*time.Second))

	rdis.FastForward(3 * time.Second)

	_, err := rStore.OTP(ctx, mockOTP.Email)
	assert.Equal(t, store.ErrNotExist, err, "OTP should be reclaimed after storage TTL")
}

func TestOTPDelete(t *testing.T) {
	rStore := setup(t)
	require.NoError(t, rStore.SetOTP(ctx, mockOTP, 20*time.Minute))
	require.NoError(t, rStore.DeleteOTP(ctx, mockOTP.Email))

	_, err := rStore.OTP(ctx, mockOTP.Email)
	assert.Equal(t, store.ErrNotExist, err, "OTP should not exist after delete")
}

func TestContentCRUD(t *testing.T) {
	rStore := setup(t)

	item := models.ContentItem{
		ID:        "p1",
		Section:   "projects",
		Slug:      "portfolio-site",
		Data:      json.RawMessage(`{"title":"Portfolio Site"}`),
		CreatedAt: 1700000000000,
	}
	require.NoError(t, rStore.PutContent(ctx, item))

	out, err := rStore.ContentItem(ctx, "projects", "p1")
	require.NoError(t, err)
	assert.Equal(t, item, out)

	list, err := rStore.Content(ctx, "projects")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	at := time.UnixMilli(1700000500000)
	require.NoError(t, rStore.UpdateContent(ctx, "projects", "p1", json.RawMessage(`{"title":"v2"}`), at))

	out, err = rStore.ContentItem(ctx, "projects", "p1")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"title":"v2"}`), out.Data)
	assert.Equal(t, at.UnixMilli(), out.UpdatedAt)

	require.NoError(t, rStore.DeleteContent(ctx, "projects", "p1"))
	_, err = rStore.ContentItem(ctx, "projects", "p1")
	assert.Equal(t, store.ErrNotExist, err)

	list, err = rStore.Content(ctx, "projects")
	require.NoError(t, err)
	assert.Len(t, list, 0, "section index should be empty after delete")
}

func TestContentMissing(t *testing.T) {
	rStore := setup(t)

	err := rStore.UpdateContent(ctx, "projects", "nope", json.RawMessage(`{}`), time.Now())
	assert.Equal(t, store.ErrNotExist, err)

	err = rStore.DeleteContent(ctx, "projects", "nope")
	assert.Equal(t, store.ErrNotExist, err)
}

func TestMessages(t *testing.T) {
	rStore := setup(t)

	first := models.ContactMessage{ID: "m1", Name: "A", Email: "a@example.com", Subject: "hi", Message: "first message", Status: "new", CreatedAt: 1700000000000}
	second := models.ContactMessage{ID: "m2", Name: "B", Email: "b@example.com", Subject: "yo", Message: "second message", Status: "new", CreatedAt: 1700000100000}
	require.NoError(t, rStore.PutMessage(ctx, first))
	require.NoError(t, rStore.PutMessage(ctx, second))

	out, err := rStore.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "m2", out[0].ID, "messages should list newest first")

	m, err := rStore.Message(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, first, m)
}

func TestMessageStatus(t *testing.T) {
	rStore := setup(t)

	m := models.ContactMessage{ID: "m1", Name: "A", Email: "a@example.com", Subject: "hi", Message: "first message", Status: "new", CreatedAt: 1700000000000}
	require.NoError(t, rStore.PutMessage(ctx, m))

	require.NoError(t, rStore.SetMessageStatus(ctx, "m1", "read"))

	out, err := rStore.Message(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "read", out.Status)
	assert.Equal(t, m.Message, out.Message, "status update must not touch the rest of the record")

	assert.Equal(t, store.ErrNotExist, rStore.SetMessageStatus(ctx, "nope", "read"))
}

func TestMessageDelete(t *testing.T) {
	rStore := setup(t)

	m := models.ContactMessage{ID: "m1", Name: "A", Email: "a@example.com", Subject: "hi", Message: "first message", Status: "new", CreatedAt: 1700000000000}
	require.NoError(t, rStore.PutMessage(ctx, m))

	require.NoError(t, rStore.DeleteMessage(ctx, "m1"))

	_, err := rStore.Message(ctx, "m1")
	assert.Equal(t, store.ErrNotExist, err)

	out, err := rStore.Messages(ctx)
	require.NoError(t, err)
	assert.Len(t, out, 0, "index should be empty after delete")

	assert.Equal(t, store.ErrNotExist, rStore.DeleteMessage(ctx, "m1"))
}

func TestWindow(t *testing.T) {
	rStore := setup(t)

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rStore.WindowAppend(ctx, "login:1.2.3.4", now.Add(time.Duration(i)*time.Second), time.Minute))
	}

	// Nothing pruned yet.
	n, oldest, err := rStore.WindowCount(ctx, "login:1.2.3.4", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, now.UnixMilli(), oldest.UnixMilli(), "oldest entry mismatch")

	// Prune the first two.
	n, oldest, err = rStore.WindowCount(ctx, "login:1.2.3.4", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, now.Add(2*time.Second).UnixMilli(), oldest.UnixMilli())

	// Empty window.
	n, oldest, err = rStore.WindowCount(ctx, "login:1.2.3.4", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, oldest.IsZero(), "oldest should be zero for an empty window")
}
