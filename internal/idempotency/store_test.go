package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIfNotExists_Get_MarkDone(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)
	ctx := context.Background()

	created, err := s.CreateIfNotExists(ctx, "ref-1", "ref-1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateIfNotExists(ctx, "ref-1", "ref-1")
	require.NoError(t, err)
	assert.False(t, created, "duplicate create must report an existing record")

	rec, err := s.Get(ctx, "ref-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "ref-1", rec.ExternalReference)
	assert.Empty(t, rec.OrderID)

	require.NoError(t, s.MarkDone(ctx, "ref-1", Completion{OrderID: "901", OrderPublicID: "1042", ResponseBody: `{"ok":true}`, ResponseStatus: 201}))

	item := mock.table["ref-1"]
	require.NotNil(t, item)
	st, _ := strAttr(item, "status")
	assert.Equal(t, StatusDone, st)
	rb, _ := strAttr(item, "response_body")
	assert.Equal(t, `{"ok":true}`, rb)

	rec, err = s.Get(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "901", rec.OrderID)
	assert.Equal(t, "1042", rec.OrderPublicID)
	assert.Equal(t, 201, rec.ResponseStatus)

	// same order again is fine
	require.NoError(t, s.MarkDone(ctx, "ref-1", Completion{OrderID: "901", ResponseStatus: 201}))
}

func TestMarkDone_RejectsDifferentOrder(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 0)
	ctx := context.Background()

	_, err := s.CreateIfNotExists(ctx, "ref-2", "ref-2")
	require.NoError(t, err)
	require.NoError(t, s.MarkDone(ctx, "ref-2", Completion{OrderID: "a"}))

	err = s.MarkDone(ctx, "ref-2", Completion{OrderID: "b"})
	assert.ErrorIs(t, err, ErrConditionFailed)

	err = s.MarkDone(ctx, "missing", Completion{OrderID: "a"})
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMarkFailed(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()

	_, err := s.CreateIfNotExists(ctx, "ref-3", "")
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, "ref-3", "platform 500"))

	item := mock.table["ref-3"]
	st, _ := strAttr(item, "status")
	assert.Equal(t, StatusFailed, st)
	n, _ := strAttr(item, "note")
	assert.Equal(t, "platform 500", n)

	// a failed record can still be finalized
	require.NoError(t, s.MarkDone(ctx, "ref-3", Completion{OrderID: "77"}))
	assert.ErrorIs(t, s.MarkFailed(ctx, "ref-3", "late"), ErrConditionFailed)
}

func TestStore_PropagatesClientErrors(t *testing.T) {
	mock := newSimpleMock()
	mock.failWith = errors.New("throughput exceeded")
	s := NewStore(mock, "idempotency-table", time.Hour)

	_, err := s.CreateIfNotExists(context.Background(), "k", "")
	assert.ErrorIs(t, err, mock.failWith)
	_, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, mock.failWith)
	assert.NotErrorIs(t, s.MarkDone(context.Background(), "k", Completion{}), ErrConditionFailed)
}

func TestGet_NotFound(t *testing.T) {
	s := NewStore(newSimpleMock(), "t", time.Hour)
	rec, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCreateIfNotExists_SetsTTL(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "t", 2*time.Hour)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	_, err := s.CreateIfNotExists(context.Background(), "k", "")
	require.NoError(t, err)

	var rec IdempotencyRecord
	require.NoError(t, attributevalue.UnmarshalMap(mock.table["k"], &rec))
	assert.Equal(t, fixed.Add(2*time.Hour).Unix(), rec.ExpiresAt)
	_, isNum := mock.table["k"]["expires_at"].(*types.AttributeValueMemberN)
	assert.True(t, isNum)
}

func TestMemoryStore_MatchesStoreSemantics(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	created, err := m.CreateIfNotExists(ctx, "k", "ref")
	require.NoError(t, err)
	assert.True(t, created)
	created, _ = m.CreateIfNotExists(ctx, "k", "ref")
	assert.False(t, created)

	require.NoError(t, m.MarkFailed(ctx, "k", "boom"))
	rec, _ := m.Get(ctx, "k")
	assert.Equal(t, StatusFailed, rec.Status)

	require.NoError(t, m.MarkDone(ctx, "k", Completion{OrderID: "1"}))
	assert.ErrorIs(t, m.MarkDone(ctx, "k", Completion{OrderID: "2"}), ErrConditionFailed)
	assert.ErrorIs(t, m.MarkFailed(ctx, "k", "late"), ErrConditionFailed)
	assert.ErrorIs(t, m.MarkDone(ctx, "other", Completion{OrderID: "1"}), ErrConditionFailed)

	rec, _ = m.Get(ctx, "k")
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, "1", rec.OrderID)
}
