package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var summaryColumns = []string{"id", "conversation_id", "user_id", "summary", "key_topics", "message_count", "created_at"}

func TestPostgresStore_Insert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	mock.ExpectExec("INSERT INTO conversation_summaries").
		WithArgs("s1", "conv-1", "user-1", "text", []string{"sleep"}, 10, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock)
	err = store.Insert(context.Background(), Summary{
		ID: "s1", ConversationID: "conv-1", UserID: "user-1", Summary: "text",
		KeyTopics: []string{"sleep"}, MessageCount: 10, CreatedAt: created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Latest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	mock.ExpectQuery("SELECT id, conversation_id").
		WithArgs("conv-1").
		WillReturnRows(pgxmock.NewRows(summaryColumns).
			AddRow("s2", "conv-1", "user-1", "latest", []string{"work"}, 20, created))
	mock.ExpectQuery("SELECT id, conversation_id").
		WithArgs("conv-2").
		WillReturnRows(pgxmock.NewRows(summaryColumns))

	store := NewPostgresStore(mock)
	got, err := store.Latest(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "latest", got.Summary)
	assert.Equal(t, []string{"work"}, got.KeyTopics)

	none, err := store.Latest(context.Background(), "conv-2")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type countingStore struct {
	*InMemoryStore
	latestCalls int
}

func (s *countingStore) Latest(ctx context.Context, conversationID string) (*Summary, error) {
	s.latestCalls++
	return s.InMemoryStore.Latest(ctx, conversationID)
}

func TestCachedStore_WriteThroughAndReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backing := &countingStore{InMemoryStore: NewInMemoryStore()}
	store := NewCachedStore(backing, client, nil)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, Summary{ID: "s1", ConversationID: "conv-1", Summary: "cached"}))
	assert.True(t, mr.Exists("memory:summary:conv-1"))

	got, err := store.Latest(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Summary)
	assert.Zero(t, backing.latestCalls, "cache hit must not reach the backing store")

	require.NoError(t, backing.InMemoryStore.Insert(ctx, Summary{ID: "s2", ConversationID: "conv-2", Summary: "from db"}))
	got, err = store.Latest(ctx, "conv-2")
	require.NoError(t, err)
	assert.Equal(t, "from db", got.Summary)
	assert.Equal(t, 1, backing.latestCalls)

	raw, err := mr.Get("memory:summary:conv-2")
	require.NoError(t, err)
	var cached Summary
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, "s2", cached.ID)

	missing, err := store.Latest(ctx, "conv-3")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCachedStore_FallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	backing := NewInMemoryStore()
	require.NoError(t, backing.Insert(context.Background(), Summary{ConversationID: "conv-1", Summary: "db"}))
	store := NewCachedStore(backing, client, nil)
	mr.Close()

	got, err := store.Latest(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "db", got.Summary)
}

type fakeSQS struct {
	sent     []string
	deleted  []string
	received *sqs.ReceiveMessageOutput
	err      error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, aws.ToString(params.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.received, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue(t *testing.T) {
	fake := &fakeSQS{received: &sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{
		{MessageId: aws.String("m1"), Body: aws.String(`{"id":"j1"}`), ReceiptHandle: aws.String("r1")},
	}}}
	q := NewSQSQueue(fake, "https://sqs.local/summaries")
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "body"))
	assert.Equal(t, []string{"body"}, fake.sent)

	msgs, err := q.Receive(ctx, 5, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "r1", msgs[0].ReceiptHandle)

	require.NoError(t, q.Delete(ctx, "r1"))
	require.NoError(t, q.Delete(ctx, ""))
	assert.Equal(t, []string{"r1"}, fake.deleted)

	fake.err = errors.New("boom")
	assert.Error(t, q.Send(ctx, "body"))
}
