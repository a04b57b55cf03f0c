package cssrs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-companion/internal/crisis"
)

func TestService_FullScreening(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemorySessionStore(), nil)

	q, err := svc.Start(ctx, "conv-1", "user-1", crisis.RiskHigh)
	require.NoError(t, err)
	require.Equal(t, 1, q.Number)

	for n := 1; n < QuestionCount; n++ {
		progress, err := svc.Answer(ctx, "conv-1", n, AnswerNo)
		require.NoError(t, err)
		require.NotNil(t, progress.NextQuestion)
		assert.Equal(t, n+1, progress.NextQuestion.Number)
		assert.Nil(t, progress.Verdict)
	}

	progress, err := svc.Answer(ctx, "conv-1", QuestionCount, AnswerYes)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, progress.State)
	require.NotNil(t, progress.Verdict)
	assert.Equal(t, crisis.RiskImminent, progress.Verdict.FinalRiskLevel)
	assert.True(t, progress.Verdict.ShouldAlert)

	active, err := svc.Active(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, active, "completed session is discarded")
}

func TestService_StartIsNoOpWhileInProgress(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemorySessionStore(), nil)

	_, err := svc.Start(ctx, "conv-1", "user-1", crisis.RiskModerate)
	require.NoError(t, err)
	_, err = svc.Answer(ctx, "conv-1", 1, AnswerYes)
	require.NoError(t, err)

	q, err := svc.Start(ctx, "conv-1", "user-1", crisis.RiskImminent)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Number)

	session, err := svc.Active(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, crisis.RiskModerate, session.TriggerRisk)
	assert.Len(t, session.Responses, 1)
}

func TestService_RejectsOutOfOrderAndMissingSession(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemorySessionStore(), nil)

	_, err := svc.Answer(ctx, "nope", 1, AnswerNo)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = svc.Start(ctx, "conv-1", "user-1", crisis.RiskHigh)
	require.NoError(t, err)
	_, err = svc.Answer(ctx, "conv-1", 2, AnswerNo)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	session, err := svc.Active(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, session.Responses, "rejected answer must not be recorded")
}

func TestService_ConcludeEarly(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemorySessionStore(), nil)

	_, err := svc.Start(ctx, "conv-1", "user-1", crisis.RiskHigh)
	require.NoError(t, err)
	for n, a := range []Answer{AnswerNo, AnswerNo, AnswerYes} {
		_, err := svc.Answer(ctx, "conv-1", n+1, a)
		require.NoError(t, err)
	}

	verdict, err := svc.Conclude(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, crisis.RiskHigh, verdict.FinalRiskLevel)
	assert.True(t, verdict.ShouldAlert)

	_, err = svc.Conclude(ctx, "conv-1")
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestRedisSessionStore_RoundTripWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisSessionStore(client, time.Hour)
	ctx := context.Background()

	missing, err := store.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, nil, WithClock(func() time.Time { return started }))
	_, err = svc.Start(ctx, "conv-1", "user-1", crisis.RiskModerate)
	require.NoError(t, err)
	_, err = svc.Answer(ctx, "conv-1", 1, AnswerYes)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, mr.TTL("cssrs:session:conv-1"))

	session, err := store.Get(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, []Response{{QuestionNumber: 1, Answer: AnswerYes}}, session.Responses)
	assert.True(t, session.StartedAt.Equal(started))

	mr.FastForward(2 * time.Hour)
	expired, err := store.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func newMiniredisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
}

func TestService_ConcurrentAnswersOneWins(t *testing.T) {
	stores := map[string]func(*testing.T) SessionStore{
		"memory": func(*testing.T) SessionStore { return NewMemorySessionStore() },
		"redis":  func(t *testing.T) SessionStore { return newMiniredisStore(t) },
	}
	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := build(t)
			svc := NewService(store, nil)
			_, err := svc.Start(ctx, "c1", "user-1", crisis.RiskHigh)
			require.NoError(t, err)

			answers := []Answer{AnswerYes, AnswerNo}
			errs := make([]error, len(answers))
			var ready, done sync.WaitGroup
			ready.Add(1)
			for i, a := range answers {
				done.Add(1)
				go func(i int, a Answer) {
					defer done.Done()
					ready.Wait()
					_, errs[i] = svc.Answer(ctx, "c1", 1, a)
				}(i, a)
			}
			ready.Done()
			done.Wait()

			var winner Answer
			failures := 0
			for i, err := range errs {
				if err == nil {
					winner = answers[i]
					continue
				}
				failures++
				assert.ErrorIs(t, err, ErrOutOfOrder)
			}
			require.Equal(t, 1, failures)

			session, err := store.Get(ctx, "c1")
			require.NoError(t, err)
			require.NotNil(t, session)
			assert.Equal(t, []Response{{QuestionNumber: 1, Answer: winner}}, session.Responses)
		})
	}
}

func TestSessionStores_RejectStaleWrites(t *testing.T) {
	stores := map[string]func(*testing.T) SessionStore{
		"memory": func(*testing.T) SessionStore { return NewMemorySessionStore() },
		"redis":  func(t *testing.T) SessionStore { return newMiniredisStore(t) },
	}
	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := build(t)

			missing := &Session{ConversationID: "c1", Responses: []Response{{QuestionNumber: 1, Answer: AnswerYes}}}
			assert.ErrorIs(t, store.Advance(ctx, missing, 0), ErrNoSession)

			require.NoError(t, store.Save(ctx, &Session{ConversationID: "c1", Responses: []Response{}}))
			require.NoError(t, store.Advance(ctx, missing, 0))

			stale := &Session{ConversationID: "c1", Responses: []Response{{QuestionNumber: 1, Answer: AnswerNo}}}
			assert.ErrorIs(t, store.Advance(ctx, stale, 0), ErrStaleSession)
			assert.ErrorIs(t, store.Delete(ctx, "c1", 0), ErrStaleSession)

			got, err := store.Get(ctx, "c1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, AnswerYes, got.Responses[0].Answer)

			require.NoError(t, store.Delete(ctx, "c1", 1))
			assert.ErrorIs(t, store.Delete(ctx, "c1", 1), ErrNoSession)
		})
	}
}
