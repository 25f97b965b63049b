package support_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportdesk/supportdesk/internal/resilience"
	"github.com/supportdesk/supportdesk/internal/support"
)

func validSubmission() support.Submission {
	return support.Submission{
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		Topic:   "Billing",
		Message: "My invoice shows the wrong amount.",
		Urgency: "normal",
	}
}

func newTestService(repo support.Repository, now func() time.Time) *support.Service {
	return support.NewService(support.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		Now:        now,
	})
}

func TestService_Submit_Valid(t *testing.T) {
	repo := support.NewInMemoryRepository()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	svc := newTestService(repo, func() time.Time { return fixed })

	req, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "Ada Lovelace", req.Name)
	assert.Equal(t, support.UrgencyNormal, req.Urgency)
	assert.True(t, req.CreatedAt.Equal(fixed.Truncate(time.Millisecond)))

	stored, err := repo.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, req.ID, stored[0].ID)
}

func TestService_Submit_TrimsAndDefaultsUrgency(t *testing.T) {
	svc := newTestService(support.NewInMemoryRepository(), nil)

	sub := validSubmission()
	sub.Name = "  Grace  "
	sub.Urgency = ""

	req, err := svc.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "Grace", req.Name)
	assert.Equal(t, support.UrgencyNormal, req.Urgency)
}

func TestService_Submit_UniqueIDsAndMonotonicTimestamps(t *testing.T) {
	repo := support.NewInMemoryRepository()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	// The clock jumps backwards halfway through.
	times := []time.Time{base, base.Add(time.Second), base.Add(-time.Hour), base.Add(2 * time.Second)}
	i := 0
	svc := newTestService(repo, func() time.Time {
		ts := times[i%len(times)]
		i++
		return ts
	})

	seen := make(map[string]bool)
	var last time.Time
	for n := 0; n < len(times); n++ {
		req, err := svc.Submit(context.Background(), validSubmission())
		require.NoError(t, err)

		assert.False(t, seen[req.ID], "id %s reused", req.ID)
		seen[req.ID] = true
		assert.False(t, req.CreatedAt.Before(last), "createdAt went backwards")
		last = req.CreatedAt
	}
}

func TestService_Submit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*support.Submission)
		fields map[string]string
	}{
		{
			name:   "short name",
			mutate: func(s *support.Submission) { s.Name = "A" },
			fields: map[string]string{"name": "name must be at least 2 characters"},
		},
		{
			name:   "whitespace name counts as empty",
			mutate: func(s *support.Submission) { s.Name = "   " },
			fields: map[string]string{"name": "name is required"},
		},
		{
			name:   "bad email",
			mutate: func(s *support.Submission) { s.Email = "not-an-email" },
			fields: map[string]string{"email": "email must be a valid email address"},
		},
		{
			name:   "short topic",
			mutate: func(s *support.Submission) { s.Topic = "ab" },
			fields: map[string]string{"topic": "topic must be at least 3 characters"},
		},
		{
			name:   "short message",
			mutate: func(s *support.Submission) { s.Message = "too short" },
			fields: map[string]string{"message": "message must be at least 10 characters"},
		},
		{
			name:   "unknown urgency",
			mutate: func(s *support.Submission) { s.Urgency = "critical" },
			fields: map[string]string{"urgency": "urgency must be one of: normal, urgent"},
		},
		{
			name: "several fields",
			mutate: func(s *support.Submission) {
				s.Name = ""
				s.Email = ""
				s.Message = "short"
			},
			fields: map[string]string{
				"name":    "name is required",
				"email":   "email is required",
				"message": "message must be at least 10 characters",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := support.NewInMemoryRepository()
			svc := newTestService(repo, nil)

			sub := validSubmission()
			tt.mutate(&sub)

			req, err := svc.Submit(context.Background(), sub)
			assert.Nil(t, req)

			var verr *support.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, verr.Fields)

			stored, err := repo.ReadAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, stored, "invalid submissions must not be stored")
		})
	}
}

func TestService_Submit_RepositoryError(t *testing.T) {
	repo := support.NewInMemoryRepository()
	repo.AppendErr = errors.New("disk full")
	svc := newTestService(repo, nil)

	_, err := svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.AppendErr)
}

func TestService_Submit_StoreUnavailableWhenCircuitOpen(t *testing.T) {
	repo := support.NewInMemoryRepository()
	repo.AppendErr = errors.New("disk full")

	cfg := resilience.DefaultCircuitBreakerConfig("test-queue")
	cfg.Timeout = time.Minute
	svc := support.NewService(support.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		Guard:      resilience.NewGuard(cfg),
	})

	for i := 0; i < 5; i++ {
		_, err := svc.Submit(context.Background(), validSubmission())
		require.Error(t, err)
	}

	_, err := svc.Submit(context.Background(), validSubmission())
	assert.ErrorIs(t, err, support.ErrStoreUnavailable)
	assert.True(t, svc.Guard().Health().IsUnhealthy())
}

func TestService_List(t *testing.T) {
	repo := support.NewInMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	svc := newTestService(repo, func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	})

	for i := 0; i < 5; i++ {
		sub := validSubmission()
		sub.Topic = fmt.Sprintf("Topic %d", i)
		if i%2 == 0 {
			sub.Urgency = "urgent"
		}
		_, err := svc.Submit(context.Background(), sub)
		require.NoError(t, err)
	}

	t.Run("newest first", func(t *testing.T) {
		result, err := svc.List(context.Background(), support.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 5, result.Total)
		require.Len(t, result.Items, 5)
		assert.Equal(t, "Topic 4", result.Items[0].Topic)
		assert.Equal(t, "Topic 0", result.Items[4].Topic)
	})

	t.Run("urgency filter", func(t *testing.T) {
		result, err := svc.List(context.Background(), support.ListOptions{Urgency: support.UrgencyUrgent})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		for _, item := range result.Items {
			assert.Equal(t, support.UrgencyUrgent, item.Urgency)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		result, err := svc.List(context.Background(), support.ListOptions{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, result.Total)
		require.Len(t, result.Items, 2)
		assert.Equal(t, "Topic 2", result.Items[0].Topic)
	})

	t.Run("offset past end", func(t *testing.T) {
		result, err := svc.List(context.Background(), support.ListOptions{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
		assert.Equal(t, 5, result.Total)
	})
}
