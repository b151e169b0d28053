package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/service"
)

type mockRenewer struct {
	mock.Mock
}

func (m *mockRenewer) RenewAll(ctx context.Context) (*service.RenewalResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RenewalResult), args.Error(1)
}

func TestRun_RenewsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	m := &mockRenewer{}
	m.On("RenewAll", mock.Anything).
		Return(&service.RenewalResult{Renewed: 2}, nil).
		Run(func(mock.Arguments) {
			calls++
			if calls == 2 {
				cancel()
			}
		})

	run(ctx, m, time.Millisecond)
	assert.Equal(t, 2, calls)
	m.AssertExpectations(t)
}

func TestRenew_ToleratesErrors(t *testing.T) {
	m := &mockRenewer{}
	m.On("RenewAll", mock.Anything).Return(nil, service.ErrNoCallbackURL).Once()
	m.On("RenewAll", mock.Anything).Return(&service.RenewalResult{Failed: 1, Errors: []string{"UCx: " + errors.New("rejected").Error()}}, nil).Once()

	renew(context.Background(), m)
	renew(context.Background(), m)
	m.AssertNumberOfCalls(t, "RenewAll", 2)
}
