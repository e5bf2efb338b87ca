package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/errs"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

type MockRepositoryLister struct{ mock.Mock }

func (m *MockRepositoryLister) FirstPageURL() string {
	return m.Called().String(0)
}

func (m *MockRepositoryLister) ListRepositories(ctx context.Context, pageURL string) (*RepositoryPage, error) {
	args := m.Called(ctx, pageURL)
	if page := args.Get(0); page != nil {
		return page.(*RepositoryPage), args.Error(1)
	}
	return nil, args.Error(1)
}

func pageURL(i int) string { return fmt.Sprintf("https://api.test/repositories/acme?page=%d", i) }

func repos(names ...string) []models.RepositoryDescriptor {
	out := make([]models.RepositoryDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, models.RepositoryDescriptor{Name: n, Slug: n})
	}
	return out
}

// setupPages registra uma página por elemento de sizes, cada uma esperada uma única vez.
func setupPages(api *MockRepositoryLister, sizes []int) []string {
	api.On("FirstPageURL").Return(pageURL(1))
	var all []string
	for i, size := range sizes {
		names := make([]string, 0, size)
		for j := 0; j < size; j++ {
			names = append(names, fmt.Sprintf("repo-%d-%d", i+1, j))
		}
		all = append(all, names...)
		next := ""
		if i < len(sizes)-1 {
			next = pageURL(i + 2)
		}
		api.On("ListRepositories", mock.Anything, pageURL(i+1)).
			Return(&RepositoryPage{Repositories: repos(names...), Next: next}, nil).Once()
	}
	return all
}

func TestEnumerator_VisitsEveryRepositoryOnce(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
	}{
		{"single page", []int{3}},
		{"empty workspace", []int{0}},
		{"uneven pages", []int{100, 7, 42}},
		{"empty page in the middle", []int{2, 0, 5, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockRepositoryLister)
			want := setupPages(api, tt.sizes)

			var got []string
			count, err := NewEnumerator(api).Enumerate(context.Background(), func(d models.RepositoryDescriptor) error {
				got = append(got, d.Name)
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, len(want), count)
			assert.ElementsMatch(t, want, got)
			api.AssertNumberOfCalls(t, "ListRepositories", len(tt.sizes))
			api.AssertExpectations(t)
		})
	}
}

func TestEnumerator_DeduplicatesAcrossPages(t *testing.T) {
	api := new(MockRepositoryLister)
	api.On("FirstPageURL").Return(pageURL(1))
	api.On("ListRepositories", mock.Anything, pageURL(1)).
		Return(&RepositoryPage{Repositories: repos("a", "b"), Next: pageURL(2)}, nil).Once()
	api.On("ListRepositories", mock.Anything, pageURL(2)).
		Return(&RepositoryPage{Repositories: repos("b", "c")}, nil).Once()

	var got []string
	count, err := NewEnumerator(api).Enumerate(context.Background(), func(d models.RepositoryDescriptor) error {
		got = append(got, d.Name)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestEnumerator_NeverRequestsConsumedPage(t *testing.T) {
	api := new(MockRepositoryLister)
	api.On("FirstPageURL").Return(pageURL(1))
	api.On("ListRepositories", mock.Anything, pageURL(1)).
		Return(&RepositoryPage{Repositories: repos("a"), Next: pageURL(2)}, nil).Once()
	api.On("ListRepositories", mock.Anything, pageURL(2)).
		Return(&RepositoryPage{Repositories: repos("b"), Next: pageURL(1)}, nil).Once()

	_, err := NewEnumerator(api).Enumerate(context.Background(), func(models.RepositoryDescriptor) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "paginação em loop")
	api.AssertNumberOfCalls(t, "ListRepositories", 2)
}

func TestEnumerator_AuthenticationFailureYieldsNothing(t *testing.T) {
	api := new(MockRepositoryLister)
	api.On("FirstPageURL").Return(pageURL(1))
	api.On("ListRepositories", mock.Anything, pageURL(1)).
		Return(nil, errs.New(errs.ErrAuthentication, "401"))

	yielded := 0
	count, err := NewEnumerator(api).Enumerate(context.Background(), func(models.RepositoryDescriptor) error {
		yielded++
		return nil
	})

	require.ErrorIs(t, err, errs.ErrAuthentication)
	assert.Zero(t, count)
	assert.Zero(t, yielded)
}

func TestEnumerator_YieldErrorStops(t *testing.T) {
	api := new(MockRepositoryLister)
	setupPages(api, []int{3, 3})
	stop := errors.New("parar")

	calls := 0
	_, err := NewEnumerator(api).Enumerate(context.Background(), func(models.RepositoryDescriptor) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})

	require.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
	api.AssertNumberOfCalls(t, "ListRepositories", 1)
}

func TestEnumerator_CanceledContext(t *testing.T) {
	api := new(MockRepositoryLister)
	api.On("FirstPageURL").Return(pageURL(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEnumerator(api).Enumerate(ctx, func(models.RepositoryDescriptor) error { return nil })

	require.ErrorIs(t, err, context.Canceled)
	api.AssertNotCalled(t, "ListRepositories", mock.Anything, mock.Anything)
}
