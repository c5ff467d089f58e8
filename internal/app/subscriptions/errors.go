package subscriptions

import (
	"errors"
	"fmt"

	"github.com/dalemusser/alerthub/internal/app/followercount"
	followstore "github.com/dalemusser/alerthub/internal/app/store/follows"
	groupstore "github.com/dalemusser/alerthub/internal/app/store/groups"
	organizationstore "github.com/dalemusser/alerthub/internal/app/store/organizations"
	userstore "github.com/dalemusser/alerthub/internal/app/store/users"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrUnauthenticated means no valid session remained after one restore
	// attempt, or the session belongs to a different user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStoreUnavailable wraps backend and network failures. The local
	// state has been reverted; the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound means the referenced organization, group or user does not
	// exist. Not retryable.
	ErrNotFound = errors.New("not found")
)

// Classify maps a store error onto the error taxonomy. The original error
// stays reachable through errors.Is / errors.As.
func Classify(err error) error { return classify(err) }

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, followstore.ErrUserNotFound),
		errors.Is(err, organizationstore.ErrNotFound),
		errors.Is(err, groupstore.ErrNotFound),
		errors.Is(err, userstore.ErrNotFound),
		errors.Is(err, followercount.ErrNotFound),
		errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
