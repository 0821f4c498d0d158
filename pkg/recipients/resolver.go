package recipients

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
)

// Resolver computes the destination user set for a notification request by
// merging every RecipientSettings element against subscription state.
type Resolver struct {
	dir      Directory
	cache    *poolCache
	retry    RetryPolicy
	pageSize int
	log      *zap.Logger
}

func NewResolver(dir Directory, retry RetryPolicy, cacheTTL time.Duration, pageSize int, log *zap.Logger) *Resolver {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Resolver{
		dir:      dir,
		cache:    newPoolCache(cacheTTL),
		retry:    retry,
		pageSize: pageSize,
		log:      log,
	}
}

// RecipientUsers resolves the union of the recipient subsets described by
// settings. subscribed holds the usernames subscribed to the event type; it
// is only consulted for settings that do not ignore user preferences.
//
// An exhausted or terminal directory failure fails the whole resolution; a
// partial result is never returned silently.
func (r *Resolver) RecipientUsers(ctx context.Context, accountID, orgID string, settings []RecipientSettings, subscribed map[string]bool) (map[string]User, error) {
	result := map[string]User{}
	for _, s := range settings {
		users, err := r.recipientsForSettings(ctx, orgID, s, subscribed)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			result[u.Username] = u
		}
	}
	return result, nil
}

func (r *Resolver) recipientsForSettings(ctx context.Context, orgID string, s RecipientSettings, subscribed map[string]bool) ([]User, error) {
	pool, err := r.fetchPool(ctx, orgID, s)
	if err != nil {
		return nil, err
	}

	if len(s.Users) > 0 {
		allowed := make(map[string]bool, len(s.Users))
		for _, username := range s.Users {
			allowed[username] = true
		}
		filtered := pool[:0:0]
		for _, u := range pool {
			if allowed[u.Username] {
				filtered = append(filtered, u)
			}
		}
		pool = filtered
	}

	if s.IgnoreUserPreferences {
		return pool, nil
	}
	filtered := pool[:0:0]
	for _, u := range pool {
		if subscribed[u.Username] {
			filtered = append(filtered, u)
		}
	}
	return filtered, nil
}

func (r *Resolver) fetchPool(ctx context.Context, orgID string, s RecipientSettings) ([]User, error) {
	if s.GroupID != nil {
		key := fmt.Sprintf("%s|admins=%t|group=%s", orgID, s.OnlyAdmins, s.GroupID)
		groupID := *s.GroupID
		return r.cache.get(key, func() ([]User, error) {
			return r.fetchAll(ctx, "group_users", func(offset int) ([]User, error) {
				return r.dir.GroupUsers(ctx, orgID, s.OnlyAdmins, groupID, offset, r.pageSize)
			})
		})
	}
	key := fmt.Sprintf("%s|admins=%t", orgID, s.OnlyAdmins)
	return r.cache.get(key, func() ([]User, error) {
		return r.fetchAll(ctx, "users", func(offset int) ([]User, error) {
			return r.dir.Users(ctx, orgID, s.OnlyAdmins, offset, r.pageSize)
		})
	})
}

// fetchAll pages through the directory until a short page is returned, with
// each page fetch individually retried.
func (r *Resolver) fetchAll(ctx context.Context, kind string, page func(offset int) ([]User, error)) ([]User, error) {
	timer := prometheus.NewTimer(metrics.RecipientsFetchDuration.WithLabelValues(kind))
	defer timer.ObserveDuration()

	var all []User
	for offset := 0; ; offset += r.pageSize {
		users, err := r.fetchPage(ctx, page, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, users...)
		if len(users) < r.pageSize {
			return all, nil
		}
	}
}

func (r *Resolver) fetchPage(ctx context.Context, page func(offset int) ([]User, error), offset int) ([]User, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		users, err := page(offset)
		if err == nil {
			return users, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		metrics.RecipientsFetchFailuresTotal.Inc()
		if attempt == r.retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry.Backoff(attempt)):
		}
	}
	r.log.Warn("users fetching from external service failed",
		zap.Int("attempts", r.retry.MaxAttempts),
		zap.Error(lastErr))
	return nil, fmt.Errorf("directory fetch failed after %d attempts: %w", r.retry.MaxAttempts, lastErr)
}
