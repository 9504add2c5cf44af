package auth

import (
	"context"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher runs bcrypt on a bounded number of goroutines so a burst of
// logins cannot starve the rest of the server.
type PasswordHasher struct {
	cost  int
	sem   *semaphore.Weighted
	dummy []byte
}

func NewPasswordHasher(cost, workers int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	// Compared against when the account does not exist, so both branches
	// of a login cost one bcrypt run.
	dummy, err := bcrypt.GenerateFromPassword([]byte("picshare-dummy-password"), cost)
	if err != nil {
		return nil, err
	}
	return &PasswordHasher{
		cost:  cost,
		sem:   semaphore.NewWeighted(int64(workers)),
		dummy: dummy,
	}, nil
}

func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. The error is only non-nil
// when ctx ends before a worker slot frees up.
func (h *PasswordHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// CompareDummy burns the same work as Compare against a hash nobody owns.
func (h *PasswordHasher) CompareDummy(ctx context.Context, password string) {
	_, _ = h.Compare(ctx, string(h.dummy), password)
}
