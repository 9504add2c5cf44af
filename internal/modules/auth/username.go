package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"picshare/internal/pkg/validator"
)

const maxUsernameProbes = 1000

// BaseUsername derives a username candidate from a display name, falling
// back to the e-mail local part: lower case ASCII letters and digits only.
func BaseUsername(displayName, email string) string {
	base := sanitizeUsername(displayName)
	if len(base) < validator.UsernameMinLen {
		local, _, _ := strings.Cut(email, "@")
		base = sanitizeUsername(local)
	}
	if len(base) < validator.UsernameMinLen {
		base = "user"
	}
	return truncate(base, validator.UsernameMaxLen)
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// AvailableUsername probes base, base1, base2, ... and returns the first
// candidate exists reports as free. Long bases are shortened so the suffix
// still fits.
func AvailableUsername(ctx context.Context, base string, exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < maxUsernameProbes; i++ {
		candidate := base
		if i > 0 {
			suffix := strconv.Itoa(i)
			candidate = truncate(base, validator.UsernameMaxLen-len(suffix)) + suffix
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free username for base %q after %d probes", base, maxUsernameProbes)
}
