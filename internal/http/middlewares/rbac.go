package middlewares

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRoleConfig = errors.New("invalid required-role configuration")

// validateRoleConfig rejects blank role names and collapses duplicates.
// No roles at all is valid and means any authenticated caller passes.
func validateRoleConfig(roles []string) ([]string, error) {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))

	for i, r := range roles {
		if strings.TrimSpace(r) == "" {
			return nil, fmt.Errorf("%w: role #%d is blank", ErrInvalidRoleConfig, i)
		}
		if r != strings.TrimSpace(r) {
			return nil, fmt.Errorf("%w: role %q has surrounding whitespace", ErrInvalidRoleConfig, r)
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	return out, nil
}
