// Copyright 2025 Keystone
// SPDX-License-Identifier: Apache-2.0

package prompt

import "context"

// Store persists prompt templates. Lookup methods return (nil, nil) when no
// row matches; the resolver cascades to the next precedence rung.
type Store interface {
	// Create inserts a new template version. The store assigns ID and the
	// next version number for the (org, feature) pair.
	Create(ctx context.Context, t *Template) error

	// Activate marks the given version active and deactivates every other
	// version for the (org, feature) pair in one transaction.
	Activate(ctx context.Context, orgID, feature string, version int) error

	// ActiveByName returns the active template with the given name.
	ActiveByName(ctx context.Context, orgID, feature, name string) (*Template, error)

	// ActiveDefault returns the active template flagged as the default.
	ActiveDefault(ctx context.Context, orgID, feature string) (*Template, error)

	// Active returns the newest active template regardless of name.
	Active(ctx context.Context, orgID, feature string) (*Template, error)

	// Newest returns the highest version regardless of active state.
	Newest(ctx context.Context, orgID, feature string) (*Template, error)
}
