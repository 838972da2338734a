package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/credvault/credvault/internal/models"
)

// ErrIdentityNotFound indicates the caller identity is not registered.
var ErrIdentityNotFound = errors.New("permission checker: identity not found")

// Store resolves identities and institution administrators. It is injected so
// tests can substitute a fake instead of a database-backed implementation.
type Store interface {
	// Identity loads a registered identity by its ID. Implementations return
	// ErrIdentityNotFound for unknown identities.
	Identity(ctx context.Context, identityID string) (*models.Identity, error)
	// InstitutionAdmin returns the identity ID administering the institution
	// with the given sequence number.
	InstitutionAdmin(ctx context.Context, institutionSeq int64) (string, error)
}

// Checker evaluates identity permissions against the registry. Global admins
// supersede every role-gated check.
type Checker struct {
	store Store
}

// NewChecker constructs a permission checker backed by the provided store.
func NewChecker(store Store) (*Checker, error) {
	if store == nil {
		return nil, errors.New("permission checker: store is required")
	}
	return &Checker{store: store}, nil
}

// Check determines whether the identity has the specified permission,
// considering dependencies.
func (c *Checker) Check(ctx context.Context, identityID, permissionID string) (bool, error) {
	ctx = ensureContext(ctx)

	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return false, errors.New("permission checker: identity id is required")
	}
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return false, errors.New("permission checker: permission id is required")
	}

	identity, err := c.store.Identity(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("permission checker: load identity: %w", err)
	}

	if !identity.IsActive {
		return false, nil
	}

	if identity.IsAdmin {
		return true, nil
	}

	if _, ok := Get(permissionID); !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownPermission, permissionID)
	}

	granted, err := expandImplied(rolePermissions(identity))
	if err != nil {
		return false, err
	}

	dependencies, err := ResolveDependencies(permissionID)
	if err != nil {
		return false, err
	}

	for _, dep := range dependencies {
		if _, ok := granted[dep]; !ok {
			return false, nil
		}
	}

	_, ok := granted[permissionID]
	return ok, nil
}

// ForInstitution reports whether the identity may manage credentials issued
// under the institution: global admins always may, university admins only for
// the institution they administer.
func (c *Checker) ForInstitution(ctx context.Context, identityID string, institutionSeq int64) (bool, error) {
	ctx = ensureContext(ctx)

	identity, err := c.store.Identity(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("permission checker: load identity: %w", err)
	}

	if !identity.IsActive {
		return false, nil
	}
	if identity.IsAdmin {
		return true, nil
	}
	if !identity.IsUniversityAdmin {
		return false, nil
	}

	adminID, err := c.store.InstitutionAdmin(ctx, institutionSeq)
	if err != nil {
		return false, fmt.Errorf("permission checker: load institution admin: %w", err)
	}

	return adminID == identity.ID, nil
}

// ForHandles reports whether the identity may read the ciphertext handles of
// a record held by holderID under the given institution. Entitled are global
// admins, the institution's university admin, and the holder when a
// device-bound decrypt capability is registered.
func (c *Checker) ForHandles(ctx context.Context, identityID, holderID string, institutionSeq int64) (bool, error) {
	ctx = ensureContext(ctx)

	identity, err := c.store.Identity(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("permission checker: load identity: %w", err)
	}

	if !identity.IsActive {
		return false, nil
	}
	if identity.IsAdmin {
		return true, nil
	}

	if identity.ID == holderID {
		return identity.HasDecryptCapability(), nil
	}

	if !identity.IsUniversityAdmin {
		return false, nil
	}

	adminID, err := c.store.InstitutionAdmin(ctx, institutionSeq)
	if err != nil {
		return false, fmt.Errorf("permission checker: load institution admin: %w", err)
	}

	return adminID == identity.ID, nil
}

// Permissions returns the distinct permission IDs granted to the identity.
func (c *Checker) Permissions(ctx context.Context, identityID string) ([]string, error) {
	ctx = ensureContext(ctx)

	identity, err := c.store.Identity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("permission checker: load identity: %w", err)
	}

	if identity.IsAdmin {
		perms := GetAll()
		ids := make([]string, 0, len(perms))
		for id := range perms {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids, nil
	}

	granted, err := expandImplied(rolePermissions(identity))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(granted))
	for id := range granted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// rolePermissions maps the two role flags onto permission grants. Any active
// identity may view public records; university admins additionally hold the
// credential issuance, verification, and encrypted-read permissions.
func rolePermissions(identity *models.Identity) []string {
	granted := []string{"institution.view", "credential.view"}
	if identity.IsUniversityAdmin {
		granted = append(granted,
			"credential.create",
			"credential.verify",
			"credential.read_encrypted",
		)
	}
	return granted
}

func expandImplied(ids []string) (map[string]struct{}, error) {
	perms := make(map[string]struct{})

	var visit func(string) error
	visit = func(id string) error {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil
		}
		if _, exists := perms[id]; exists {
			return nil
		}

		def, ok := Get(id)
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownPermission, id)
		}

		perms[id] = struct{}{}
		for _, implied := range def.Implies {
			if err := visit(implied); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	return perms, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
