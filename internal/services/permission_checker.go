package services

import "context"

// AccessChecker abstracts role evaluation for services. The production
// implementation is permissions.Checker; tests may substitute fakes.
type AccessChecker interface {
	// Check evaluates a registered permission ID for the identity.
	Check(ctx context.Context, identityID, permissionID string) (bool, error)
	// ForInstitution reports whether the identity may manage credentials
	// issued under the institution.
	ForInstitution(ctx context.Context, identityID string, institutionSeq int64) (bool, error)
	// ForHandles reports whether the identity may read ciphertext handles of
	// a record held by holderID under the institution.
	ForHandles(ctx context.Context, identityID, holderID string, institutionSeq int64) (bool, error)
}
