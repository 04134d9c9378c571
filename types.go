package oneflowauth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the organization role carried on every identity. The remote API
// emits exactly these three values; anything else fails validation.
type Role string

const (
	// RolePresidente is an exported constant used by the session library.
	RolePresidente Role = "PRESIDENTE"
	// RoleDiretor is an exported constant used by the session library.
	RoleDiretor Role = "DIRETOR"
	// RoleMembro is an exported constant used by the session library.
	RoleMembro Role = "MEMBRO"
)

// Valid reports whether r is one of the three roles the remote API emits.
func (r Role) Valid() bool {
	switch r {
	case RolePresidente, RoleDiretor, RoleMembro:
		return true
	}
	return false
}

// Sector is the organizational sector an identity belongs to.
type Sector struct {
	SectorID int `json:"sectorId"`
}

// Identity is the structured record describing the authenticated user. It is
// defined at the store boundary and validated on hydration and on every
// mutation response; the remote API's loosely typed payload never crosses
// into consumers unchecked.
type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	CPF       string `json:"cpf"`
	Telephone string `json:"telephone"`
	Role      Role   `json:"role"`
	ImageURL  string `json:"imageUrl"`
	Sector    Sector `json:"sector"`
}

// Validate checks the fields the rest of the library depends on. Optional
// profile fields (cpf, telephone, imageUrl) may be empty.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidIdentity)
	}
	if strings.TrimSpace(id.Email) == "" {
		return fmt.Errorf("%w: missing email", ErrInvalidIdentity)
	}
	if !id.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidIdentity, string(id.Role))
	}
	return nil
}

// DecodeIdentity is the one entry point for parsing a persisted or remote
// payload into a validated Identity.
func DecodeIdentity(data []byte) (Identity, error) {
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrCorruptSessionData, err)
	}
	if err := id.Validate(); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrCorruptSessionData, err)
	}
	return id, nil
}

// EncodeIdentity serializes an identity the way the durable mirror and the
// remote API expect it.
func EncodeIdentity(id Identity) ([]byte, error) {
	return json.Marshal(id)
}

// IdentityPatch is a shallow partial update of an Identity. Nil fields are
// preserved; set fields overwrite. It mirrors the remote API's partial
// profile-update payloads.
type IdentityPatch struct {
	Name      *string
	LastName  *string
	Email     *string
	CPF       *string
	Telephone *string
	Role      *Role
	ImageURL  *string
	Sector    *Sector
}

// ApplyTo merges the patch into a copy of base and returns it. The merge is
// shallow: Sector is replaced as a whole when set.
func (p IdentityPatch) ApplyTo(base Identity) Identity {
	merged := base
	if p.Name != nil {
		merged.Name = *p.Name
	}
	if p.LastName != nil {
		merged.LastName = *p.LastName
	}
	if p.Email != nil {
		merged.Email = *p.Email
	}
	if p.CPF != nil {
		merged.CPF = *p.CPF
	}
	if p.Telephone != nil {
		merged.Telephone = *p.Telephone
	}
	if p.Role != nil {
		merged.Role = *p.Role
	}
	if p.ImageURL != nil {
		merged.ImageURL = *p.ImageURL
	}
	if p.Sector != nil {
		merged.Sector = *p.Sector
	}
	return merged
}

// IsZero reports whether the patch sets no fields at all.
func (p IdentityPatch) IsZero() bool {
	return p.Name == nil && p.LastName == nil && p.Email == nil &&
		p.CPF == nil && p.Telephone == nil && p.Role == nil &&
		p.ImageURL == nil && p.Sector == nil
}

// Session is the pairing of a bearer credential token and the authenticated
// user's identity record. Token and Identity are set together or not at all;
// the library never hands out a Session with only one half populated.
type Session struct {
	Token    string
	Identity Identity
}
