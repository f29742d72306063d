package security

import (
	"fmt"
	"sort"
	"time"

	"github.com/pgElephant/ramd/internal/common"
	"github.com/pgElephant/ramd/internal/cryptox"
	"github.com/pgElephant/ramd/internal/server/models"
)

// MaxUsers bounds the credential registry.
const MaxUsers = 100

// AdminUsername is the identity the admin token resolves to.
const AdminUsername = "admin"

// Identity is the owner of a presented token.
type Identity struct {
	Username string
	Role     models.Role
}

// SaltSize is the width of the random per-user password salt.
const SaltSize = 16

// Seams for tests that exercise entropy failure.
var (
	newToken     = common.MakeToken
	newSalt      = func() ([]byte, error) { return common.RandomBytes(SaltSize) }
	hashPassword = cryptox.HashPassword
)

// Registry stores users, their password hashes and issued tokens.
// It is not safe for concurrent use; the Gatekeeper serializes access.
type Registry struct {
	capacity   int
	adminToken []byte
	users      map[string]*models.User
}

// NewRegistry takes ownership of adminToken.
func NewRegistry(adminToken []byte, capacity int) *Registry {
	return &Registry{
		capacity:   capacity,
		adminToken: adminToken,
		users:      make(map[string]*models.User),
	}
}

// newUser validates the credentials, hashes the password and issues a
// token. It touches no shared state, so the Gatekeeper runs it without
// holding its lock.
func newUser(username, password string, role models.Role, now time.Time) (*models.User, string, error) {
	if err := validateCredential("username", username, MaxUsernameLength, false); err != nil {
		return nil, "", err
	}
	if err := validateCredential("password", password, MaxPasswordLength, true); err != nil {
		return nil, "", err
	}
	if role < models.RoleNone || role > models.RoleAdmin {
		return nil, "", fmt.Errorf("%w: unknown role %d", common.ErrValidation, role)
	}

	salt, err := newSalt()
	if err != nil {
		return nil, "", fmt.Errorf("%w: password salt: %v", common.ErrInternal, err)
	}
	token, err := newToken()
	if err != nil {
		return nil, "", fmt.Errorf("%w: issue token: %v", common.ErrInternal, err)
	}

	u := &models.User{
		Username:     username,
		Salt:         salt,
		PasswordHash: []byte(hashPassword([]byte(password), salt)),
		Token:        []byte(token),
		Role:         role,
		CreatedAt:    now,
		Active:       true,
	}
	return u, token, nil
}

// insert adds u, failing without side effects on a duplicate username or
// a full registry.
func (r *Registry) insert(u *models.User) error {
	if _, ok := r.users[u.Username]; ok {
		return fmt.Errorf("%w: %s", common.ErrUserExists, u.Username)
	}
	if len(r.users) >= r.capacity {
		return fmt.Errorf("%w: registry holds %d users", common.ErrCapacity, r.capacity)
	}
	r.users[u.Username] = u
	return nil
}

// AddUser registers a new active user and returns the issued token.
func (r *Registry) AddUser(username, password string, role models.Role, now time.Time) (string, error) {
	u, token, err := newUser(username, password, role, now)
	if err != nil {
		return "", err
	}
	if err := r.insert(u); err != nil {
		wipeUser(u)
		return "", err
	}
	return token, nil
}

// Resolve maps a static token to its owner. Every stored token is
// compared in constant time so the scan does not reveal which, if any,
// matched. Inactive users do not resolve.
func (r *Registry) Resolve(token string) (Identity, bool) {
	if token == "" {
		return Identity{}, false
	}
	presented := []byte(token)

	var (
		id    Identity
		found bool
	)
	if cryptox.Equal(presented, r.adminToken) {
		id, found = Identity{Username: AdminUsername, Role: models.RoleAdmin}, true
	}
	for _, u := range r.users {
		if cryptox.Equal(presented, u.Token) && u.Active && !found {
			id, found = Identity{Username: u.Username, Role: u.Role}, true
		}
	}
	return id, found
}

// ValidateToken reports whether token is the admin token or the token of
// an active user.
func (r *Registry) ValidateToken(token string) bool {
	_, ok := r.Resolve(token)
	return ok
}

// lookup returns the identity of an active user.
func (r *Registry) lookup(username string) (Identity, bool) {
	u, ok := r.users[username]
	if !ok || !u.Active {
		return Identity{}, false
	}
	return Identity{Username: u.Username, Role: u.Role}, true
}

// credentials returns copies of the salt and stored hash of an active user.
func (r *Registry) credentials(username string) (salt, hash []byte, ok bool) {
	u, found := r.users[username]
	if !found || !u.Active {
		return nil, nil, false
	}
	return append([]byte(nil), u.Salt...), append([]byte(nil), u.PasswordHash...), true
}

// markLogin records a successful login and returns the user's token.
func (r *Registry) markLogin(username string, now time.Time) (string, bool) {
	u, ok := r.users[username]
	if !ok || !u.Active {
		return "", false
	}
	u.LastLogin = now
	return string(u.Token), true
}

// SetRole changes the role of an existing user.
func (r *Registry) SetRole(username string, role models.Role) error {
	if role < models.RoleNone || role > models.RoleAdmin {
		return fmt.Errorf("%w: unknown role %d", common.ErrValidation, role)
	}
	u, ok := r.users[username]
	if !ok {
		return fmt.Errorf("%w: user %s", common.ErrNotFound, username)
	}
	u.Role = role
	return nil
}

// SetActive enables or disables an existing user.
func (r *Registry) SetActive(username string, active bool) error {
	u, ok := r.users[username]
	if !ok {
		return fmt.Errorf("%w: user %s", common.ErrNotFound, username)
	}
	u.Active = active
	return nil
}

// Users lists all users sorted by username.
func (r *Registry) Users() []models.UserInfo {
	out := make([]models.UserInfo, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	return len(r.users)
}

// Wipe zeroes the admin token and every user's secrets, then forgets all
// users.
func (r *Registry) Wipe() {
	common.WipeByteArray(r.adminToken)
	r.adminToken = nil
	for name, u := range r.users {
		wipeUser(u)
		delete(r.users, name)
	}
}

func wipeUser(u *models.User) {
	common.WipeByteArray(u.Salt)
	common.WipeByteArray(u.PasswordHash)
	common.WipeByteArray(u.Token)
	u.Salt = nil
	u.PasswordHash = nil
	u.Token = nil
}
