package access

import (
	"context"
	"net/mail"
	"strings"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Users is the accessor for technicians.
type Users struct {
	base
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a new user. Duplicate emails fail with a database error
// wrapping types.ErrConstraint.
func (u *Users) Create(ctx context.Context, email, displayName string) types.Result[*types.User] {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return types.Fail[*types.User](types.ValidationError("email", "Please enter a valid email address."))
	}

	tbl, aerr := u.table(types.UsersTable)
	if aerr != nil {
		return types.Fail[*types.User](aerr)
	}
	user := &types.User{Email: email, DisplayName: strings.TrimSpace(displayName), CreatedAt: u.now()}
	if _, err := tbl.Insert(ctx, user); err != nil {
		aerr := u.dbError("creating user", err)
		if IsConflict(aerr) {
			aerr.UserMessage = "A user with that email already exists."
			aerr.Retryable = false
		}
		return types.Fail[*types.User](aerr)
	}
	return types.Ok(user)
}

// Get returns the user with id.
func (u *Users) Get(ctx context.Context, id int64) types.Result[*types.User] {
	tbl, aerr := u.table(types.UsersTable)
	if aerr != nil {
		return types.Fail[*types.User](aerr)
	}
	rec, err := tbl.Get(ctx, id)
	if err != nil {
		return types.Fail[*types.User](u.dbError("getting user", err))
	}
	return types.Ok(rec.(*types.User))
}

// GetByEmail returns the user with email, or nil Data when absent.
func (u *Users) GetByEmail(ctx context.Context, email string) types.Result[*types.User] {
	tbl, aerr := u.table(types.UsersTable)
	if aerr != nil {
		return types.Fail[*types.User](aerr)
	}
	recs, err := tbl.Query(ctx, types.Query{
		Filters: []types.Filter{types.Eq("email", NormalizeEmail(email))},
		Limit:   1,
	})
	if err != nil {
		return types.Fail[*types.User](u.dbError("looking up user", err))
	}
	if len(recs) == 0 {
		return types.Ok[*types.User](nil)
	}
	return types.Ok(recs[0].(*types.User))
}

// GetAll lists every user in creation order.
func (u *Users) GetAll(ctx context.Context) types.Result[[]*types.User] {
	tbl, aerr := u.table(types.UsersTable)
	if aerr != nil {
		return types.Fail[[]*types.User](aerr)
	}
	recs, err := tbl.Query(ctx, types.Query{})
	if err != nil {
		return types.Fail[[]*types.User](u.dbError("listing users", err))
	}
	users := make([]*types.User, len(recs))
	for i, rec := range recs {
		users[i] = rec.(*types.User)
	}
	return types.Ok(users)
}
