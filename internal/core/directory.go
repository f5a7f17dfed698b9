package core

import (
	"context"
	"strings"

	"wastelink/pkg/domain"
)

// Directory manages customer and collector accounts. It shares the store and
// observability hooks of the Service that created it.
type Directory struct {
	*backend
}

// RegisterAccountInput carries the fields of a new account.
type RegisterAccountInput struct {
	Role      Role
	Name      string
	Email     string
	Phone     string
	Address   string
	City      string
	Latitude  *float64
	Longitude *float64
	// Prices is only accepted for collectors.
	Prices map[Material]float64
}

// ProfileUpdate lists the account fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name      *string
	Email     *string
	Phone     *string
	Address   *string
	City      *string
	Latitude  *float64
	Longitude *float64
	// Prices replaces the whole price list when non-nil.
	Prices map[Material]float64
}

// RegisterAccount creates an active account. Emails are unique ignoring case.
func (d *Directory) RegisterAccount(ctx context.Context, input RegisterAccountInput) (Account, error) {
	var created Account
	err := d.run(ctx, "register_account", EntityAccount, "", func(ctx context.Context) (string, error) {
		name := strings.TrimSpace(input.Name)
		email := strings.TrimSpace(input.Email)
		if name == "" {
			return "", domain.InvalidInput("account name is required")
		}
		if email == "" {
			return "", domain.InvalidInput("account email is required")
		}
		err := d.transact(ctx, func(tx Transaction) error {
			if err := requireUniqueEmail(tx.Snapshot(), email, ""); err != nil {
				return err
			}
			var err error
			created, err = tx.CreateAccount(Account{
				Role:      input.Role,
				Name:      name,
				Email:     email,
				Phone:     strings.TrimSpace(input.Phone),
				Address:   strings.TrimSpace(input.Address),
				City:      strings.TrimSpace(input.City),
				Latitude:  input.Latitude,
				Longitude: input.Longitude,
				Prices:    input.Prices,
				Active:    true,
			})
			return err
		})
		return created.ID, err
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

// UpdateProfile applies the non-nil fields of update to the account.
func (d *Directory) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (Account, error) {
	var updated Account
	err := d.run(ctx, "update_profile", EntityAccount, id, func(ctx context.Context) (string, error) {
		return id, d.transact(ctx, func(tx Transaction) error {
			if update.Email != nil {
				if strings.TrimSpace(*update.Email) == "" {
					return domain.InvalidInput("account email is required")
				}
				if err := requireUniqueEmail(tx.Snapshot(), *update.Email, id); err != nil {
					return err
				}
			}
			var err error
			updated, err = tx.UpdateAccount(id, func(a *Account) error {
				applyProfile(a, update)
				if a.Name == "" {
					return domain.InvalidInput("account name is required")
				}
				return nil
			})
			return err
		})
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

func applyProfile(a *Account, update ProfileUpdate) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&a.Name, update.Name)
	setString(&a.Email, update.Email)
	setString(&a.Phone, update.Phone)
	setString(&a.Address, update.Address)
	setString(&a.City, update.City)
	if update.Latitude != nil {
		a.Latitude = update.Latitude
	}
	if update.Longitude != nil {
		a.Longitude = update.Longitude
	}
	if update.Prices != nil {
		a.Prices = update.Prices
	}
}

// Deactivate clears the account's active flag. Deactivating twice is a no-op.
func (d *Directory) Deactivate(ctx context.Context, id string) (Account, error) {
	var updated Account
	err := d.run(ctx, "deactivate_account", EntityAccount, id, func(ctx context.Context) (string, error) {
		return id, d.transact(ctx, func(tx Transaction) error {
			current, ok := tx.Snapshot().FindAccount(id)
			if !ok {
				return domain.NotFound(EntityAccount, id)
			}
			if !current.Active {
				updated = current
				return nil
			}
			var err error
			updated, err = tx.UpdateAccount(id, func(a *Account) error {
				a.Active = false
				return nil
			})
			return err
		})
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

// GetAccount returns an account by id.
func (d *Directory) GetAccount(ctx context.Context, id string) (Account, error) {
	var found Account
	err := d.run(ctx, "get_account", EntityAccount, "", func(ctx context.Context) (string, error) {
		return id, d.store.View(ctx, func(view TransactionView) error {
			a, ok := view.FindAccount(id)
			if !ok {
				return domain.NotFound(EntityAccount, id)
			}
			found = a
			return nil
		})
	})
	if err != nil {
		return Account{}, err
	}
	return found, nil
}

// AccountExists reports whether an account with id is registered.
func (d *Directory) AccountExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := d.store.View(ctx, func(view TransactionView) error {
		_, exists = view.FindAccount(id)
		return nil
	})
	return exists, err
}

// IsCollector reports whether id names an active collector.
func (d *Directory) IsCollector(ctx context.Context, id string) (bool, error) {
	var collector bool
	err := d.store.View(ctx, func(view TransactionView) error {
		a, ok := view.FindAccount(id)
		collector = ok && a.IsCollector()
		return nil
	})
	return collector, err
}

// ActiveAccountsByRole lists active accounts of role in registration order.
func (d *Directory) ActiveAccountsByRole(ctx context.Context, role Role) ([]Account, error) {
	var out []Account
	err := d.run(ctx, "list_accounts", EntityAccount, "", func(ctx context.Context) (string, error) {
		if !role.Valid() {
			return "", domain.InvalidInput("account role %q is not one of customer, collector", role)
		}
		return "", d.store.View(ctx, func(view TransactionView) error {
			out = view.ListAccounts(domain.AccountFilter{Role: role, ActiveOnly: true})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func requireUniqueEmail(view TransactionView, email, selfID string) error {
	email = strings.TrimSpace(email)
	for _, a := range view.ListAccounts(domain.AccountFilter{}) {
		if a.ID != selfID && strings.EqualFold(a.Email, email) {
			return &domain.Error{Kind: domain.KindConflict, Message: "email " + email + " is already registered"}
		}
	}
	return nil
}
