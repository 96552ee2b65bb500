package settlement

import (
	"context"
	"fmt"
)

// Directory resolves a member's account id on the settlement network.
// Account provisioning happens outside this service; the directory only maps
// platform users onto already-provisioned accounts.
type Directory interface {
	UserAccount(ctx context.Context, userID uint64) (string, error)
}

// PrefixDirectory derives account ids deterministically from user ids. It is
// the default wiring for deployments where accounts follow the platform
// naming convention.
type PrefixDirectory struct {
	Prefix string
}

func (d PrefixDirectory) UserAccount(_ context.Context, userID uint64) (string, error) {
	p := d.Prefix
	if p == "" {
		p = "user"
	}
	return fmt.Sprintf("%s-%d", p, userID), nil
}
