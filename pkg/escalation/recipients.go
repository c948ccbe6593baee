package escalation

import (
	"context"
	"fmt"

	"golang.org/x/exp/maps"
)

// Roles consulted for the role-based notification actions. Deployments map
// these onto their own directory groups through the DirectoryResolver.
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

// resolveRecipients expands a rule's notification actions into a deduped
// recipient set. Resolution failures for one role are reported but do not
// block recipients gathered from the other sources.
func resolveRecipients(ctx context.Context, directory DirectoryResolver, actions RuleActions) ([]Recipient, []string) {
	byKey := map[string]Recipient{}
	var errs []string

	addUsers := func(users []User) {
		for _, u := range users {
			key := u.ID
			if key == "" {
				key = u.Email
			}
			if key == "" {
				continue
			}
			byKey[key] = Recipient{UserID: u.ID, Email: u.Email}
		}
	}

	if actions.NotifySupervisor {
		if directory == nil {
			errs = append(errs, "notify supervisor: no directory resolver configured")
		} else if users, err := directory.UsersByRole(ctx, RoleSupervisor); err != nil {
			errs = append(errs, fmt.Sprintf("resolve supervisors: %v", err))
		} else {
			addUsers(users)
		}
	}
	if actions.EscalateToManagement {
		if directory == nil {
			errs = append(errs, "escalate to management: no directory resolver configured")
		} else {
			for _, role := range []string{RoleManager, RoleAdmin} {
				users, err := directory.UsersByRole(ctx, role)
				if err != nil {
					errs = append(errs, fmt.Sprintf("resolve %ss: %v", role, err))
					continue
				}
				addUsers(users)
			}
		}
	}
	for _, email := range actions.EmailRecipients {
		if email == "" {
			continue
		}
		byKey[email] = Recipient{Email: email}
	}

	return maps.Values(byKey), errs
}
