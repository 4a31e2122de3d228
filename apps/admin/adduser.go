package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(phone, email, name, pwd string, isAdmin bool) error {
	var usr user.User
	var err error
	ctx := context.Background()
	phone = core.NormalizePhone(phone)
	email = core.CleanString(email, true /* lower */)

	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{PhoneOrEmail: []string{phone, email}}); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Phone:     phone,
			Email:     email,
			Role:      user.RoleStudent,
			CreatedAt: time.Now().UTC(),
		}
	}
	if name = core.CleanString(name); name != "" {
		usr.FullName = name
	}
	if email != "" {
		usr.Email = email
	}
	if isAdmin {
		usr.Role = user.RoleAdmin
	}
	usr.SetActive(true)
	usr.UpdatedAt = time.Now().UTC()
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
