package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, email, role, patientCode string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or reactivate an existing one with a new password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd, name, email, role, patientCode, pwd)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "%s %s saved (id %s)\n", usr.Role, usr.Email, usr.ID)
			if usr.IsPatient() {
				_, _ = fmt.Fprintf(cli.out, "patient code: %s\n", usr.PatientCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "the user's name")
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	cmd.Flags().StringVar(&role, "role", user.RolePatient, "patient | caretaker")
	cmd.Flags().StringVar(&patientCode, "patient-code", "", "the code of the patient a caretaker looks after")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(cmd *cobra.Command, name, email, role, patientCode, pwd string) (user.User, error) {
	ctx := cmd.Context()
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case err == nil:
		usr.IsActive = true
		if err = usr.SetPassword(pwd); err != nil {
			return user.User{}, errors.Wrap(err, "setting password")
		}
		return cli.usrRepo.UpdateUser(ctx, usr)
	case errors.Cause(err) != user.ErrNotFound:
		return user.User{}, errors.Wrap(err, "finding user by email")
	}

	switch role {
	case user.RolePatient:
		np := user.NewPatient{Name: name, Email: email, Password: pwd, PasswordConfirm: pwd}
		if err = np.Validate(cli.validate, cli.usrSvc); err != nil {
			return user.User{}, err
		}
		return cli.usrSvc.RegisterPatient(ctx, np)
	case user.RoleCaretaker:
		nc := user.NewCaretaker{Name: name, Email: email, Password: pwd, PasswordConfirm: pwd, PatientCode: patientCode}
		if err = nc.Validate(cli.validate, cli.usrSvc); err != nil {
			return user.User{}, err
		}
		return cli.usrSvc.RegisterCaretaker(ctx, nc)
	default:
		return user.User{}, errors.Errorf("unknown role %q", role)
	}
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd, email, pwd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) resetPassword(cmd *cobra.Command, email, pwd string) error {
	ctx := cmd.Context()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}
