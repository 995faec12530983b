package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bbpipe/src/config"
	"bbpipe/src/credentials"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save a Bitbucket username and app password to the keychain",
	Long: `Prompts for a Bitbucket username and app password and stores them in the
system keychain under the profile named by BB_PROFILE (default "default").`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := v.GetString(config.KeyProfile)
		keys := credentials.NewProfileKeys(profile)

		fd := int(os.Stdin.Fd())
		readPassword := func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(cmd.ErrOrStderr())
			return string(b), err
		}

		user, pass, err := promptLogin(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr(), readPassword)
		if err != nil {
			return err
		}

		if err := keys.SetUsername(user); err != nil {
			return err
		}
		if err := keys.SetPassword(pass); err != nil {
			return err
		}
		log.Info("Credentials saved for profile '%s'.", keys.Profile)
		return nil
	},
}

// errPasswordMismatch is returned when the confirmation differs.
var errPasswordMismatch = errors.New("passwords do not match")

// promptLogin asks for a username on in and a password, twice, through
// readPassword.
func promptLogin(in *bufio.Reader, out io.Writer, readPassword func() (string, error)) (string, string, error) {
	fmt.Fprint(out, "Username: ")
	user, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && user != "") {
		return "", "", fmt.Errorf("failed to read username: %w", err)
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return "", "", errors.New("username must not be empty")
	}

	fmt.Fprint(out, "App password: ")
	pass, err := readPassword()
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprint(out, "Repeat for confirmation: ")
	confirm, err := readPassword()
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}
	if pass != confirm {
		return "", "", errPasswordMismatch
	}
	if pass == "" {
		return "", "", errors.New("password must not be empty")
	}
	return user, pass, nil
}
