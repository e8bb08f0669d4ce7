//go:build darwin

package config

import "os/exec"

// keychainGet reads a generic password from the login keychain.
func keychainGet(service, account string) ([]byte, error) {
	return exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
}
