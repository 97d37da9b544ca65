package main

import (
	"github.com/spf13/cobra"

	"chatprobe/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open a browser window and wait for you to sign in",
	Long: `Opens the chat in a visible browser on the persistent profile and waits
for you to complete sign-in. The session is kept in the profile directory so
later headless runs start signed in.`,
	Annotations: map[string]string{modeAnnotation: string(config.ModeLogin)},
	RunE:        runProbe,
}

var authCheckCmd = &cobra.Command{
	Use:   "auth-check",
	Short: "Check whether the saved session is still signed in",
	Long: `Loads the chat headlessly on the persistent profile. Exits 0 when the chat
loads and 2 when it redirects to a sign-in page.`,
	Annotations: map[string]string{modeAnnotation: string(config.ModeAuthCheck)},
	RunE:        runProbe,
}
