package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaignctl/internal/credentials"
)

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the operator API token",
	Long:  `Store the operator API token in the local credential store. Without --token the token is read from stdin.`,
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored operator API token",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show whether a token is stored",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "API token (read from stdin when empty)")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func openStore() (*credentials.BoltStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := credentials.OpenBoltStore(cfg.Credentials.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return store, nil
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("token is empty")
	}
	return token, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	token := strings.TrimSpace(loginToken)
	if token == "" {
		fmt.Fprint(os.Stderr, "Token: ")
		var err error
		if token, err = readToken(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(cmd.Context(), token); err != nil {
		return err
	}
	fmt.Println("Token saved")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Invalidate(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Token removed")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	savedAt, err := store.SavedAt(cmd.Context())
	if err != nil {
		return err
	}
	if savedAt.IsZero() {
		fmt.Println("Not logged in")
		return nil
	}
	fmt.Printf("Logged in since %s\n", savedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}
