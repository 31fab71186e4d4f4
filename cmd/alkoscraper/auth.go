package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"alkoscraper/pkg/auth"
	"alkoscraper/pkg/ui"
)

var stdin = bufio.NewReader(os.Stdin)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored proxy credentials",
	Long: `Manage named proxy accounts.

Accounts are stored in the system keyring when one is available, otherwise
in an encrypted file in the config directory. Select one for a crawl with
--proxy-account or proxy.credentials_account.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store proxy credentials under a name",
	Example: `  alkoscraper auth login
  alkoscraper auth login work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <name>",
	Short: "Remove a stored account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts with masked passwords",
	RunE:  runList,
}

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain the proxy list format and credential sources",
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowProxySetupGuide(cmd.OutOrStdout())
	},
}

var logoutAll bool

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(guideCmd)

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored account")
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	input, err := stdin.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		answer, _ := prompt(fmt.Sprintf("Account '%s' already exists. Replace it? (y/N): ", name))
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
	}

	username, err := prompt("Proxy username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	fmt.Print("Proxy password: ")
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	account := &auth.Account{
		Name:         name,
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	ui.PrintSuccess("Account saved: " + name)
	fmt.Printf("\nUse it with:\n  alkoscraper crawl --proxy-account %s\n", name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if logoutAll {
		answer, _ := prompt("Remove ALL accounts? This cannot be undone! (yes/N): ")
		if answer != "yes" {
			return nil
		}
		if err := manager.DeleteAll(); err != nil {
			return fmt.Errorf("failed to remove accounts: %w", err)
		}
		ui.PrintSuccess("All accounts removed")
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("account name required, or pass --all")
	}
	if err := manager.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'alkoscraper auth login' to add one")
		return nil
	}

	for _, account := range accounts {
		s := auth.SanitizeAccount(account)
		ui.PrintInfo(s.Name, fmt.Sprintf("%s / %s (modified %s)",
			s.Username, s.Password, s.LastModified.Format("2006-01-02 15:04")))
	}
	return nil
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	input, err := stdin.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
