package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Techno-coder/pmu/internal/config"
	"github.com/Techno-coder/pmu/internal/scrobbler"
	"github.com/Techno-coder/pmu/pkg/lastfm"
)

var authPassword bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with Last.fm",
	Long: `Authenticate with Last.fm to enable scrobbling.

By default this walks through the web authorization flow:
1. You'll be prompted for your Last.fm API key and secret
2. A browser URL will be printed for you to authorize pmu
3. After authorization, the session key is saved to your config file

With --password, you are asked for your Last.fm username and password
instead and a session is created directly. The password is not stored.

You can get API credentials from: https://www.last.fm/api/account/create`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)

	authCmd.Flags().BoolVar(&authPassword, "password", false, "Log in with username and password instead of the browser")
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("Last.fm Authentication")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("You can get API credentials from: https://www.last.fm/api/account/create")
	fmt.Println()

	if err := promptCredentials(reader, &cfg.LastFM); err != nil {
		return err
	}

	client, err := scrobbler.New(lastfm.Config{
		APIKey:    cfg.LastFM.APIKey,
		APISecret: cfg.LastFM.APISecret,
	})
	if err != nil {
		return err
	}

	var sessionKey string
	if authPassword {
		sessionKey, err = passwordLogin(ctx, reader, client)
	} else {
		sessionKey, err = webLogin(ctx, reader, client)
	}
	if err != nil {
		return err
	}

	cfg.LastFM.SessionKey = sessionKey
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("\n✓ Authentication successful!\n")
	fmt.Printf("✓ Session key saved to %s\n", filepath.Join(config.Dir(), "config.yaml"))
	fmt.Println("\nRestart the daemon (pmu stop) for scrobbling to take effect.")
	return nil
}

// promptCredentials asks for the API key and secret, offering to keep the
// ones already configured.
func promptCredentials(reader *bufio.Reader, lf *config.LastFMConfig) error {
	if lf.APIKey != "" && lf.APISecret != "" {
		fmt.Printf("Found existing API credentials.\n")
		fmt.Printf("API Key: %s\n", lf.APIKey)
		if !confirm(reader, "\nUse existing credentials? [Y/n]: ") {
			lf.APIKey = ""
			lf.APISecret = ""
		}
	}

	if lf.APIKey == "" {
		key, err := prompt(reader, "Enter your Last.fm API Key: ")
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		lf.APIKey = key
	}
	if lf.APISecret == "" {
		secret, err := prompt(reader, "Enter your Last.fm API Secret: ")
		if err != nil {
			return fmt.Errorf("failed to read API secret: %w", err)
		}
		lf.APISecret = secret
	}

	if lf.APIKey == "" || lf.APISecret == "" {
		return fmt.Errorf("API key and secret are required")
	}
	return nil
}

func webLogin(ctx context.Context, reader *bufio.Reader, client *scrobbler.Client) (string, error) {
	fmt.Println("\nGenerating authentication token...")
	token, authURL, err := client.AuthenticateWithToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to generate auth token: %w", err)
	}

	fmt.Println("\nPlease visit this URL to authorize pmu:")
	fmt.Printf("\n  %s\n\n", authURL)
	fmt.Println("After authorizing, press Enter to continue...")
	_, _ = reader.ReadString('\n')

	fmt.Println("Retrieving session key...")
	const maxRetries = 3
	const retryDelay = 2 * time.Second

	var sessionKey string
	for i := 0; i < maxRetries; i++ {
		sessionKey, err = client.GetSession(ctx, token)
		if err == nil {
			return sessionKey, nil
		}
		if i < maxRetries-1 {
			fmt.Printf("Failed to retrieve session (attempt %d/%d). Retrying in %v...\n", i+1, maxRetries, retryDelay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return "", fmt.Errorf("failed to get session key after %d attempts: %w", maxRetries, err)
}

func passwordLogin(ctx context.Context, reader *bufio.Reader, client *scrobbler.Client) (string, error) {
	username, err := prompt(reader, "Last.fm username: ")
	if err != nil || username == "" {
		return "", fmt.Errorf("a username is required")
	}

	fmt.Print("Last.fm password: ")
	var password string
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	} else {
		// Piped input, e.g. from a password manager.
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", fmt.Errorf("a password is required")
	}

	fmt.Println("Logging in...")
	return client.Login(ctx, username, password)
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func confirm(reader *bufio.Reader, label string) bool {
	answer, err := prompt(reader, label)
	if err != nil {
		return true
	}
	answer = strings.ToLower(answer)
	return answer == "" || answer == "y" || answer == "yes"
}
