package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kvistad/parley/internal/config"
	"github.com/kvistad/parley/internal/db"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	cmd.AddCommand(newDBAddUserCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Parley database",
		Long:  "Creates the message store, migrates all tables, and seeds the support agent account.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s (driver %s)\n", configPath, cfg.DB.Driver)

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	agent, err := db.SeedAgent(gdb, cfg.Agent)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Agent account %q ready (id %d)\n", agent.Username, agent.ID)

	fmt.Fprintln(out, "\nParley database initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Parley database",
		Long: `Drops all Parley tables, re-creates them, and re-seeds the support
agent account. All messages and customer accounts are lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !skipConfirm && !confirmReset(cmd) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := gdb.Migrator().DropTable(db.AllModels()...); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	fmt.Fprintf(out, "Dropped %d tables\n", len(db.AllModels()))

	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	agent, err := db.SeedAgent(gdb, cfg.Agent)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Agent account %q re-seeded (id %d)\n", agent.Username, agent.ID)

	fmt.Fprintln(out, "\nParley database reset successfully.")
	return nil
}

func newDBAddUserCmd() *cobra.Command {
	var (
		configPath  string
		username    string
		displayName string
		password    string
	)

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Register a customer account",
		Long: `Registers a customer account. The password is prompted for unless
--password is given (useful for scripting).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBAddUser(cmd, configPath, username, displayName, password)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	cmd.Flags().StringVarP(&username, "username", "u", "", "login name (required)")
	cmd.Flags().StringVarP(&displayName, "name", "n", "", "display name (defaults to username)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	cmd.MarkFlagRequired("username")
	return cmd
}

func runDBAddUser(cmd *cobra.Command, configPath, username, displayName, password string) error {
	out := cmd.OutOrStdout()

	godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if password == "" {
		password, err = promptPassword(fmt.Sprintf("Password for %s: ", username))
		if err != nil {
			return err
		}
	}

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	user, err := db.CreateCustomer(gdb, username, displayName, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Customer %q created (id %d)\n", user.Username, user.ID)
	return nil
}

// promptPassword reads a password without echoing it. Falls back to a plain
// line read when stdin is not a terminal (piped input in scripts and tests).
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("read password: no input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func confirmReset(cmd *cobra.Command) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintln(out, "WARNING: This will permanently delete all messages and customer accounts.")
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
