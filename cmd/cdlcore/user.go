package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/infrastructure/config"
	"github.com/nerrad567/cdl-core/internal/infrastructure/logging"
	"github.com/nerrad567/cdl-core/migrations"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local accounts",
}

var userCreateFlags struct {
	email    string
	name     string
	password string
	staff    bool
	admin    bool
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account, optionally with staff or admin rights",
	Long: `Create a local account.

Self-registration through the API never grants roles; use this command to
provision lab staff (--staff) and result administrators (--admin).

Example:
  cdlcore user create --email op@lab.example --name Operator --password '...' --staff`,
	Args: cobra.NoArgs,
	RunE: runUserCreate,
}

func init() {
	f := userCreateCmd.Flags()
	f.StringVar(&userCreateFlags.email, "email", "", "account email (required)")
	f.StringVar(&userCreateFlags.name, "name", "", "display name (required)")
	f.StringVar(&userCreateFlags.password, "password", "", "initial password (required)")
	f.BoolVar(&userCreateFlags.staff, "staff", false, "grant staff rights (queue, patch, all experiments)")
	f.BoolVar(&userCreateFlags.admin, "admin", false, "grant admin rights (results, audit log)")
	for _, name := range []string{"email", "name", "password"} {
		//nolint:errcheck // flag names are constants
		_ = userCreateCmd.MarkFlagRequired(name)
	}

	userCmd.AddCommand(userCreateCmd)
}

func runUserCreate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exit

	if err := db.Migrate(cmd.Context(), migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	log := logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())
	accounts := auth.NewAccountService(
		auth.NewUserRepository(db.DB),
		auth.NewSessionRepository(db.DB),
		cfg.Security.JWT.Secret,
		cfg.AccessTokenTTL(),
		log,
	)

	user, err := accounts.CreateUser(cmd.Context(), auth.RegisterInput{
		Email:    userCreateFlags.email,
		Name:     userCreateFlags.name,
		Password: userCreateFlags.password,
		IsStaff:  userCreateFlags.staff,
		IsAdmin:  userCreateFlags.admin,
	})
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s) staff=%t admin=%t\n",
		user.ID, user.Email, user.IsStaff, user.IsAdmin)
	return nil
}
