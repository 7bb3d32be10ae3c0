package guardctl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/crudguard/internal/config"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/repository"
	"github.com/sandeepkv93/crudguard/internal/security"
	"github.com/sandeepkv93/crudguard/internal/service"
	"github.com/sandeepkv93/crudguard/internal/tools/common"
)

type options struct {
	rolesFile string
	timeout   time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "guardctl",
		Short:         "Operate the crudguard role tree, users and session tokens",
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "deadline for database operations")
	cmd.AddCommand(newRolesCommand(opts), newUsersCommand(opts), newHashPasswordCommand(), newTokenCommand())
	return cmd
}

func newRolesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "roles", Short: "Validate, render and store the role tree"}
	cmd.PersistentFlags().StringVar(&opts.rolesFile, "file", os.Getenv("CRUDGUARD_CONFIG_FILE"), "YAML file holding guest_role and roles")

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the role tree in a config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			graph, guest, err := loadFileGraph(opts.rolesFile)
			details := []string{}
			if graph != nil {
				details = append(details, fmt.Sprintf("roles=%d guest=%s", len(graph.Names()), guest))
			}
			common.PrintResult(cmd.OutOrStdout(), err == nil, "roles check", details, err)
			return err
		},
	}

	tree := &cobra.Command{
		Use:   "tree",
		Short: "Print the role tree with the commands each role grants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			graph, _, err := loadFileGraph(opts.rolesFile)
			if err != nil {
				return err
			}
			renderTree(cmd.OutOrStdout(), graph)
			return nil
		},
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Replace the stored role tree with the configured one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			db, err := repository.OpenDB(cfg, cliLogger(cmd))
			if err != nil {
				return err
			}
			defer closeDB(db)
			graph, err := service.SyncRoles(ctx, repository.NewRoleRepository(db), cfg.Roles)
			if err != nil {
				common.PrintResult(cmd.OutOrStdout(), false, "roles sync", nil, err)
				return err
			}
			common.PrintResult(cmd.OutOrStdout(), true, "roles sync", []string{fmt.Sprintf("stored %d roles", len(graph.Names()))}, nil)
			return nil
		},
	}

	cmd.AddCommand(check, tree, sync)
	return cmd
}

func newUsersCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage accounts"}
	var (
		email    string
		role     string
		password string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account with a hashed password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || role == "" {
				return errors.New("--email and --role are required")
			}
			pw, err := readPassword(cmd.InOrStdin(), password)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			logger := cliLogger(cmd)
			db, err := repository.OpenDB(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB(db)

			roles, err := service.LoadRoleGraph(ctx, cfg.RolesSource, cfg.Roles, repository.NewRoleRepository(db), cfg.GuestRole)
			if err != nil {
				return err
			}
			detacher := service.NewDetacher(cfg.DetachedTaskTimeout, observability.NewSlogSecurityLogger(logger))
			defer func() { _ = detacher.Wait(context.Background()) }()
			users := service.NewUserStore(repository.NewUserRepository(db), nil, nil, 0, 0, detacher, logger)
			hasher := security.NewPasswordHasher(cfg.PasswordCost, cfg.PasswordCostAdmin)
			tokens := service.NewUserTokenService(users, hasher, roles, nil, nil,
				cfg.VerificationEmailTimeout, cfg.PasswordResetEmailTimeout, cfg.TwoFAEmailTimeout)
			auth := service.NewAuthService(users, security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret),
				hasher, roles, tokens, nil, service.AuthServiceOptions{TokenTTL: cfg.JWTExpiry})

			u, err := auth.CreateUser(ctx, email, pw, role)
			if err != nil {
				common.PrintResult(cmd.OutOrStdout(), false, "users create", nil, err)
				return err
			}
			common.PrintResult(cmd.OutOrStdout(), true, "users create", []string{"id=" + u.ID, "email=" + u.Email, "role=" + u.Role}, nil)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email")
	create.Flags().StringVar(&role, "role", "", "role name")
	create.Flags().StringVar(&password, "password", "", "password; read from stdin when empty")
	cmd.AddCommand(create)
	return cmd
}

func newHashPasswordCommand() *cobra.Command {
	var (
		cost     int
		password string
	)
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for seeding accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(cmd.InOrStdin(), password)
			if err != nil {
				return err
			}
			hash, err := security.NewPasswordHasher(cost, cost).Hash(pw, false)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 10, "bcrypt cost")
	cmd.Flags().StringVar(&password, "password", "", "password; read from stdin when empty")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var secret, issuer, audience string
	cmd := &cobra.Command{Use: "token", Short: "Work with session tokens"}
	cmd.PersistentFlags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	cmd.PersistentFlags().StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "crudguard"), "expected issuer")
	cmd.PersistentFlags().StringVar(&audience, "audience", envOr("JWT_AUDIENCE", "crudguard-api"), "expected audience")

	inspect := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a session token and print its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			payload, err := security.NewJWTManager(issuer, audience, secret).ParseSessionToken(strings.TrimSpace(args[0]))
			if err != nil {
				common.PrintResult(cmd.OutOrStdout(), false, "token inspect", nil, err)
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
	cmd.AddCommand(inspect)
	return cmd
}

func loadFileGraph(path string) (*service.RoleGraph, string, error) {
	guest, roles, err := config.ReadRolesFile(path)
	if err != nil {
		return nil, "", err
	}
	graph, err := service.LoadRoleGraph(context.Background(), service.RolesFromConfig, roles, nil, guest)
	if err != nil {
		return nil, guest, err
	}
	return graph, guest, nil
}

func renderTree(w io.Writer, g *service.RoleGraph) {
	var walk func(name, indent string, last bool, root bool)
	walk = func(name, indent string, last bool, root bool) {
		r, _ := g.Role(name)
		label := common.Title(name)
		var notes []string
		if r.IsAdmin {
			notes = append(notes, "admin")
		}
		if r.TrustFloor != nil {
			notes = append(notes, fmt.Sprintf("trust>=%d", *r.TrustFloor))
		}
		if cmds := service.SortedCommandNames(r.Commands); len(cmds) > 0 {
			notes = append(notes, "commands: "+strings.Join(cmds, ","))
		}
		if len(notes) > 0 {
			label += " " + common.Dim("("+strings.Join(notes, "; ")+")")
		}
		branch, next := "", indent
		if !root {
			branch = "├── "
			next = indent + "│   "
			if last {
				branch = "└── "
				next = indent + "    "
			}
		}
		fmt.Fprintf(w, "%s%s%s\n", indent, branch, label)
		children := g.Children(name)
		for i, c := range children {
			walk(c, next, i == len(children)-1, false)
		}
	}
	for _, root := range g.Roots() {
		walk(root, "", true, true)
	}
}

func readPassword(in io.Reader, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is empty")
	}
	return pw, nil
}

func cliLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
