package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pkgcrypto "github.com/and161185/kizami/internal/crypto"
	"github.com/and161185/kizami/internal/limiter"
	"github.com/and161185/kizami/internal/repository/postgres"
	"github.com/and161185/kizami/internal/service"
	"github.com/and161185/kizami/internal/timewindow"
)

func newHashPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for auth.admin_password_hash",
		Long:  "Reads the password from --password or the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			h, err := pkgcrypto.HashPassword([]byte(password))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password to hash (prefer stdin)")
	return cmd
}

func newGenKeyCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "gen-jwt-key",
		Short: "Print a random hex key for auth.jwt_key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size < 32 {
				return fmt.Errorf("key size %d is below 32 bytes", size)
			}
			b, err := pkgcrypto.RandBytes(size)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(b))
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "bytes", 32, "key size in bytes")
	return cmd
}

func newHoursCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "hours START END",
		Short:   "Compute the quarter-hour duration between two times of day",
		Example: "  kizami hours 22:00 02:30",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := timewindow.Parse(args[0])
			if err != nil {
				return err
			}
			end, err := timewindow.Parse(args[1])
			if err != nil {
				return err
			}
			h, err := timewindow.Validate(start, end)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(h, 'f', 2, 64))
			return nil
		},
	}
}

func newThrottleCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "throttle",
		Short: "Inspect or reset login throttle state",
	}
	throttleFlags(cmd, v)
	cmd.AddCommand(newThrottleListCmd(v), newThrottleClearCmd(v))
	return cmd
}

func newThrottleListCmd(v *viper.Viper) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live throttle records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, done, err := openThrottle(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer done()
			now := time.Now()
			snap, err := store.Read(cmd.Context(), now)
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(snap))
			for k := range snap {
				if strings.HasPrefix(k, prefix) {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tATTEMPTS\tFIRST FAILED\tBLOCKED\tRETRY AFTER")
			for _, k := range keys {
				rec := snap[k]
				blocked, retry := "no", "-"
				if rec.Blocked(now.Unix()) {
					blocked = "yes"
					retry = (time.Duration(rec.BlockedUntil-now.Unix()) * time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", k, rec.Attempts,
					time.Unix(rec.FirstFailedAt, 0).UTC().Format(time.RFC3339), blocked, retry)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only keys with this prefix")
	return cmd
}

func newThrottleClearCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "clear KEY",
		Short: "Forget a key, lifting any lockout",
		Long:  "KEY is either a full key (login:203.0.113.7) or a bare address.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, _, done, err := openThrottle(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer done()
			key := args[0]
			if !strings.HasPrefix(key, "login:") {
				key = limiter.Key(key)
			}
			if _, ok, err := th.Inspect(cmd.Context(), key); err != nil {
				return err
			} else if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no record for", key)
				return nil
			}
			if err := th.Clear(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared", key)
			return nil
		},
	}
}

func newAPIKeyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api-key",
		Short: "Manage keys for the /api/v1 report endpoints",
	}
	cmd.AddCommand(newAPIKeyCreateCmd(v), newAPIKeyHashCmd())
	return cmd
}

func newAPIKeyCreateCmd(v *viper.Viper) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a key and store its hash; the key is printed once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if label == "" {
				return errors.New("--label is required")
			}
			db, err := openDB(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer db.Close()

			raw, err := service.NewAPIKeyService(postgres.NewAPIKeyRepo(db)).CreateAPIKey(cmd.Context(), label)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "who or what the key is for")
	return cmd
}

func newAPIKeyHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash KEY",
		Short: "Print the stored form of KEY, for provisioning by SQL",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), pkgcrypto.HashAPIKey(args[0]))
		},
	}
}
