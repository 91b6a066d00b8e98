package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and161185/kizami/internal/model"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "kizami")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kizami")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tokenFile{AccessToken: tok, ExpiresAt: exp}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- http client ----

type apiClient struct {
	base  string
	http  *http.Client
	token string
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		http:  &http.Client{Timeout: 30 * time.Second},
		token: token,
	}
}

type apiError struct {
	Status     int
	Message    string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

func (e *apiError) Error() string {
	if e.Status == http.StatusTooManyRequests {
		return fmt.Sprintf("%s (retry in %ds)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (c *apiClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		ae := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(ae)
		if ae.Message == "" {
			ae.Message = http.StatusText(resp.StatusCode)
		}
		return ae
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) login(ctx context.Context, username, password string) (model.Tokens, error) {
	var out struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	err := c.post(ctx, "/login", map[string]string{"username": username, "password": password}, &out)
	return model.Tokens{AccessToken: out.AccessToken, ExpiresAt: out.ExpiresAt}, err
}

func (c *apiClient) createEntry(ctx context.Context, in model.EntryInput) (map[string]any, error) {
	var out map[string]any
	err := c.post(ctx, "/time-entries", in, &out)
	return out, err
}

func printJSON(cmd *cobra.Command, v any) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// ---- commands ----

const defaultServer = "http://localhost:8080"

func serverFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server", defaultServer, "server base URL (env KIZAMI_SERVER)")
}

// serverURL prefers an explicit --server, then KIZAMI_SERVER.
func serverURL(cmd *cobra.Command, v *viper.Viper) string {
	if f := cmd.Flags().Lookup("server"); f != nil && f.Changed {
		return f.Value.String()
	}
	if s := v.GetString("server"); s != "" {
		return s
	}
	return defaultServer
}

func newLoginCmd(v *viper.Viper) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || password == "" {
				return errors.New("need -u and -p")
			}
			tok, err := newAPIClient(serverURL(cmd, v), "").login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if err := saveToken(tok.AccessToken, tok.ExpiresAt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in, token valid until %s\n", tok.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}
	serverFlag(cmd)
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	return cmd
}

func newEntryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{Use: "entry", Short: "Manage time entries"}
	serverFlag(cmd)

	var in model.EntryInput
	add := &cobra.Command{
		Use:     "add",
		Short:   "Record a time entry",
		Example: "  kizami entry add --date 2026-02-13 --client 3 --category 4 --start 22:00 --end 02:00",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := loadToken()
			if err != nil {
				return err
			}
			out, err := newAPIClient(serverURL(cmd, v), tok).createEntry(cmd.Context(), in)
			if err != nil {
				return err
			}
			printJSON(cmd, out)
			return nil
		},
	}
	f := add.Flags()
	f.StringVar(&in.Date, "date", time.Now().Format("2006-01-02"), "work date (YYYY-MM-DD)")
	f.StringVar(&in.ClientID, "client", "", "client id")
	f.StringVar(&in.WorkCategoryID, "category", "", "work category id")
	f.StringVar(&in.StartTime, "start", "", "start time (HH:MM, 15 minute steps)")
	f.StringVar(&in.EndTime, "end", "", "end time (HH:MM, 15 minute steps)")
	f.StringVar(&in.Comment, "comment", "", "optional comment")

	cmd.AddCommand(add)
	return cmd
}
