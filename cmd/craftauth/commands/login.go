package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/httplog/v3"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate an account and store it in the vault",
		Commands: []*cli.Command{
			loginMojangCommand(),
			loginMicrosoftCommand(),
		},
	}
}

func loginMojangCommand() *cli.Command {
	return &cli.Command{
		Name:  "mojang",
		Usage: "log in with mojang username and password",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Usage:    "mojang account email or username",
				Required: true,
			},
		},
		Action: loginMojangAction,
	}
}

func loginMojangAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	fmt.Fprint(cmd.Writer, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.Writer)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	summary, err := application.Manager.LoginMojang(ctx, cmd.String("username"), string(password))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Writer, "Logged in as %s (%s)\n", summary.Username, summary.UUID)
	return nil
}

func loginMicrosoftCommand() *cli.Command {
	return &cli.Command{
		Name:   "microsoft",
		Usage:  "log in with a microsoft account via browser",
		Action: loginMicrosoftAction,
	}
}

func loginMicrosoftAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	port := application.Config.Auth.RedirectPort
	redirectURI := fmt.Sprintf("http://localhost:%d/callback", port)

	authURL, state, err := application.Manager.MicrosoftAuthURL(redirectURI)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Writer, "Open this URL in your browser to sign in:")
	fmt.Fprintln(cmd.Writer)
	fmt.Fprintln(cmd.Writer, "  "+authURL)
	fmt.Fprintln(cmd.Writer)

	code, err := captureAuthCode(ctx, port, state)
	if err != nil {
		return fmt.Errorf("capturing authorization code: %w", err)
	}

	summary, err := application.Manager.LoginMicrosoft(ctx, code, redirectURI)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Writer, "Logged in as %s (%s)\n", summary.Username, summary.UUID)
	return nil
}

// captureAuthCode runs a localhost HTTP server until the provider redirects
// the browser back with an authorization code, verifying the anti-forgery
// state token.
func captureAuthCode(ctx context.Context, port uint16, state string) (string, error) {
	type outcome struct {
		code string
		err  error
	}
	results := make(chan outcome, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- outcome{err: errors.New("authorization redirect carried an unexpected state token")}
		case query.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			results <- outcome{err: errors.New("authorization redirect carried no code")}
		default:
			fmt.Fprintln(w, "Login complete. You can close this tab.")
			results <- outcome{code: query.Get("code")}
		}
	})

	// Query parameters (the code) are never logged.
	handler := httplog.RequestLogger(slog.Default(), &httplog.Options{
		Schema:        httplog.SchemaECS.Concise(true),
		RecoverPanics: true,
	})(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var captured outcome
	select {
	case captured = <-results:
	case <-gCtx.Done():
		captured = outcome{err: gCtx.Err()}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil && captured.err == nil {
		captured.err = err
	}
	return captured.code, captured.err
}
