package ctl

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"google.golang.org/grpc/credentials"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pgElephant/ramd/internal/client/config"
	"github.com/pgElephant/ramd/internal/common"
	gs "github.com/pgElephant/ramd/internal/server/grpc"
)

// ErrUsage is returned for unknown commands and bad flags.
var ErrUsage = errors.New("usage error")

const usage = `usage: ramctl [-c profile] [-a addr] [-t token | -token-file file] [-ca file] [-server-name name] <command> [flags]

commands:
  status                         show gatekeeper status
  audit [-n N] [-durable]        show recent audit entries
  adduser -u NAME -r ROLE        register a user (password prompted)
  setrole -u NAME -r ROLE        change a user's role
  enable -u NAME                 re-activate a user
  disable -u NAME                deactivate a user
  login -u NAME                  print a token for NAME (password prompted)
  switchover -target NODE        request a switchover
  failover -target NODE          request a failover
  backup                         request a backup
  setparam -name N -value V      change a PostgreSQL parameter
  config -key K -value V         change a cluster setting
`

type dialFunc func(addr, token string, creds credentials.TransportCredentials) (*Client, error)

type App struct {
	config *config.Config
	out    io.Writer
	errOut io.Writer
	dial   dialFunc
}

func NewApp(cfg *config.Config, out, errOut io.Writer) *App {
	return &App{
		config: cfg,
		out:    out,
		errOut: errOut,
		dial: func(addr, token string, creds credentials.TransportCredentials) (*Client, error) {
			return Dial(addr, token, creds)
		},
	}
}

// resolveToken prefers an explicit token and falls back to the first
// line of tokenFile.
func resolveToken(token, tokenFile string) (string, error) {
	if token != "" || tokenFile == "" {
		return token, nil
	}
	b, err := os.ReadFile(tokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(strings.SplitN(string(b), "\n", 2)[0]), nil
}

// Run parses args (without the program name) and executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ramctl", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	fs.Usage = func() { fmt.Fprint(a.errOut, usage) }

	cfg := a.config
	fs.String("c", "", "profile file")
	fs.String("config", "", "profile file")
	addr := fs.String("a", cfg.ServerEndpointAddr, "ramd address")
	token := fs.String("t", cfg.Token, "access token")
	tokenFile := fs.String("token-file", cfg.TokenFile, "file holding the access token")
	caFile := fs.String("ca", cfg.CAFile, "CA certificate; enables TLS")
	serverName := fs.String("server-name", cfg.ServerName, "TLS server name override")
	timeout := fs.Duration("timeout", cfg.CallTimeout, "per-call timeout")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return ErrUsage
	}

	var creds credentials.TransportCredentials
	if *caFile != "" {
		c, err := credentials.NewClientTLSFromFile(*caFile, *serverName)
		if err != nil {
			return fmt.Errorf("load CA: %w", err)
		}
		creds = c
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	handler, ok := a.commands()[cmd]
	if !ok {
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}

	tok, err := resolveToken(*token, *tokenFile)
	if err != nil {
		return err
	}

	c, err := a.dial(*addr, tok, creds)
	if err != nil {
		return err
	}
	defer c.Close()
	if *timeout > 0 {
		c.timeout = *timeout
	}

	return handler(ctx, c, rest)
}

type command func(ctx context.Context, c *Client, args []string) error

func (a *App) commands() map[string]command {
	return map[string]command{
		"status":     a.status,
		"audit":      a.audit,
		"adduser":    a.addUser,
		"setrole":    a.setRole,
		"enable":     a.setActive(true),
		"disable":    a.setActive(false),
		"login":      a.login,
		"switchover": a.operation(gs.MethodSwitchover, "target"),
		"failover":   a.operation(gs.MethodFailover, "target"),
		"backup":     a.operation(gs.MethodBackup),
		"setparam":   a.operation(gs.MethodSetParameter, "name", "value"),
		"config":     a.operation(gs.MethodChangeConfig, "key", "value"),
	}
}

func (a *App) subFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: -%s is required", ErrUsage, name)
	}
	return nil
}

func (a *App) print(s *structpb.Struct) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}

func (a *App) status(ctx context.Context, c *Client, args []string) error {
	if err := parse(a.subFlags("status"), args); err != nil {
		return err
	}
	out, err := c.Status(ctx)
	if err != nil {
		return err
	}
	return a.print(out)
}

func (a *App) audit(ctx context.Context, c *Client, args []string) error {
	fs := a.subFlags("audit")
	n := fs.Int("n", gs.DefaultAuditEntries, "number of entries")
	durable := fs.Bool("durable", false, "read the audit database")
	if err := parse(fs, args); err != nil {
		return err
	}
	out, err := c.AuditLog(ctx, *n, *durable)
	if err != nil {
		return err
	}
	return a.print(out)
}

// newPassword prompts twice and requires both entries to match.
func (a *App) newPassword() ([]byte, error) {
	pw, err := GetPassword(a.errOut, "New password: ")
	if err != nil {
		return nil, err
	}
	again, err := GetPassword(a.errOut, "Repeat password: ")
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)
	if !bytes.Equal(pw, again) {
		common.WipeByteArray(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func (a *App) addUser(ctx context.Context, c *Client, args []string) error {
	fs := a.subFlags("adduser")
	username := fs.String("u", "", "username")
	role := fs.String("r", "VIEWER", "role: VIEWER, OPERATOR or ADMIN")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("u", *username); err != nil {
		return err
	}

	pw, err := a.newPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	token, err := c.AddUser(ctx, *username, pw, *role)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "user %s added\ntoken: %s\n", *username, token)
	return nil
}

func (a *App) setRole(ctx context.Context, c *Client, args []string) error {
	fs := a.subFlags("setrole")
	username := fs.String("u", "", "username")
	role := fs.String("r", "", "role: VIEWER, OPERATOR or ADMIN")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := errors.Join(required("u", *username), required("r", *role)); err != nil {
		return err
	}
	if err := c.SetRole(ctx, *username, *role); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "user %s is now %s\n", *username, *role)
	return nil
}

func (a *App) setActive(active bool) command {
	return func(ctx context.Context, c *Client, args []string) error {
		fs := a.subFlags("enable")
		username := fs.String("u", "", "username")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := required("u", *username); err != nil {
			return err
		}
		if err := c.SetActive(ctx, *username, active); err != nil {
			return err
		}
		state := "disabled"
		if active {
			state = "enabled"
		}
		fmt.Fprintf(a.out, "user %s %s\n", *username, state)
		return nil
	}
}

func (a *App) login(ctx context.Context, c *Client, args []string) error {
	fs := a.subFlags("login")
	username := fs.String("u", "", "username")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("u", *username); err != nil {
		return err
	}

	pw, err := GetPassword(a.errOut, "Password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	token, err := c.Login(ctx, *username, pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, token)
	return nil
}

// operation builds a command that submits method with the named string
// flags, all required, plus an optional -resource.
func (a *App) operation(method string, names ...string) command {
	return func(ctx context.Context, c *Client, args []string) error {
		fs := a.subFlags(method)
		resource := fs.String("resource", "", "resource, defaults to the whole cluster")
		values := make(map[string]*string, len(names))
		for _, n := range names {
			values[n] = fs.String(n, "", n)
		}
		if err := parse(fs, args); err != nil {
			return err
		}

		params := make(map[string]any, len(names)+1)
		for _, n := range names {
			if err := required(n, *values[n]); err != nil {
				return err
			}
			params[n] = *values[n]
		}
		if *resource != "" {
			params["resource"] = *resource
		}

		id, err := c.Submit(ctx, method, params)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s accepted: %s\n", method, id)
		return nil
	}
}
