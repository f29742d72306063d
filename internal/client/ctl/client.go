package ctl

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pgElephant/ramd/internal/common"
	gs "github.com/pgElephant/ramd/internal/server/grpc"
)

const defaultCallTimeout = 15 * time.Second

// Client calls the ramd ControlPlane service.
type Client struct {
	conn    *grpc.ClientConn
	token   string
	timeout time.Duration
}

func withAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, "Bearer "+token)
}

func (c *Client) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	return invoker(withAccessToken(ctx, c.token), method, req, reply, cc, opts...)
}

// Dial connects to addr. A nil creds dials in plaintext.
func Dial(addr, token string, creds credentials.TransportCredentials, opts ...grpc.DialOption) (*Client, error) {
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	c := &Client{token: token, timeout: defaultCallTimeout}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, gs.FullMethod(method), in, out); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context) (*structpb.Struct, error) {
	return c.call(ctx, gs.MethodGetStatus, nil)
}

// AuditLog returns up to n entries, newest first. With durable set the
// daemon reads its database instead of the in-memory trail.
func (c *Client) AuditLog(ctx context.Context, n int, durable bool) (*structpb.Struct, error) {
	return c.call(ctx, gs.MethodGetAuditLog, map[string]any{"max_entries": n, "durable": durable})
}

// AddUser registers a user and returns the token issued to them.
func (c *Client) AddUser(ctx context.Context, username string, password []byte, role string) (string, error) {
	out, err := c.call(ctx, gs.MethodAddUser, map[string]any{
		"username": username,
		"password": string(password),
		"role":     role,
	})
	if err != nil {
		return "", err
	}
	return out.GetFields()["token"].GetStringValue(), nil
}

func (c *Client) SetRole(ctx context.Context, username, role string) error {
	_, err := c.call(ctx, gs.MethodSetRole, map[string]any{"username": username, "role": role})
	return err
}

func (c *Client) SetActive(ctx context.Context, username string, active bool) error {
	_, err := c.call(ctx, gs.MethodSetUserActive, map[string]any{"username": username, "active": active})
	return err
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, username string, password []byte) (string, error) {
	out, err := c.call(ctx, gs.MethodLogin, map[string]any{"username": username, "password": string(password)})
	if err != nil {
		return "", err
	}
	return out.GetFields()["token"].GetStringValue(), nil
}

// Submit requests a cluster operation and returns its id.
func (c *Client) Submit(ctx context.Context, method string, params map[string]any) (string, error) {
	out, err := c.call(ctx, method, params)
	if err != nil {
		return "", err
	}
	return out.GetFields()["operation_id"].GetStringValue(), nil
}
