package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// MirrorClient talks to a gRPC registry mirror. Generated clients should use
// Conn() directly; call errors pass through WrapError so the retry
// layer sees the status code.
type MirrorClient struct {
	name     string
	endpoint string
	conn     *grpc.ClientConn

	Monitor *Monitor
}

// NewMirrorClient dials a gRPC registry mirror.
func NewMirrorClient(ctx context.Context, name, endpoint string) (*MirrorClient, error) {
	// Parse endpoint to determine if TLS is needed
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	opts = append(opts, grpc.WithBlock()) // Wait for connection

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial mirror %s: %w", target, err)
	}

	return &MirrorClient{
		name:     name,
		endpoint: endpoint,
		conn:     conn,
		Monitor:  NewMonitor(),
	}, nil
}

// Name returns the mirror's configured name.
func (c *MirrorClient) Name() string {
	return c.name
}

// Conn returns the underlying gRPC connection for generated clients.
func (c *MirrorClient) Conn() *grpc.ClientConn {
	return c.conn
}

// Ping checks mirror liveness through the standard health service.
func (c *MirrorClient) Ping(ctx context.Context) error {
	start := time.Now()

	_, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		c.Monitor.RecordFailure()
		return c.WrapError(err)
	}

	c.Monitor.RecordSuccess(time.Since(start))
	return nil
}

// WrapError converts a gRPC call error into a *MirrorError carrying the
// status code. Non-status errors get codes.Unknown.
func (c *MirrorClient) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &MirrorError{
		Code:     status.Code(err),
		Endpoint: c.endpoint,
		Err:      err,
	}
}

// Close cleans up resources.
func (c *MirrorClient) Close() error {
	return c.conn.Close()
}
