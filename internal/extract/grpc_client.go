package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/voicetask/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// ExtractMethod is the full gRPC method name served by the extraction service.
// Requests and responses are google.protobuf.Struct documents.
const ExtractMethod = "/voicetask.extraction.v1.SlotExtractor/Extract"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GrpcClient calls an external extraction service over gRPC.
type GrpcClient struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration for addr.
func DefaultGrpcClientConfig(addr string) GrpcClientConfig {
	return GrpcClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   8 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient connects to the extraction service and waits until the
// connection is ready so bad endpoints fail at startup.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, errors.New("extractor address is empty")
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: false,
		}),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to extractor at %s: %w", cfg.Address, err)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("extractor at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to extraction service", "address", cfg.Address)
	return &GrpcClient{
		conn:    conn,
		addr:    cfg.Address,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Extract sends one utterance with the current slots and decodes the delta.
func (c *GrpcClient) Extract(ctx context.Context, req Request) (domain.SlotDelta, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	in, err := requestStruct(req)
	if err != nil {
		return domain.SlotDelta{}, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ExtractMethod, in, out); err != nil {
		return domain.SlotDelta{}, fmt.Errorf("extract request failed: %w", err)
	}

	data, err := json.Marshal(out.AsMap())
	if err != nil {
		return domain.SlotDelta{}, fmt.Errorf("re-encode extract response: %w", err)
	}
	c.logger.Debug("Extraction response received", "bytes", len(data), "expected_slot", req.ExpectedSlot)
	return DecodeDelta(data)
}

// requestStruct converts the request to a protobuf Struct via its JSON form.
func requestStruct(req Request) (*structpb.Struct, error) {
	if req.Roster == nil {
		req.Roster = []domain.Child{}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode extract request: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode extract request: %w", err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	return s, nil
}

var _ Extractor = (*GrpcClient)(nil)
