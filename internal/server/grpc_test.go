package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"conversation-chaos/internal/testutil"
)

const bufSize = 1024 * 1024

// switchPinger fails its pings while down is set.
type switchPinger struct {
	down atomic.Bool
}

func (p *switchPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("ledger offline")
	}
	return nil
}

func setupTestGRPCServer(t *testing.T, pinger *switchPinger, interval time.Duration) (*GRPCServer, healthpb.HealthClient) {
	t.Helper()
	srv := NewGRPCServer(testutil.TestConfig(), pinger, testutil.TestLogger())
	if interval > 0 {
		srv.interval = interval
	}

	// Use bufconn for testing
	lis := bufconn.Listen(bufSize)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service}, grpc.WaitForReady(true))
	if err != nil {
		t.Fatalf("Health check for %q failed: %v", service, err)
	}
	return resp.Status
}

func TestGRPCHealthServing(t *testing.T) {
	_, client := setupTestGRPCServer(t, &switchPinger{}, 0)

	for _, service := range []string{"", LedgerService} {
		if got := checkStatus(t, client, service); got != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Expected %q to be SERVING, got %s", service, got)
		}
	}
}

func TestGRPCHealthUnknownService(t *testing.T) {
	_, client := setupTestGRPCServer(t, &switchPinger{}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"}, grpc.WaitForReady(true)); err == nil {
		t.Error("Expected an error for an unknown service")
	}
}

func TestGRPCHealthFollowsLedger(t *testing.T) {
	pinger := &switchPinger{}
	_, client := setupTestGRPCServer(t, pinger, 20*time.Millisecond)

	if got := checkStatus(t, client, LedgerService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("Expected SERVING before the outage, got %s", got)
	}

	pinger.down.Store(true)
	testutil.WithTimeout(t, 5*time.Second, func() {
		for checkStatus(t, client, LedgerService) != healthpb.HealthCheckResponse_NOT_SERVING {
			time.Sleep(10 * time.Millisecond)
		}
	})

	pinger.down.Store(false)
	testutil.WithTimeout(t, 5*time.Second, func() {
		for checkStatus(t, client, "") != healthpb.HealthCheckResponse_SERVING {
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestGRPCStopIsIdempotent(t *testing.T) {
	srv, client := setupTestGRPCServer(t, &switchPinger{}, 0)
	checkStatus(t, client, "")

	srv.Stop()
	srv.Stop()
}
