package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAccessClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeAccessClient() *fakeAccessClient {
	return &fakeAccessClient{values: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (c *fakeAccessClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.GetName()]++
	if err := c.errs[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (c *fakeAccessClient) Close() error { return nil }

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	base := []Option{WithMeter(noop.NewMeterProvider().Meter("test")), WithFallbackFile("")}
	f, err := NewFetcher(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	client := newFakeAccessClient()
	resource := "projects/pizzaria/secrets/auth-signing-key/versions/latest"
	client.values[resource] = "remote-key"

	f := newTestFetcher(t, withClient(client), WithProject("pizzaria"))

	for i := 0; i < 2; i++ {
		got, err := f.Resolve(context.Background(), "secret://auth-signing-key")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "remote-key" {
			t.Fatalf("expected remote-key, got %q", got)
		}
	}
	if calls := client.calls[resource]; calls != 1 {
		t.Fatalf("expected one remote call, got %d", calls)
	}
}

func TestResolveHonoursVersionAndProjectOverride(t *testing.T) {
	client := newFakeAccessClient()
	client.values["projects/other/secrets/auth-signing-key/versions/3"] = "pinned"

	f := newTestFetcher(t, withClient(client), WithProject("pizzaria"))

	got, err := f.Resolve(context.Background(), "sm://auth-signing-key?version=3&project=other")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "pinned" {
		t.Fatalf("expected pinned, got %q", got)
	}
}

func TestResolveFallsBackWhenSecretManagerDenies(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# dev\nsecret://auth-signing-key=local-key\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	client := newFakeAccessClient()
	client.errs["projects/pizzaria/secrets/auth-signing-key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	f := newTestFetcher(t, withClient(client), WithProject("pizzaria"), WithFallbackFile(path))

	got, err := f.Resolve(context.Background(), "secret://auth-signing-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-key" {
		t.Fatalf("expected local-key, got %q", got)
	}
}

func TestResolveSurfacesNonFallbackErrors(t *testing.T) {
	client := newFakeAccessClient()
	client.errs["projects/pizzaria/secrets/auth-signing-key/versions/latest"] = status.Error(codes.InvalidArgument, "bad")

	f := newTestFetcher(t, withClient(client), WithProject("pizzaria"))

	if _, err := f.Resolve(context.Background(), "secret://auth-signing-key"); status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument to surface, got %v", err)
	}
}

func TestResolveWithoutProjectOrFallback(t *testing.T) {
	f := newTestFetcher(t)
	if _, err := f.Resolve(context.Background(), "secret://missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.Resolve(context.Background(), "https://nope"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}
