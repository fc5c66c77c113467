package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tlsock/tlsock-go/pkg/discovery"
)

func TestMDNSAdvertiserLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the host network")
	}

	adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		t.Fatalf("Failed to create advertiser: %v", err)
	}
	defer adv.StopAll()

	info := &discovery.ServiceInfo{
		ID:       "listener-1",
		Instance: "tlsock-test-4433",
		Port:     4433,
		Protocol: "echo",
	}
	if err := adv.Advertise(context.Background(), info); err != nil {
		t.Skipf("mDNS unavailable: %v", err)
	}

	info.Family = "IPv6"
	if err := adv.Update(info.ID, info); err != nil {
		t.Errorf("Update failed: %v", err)
	}
	if err := adv.Stop(info.ID); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := adv.Stop(info.ID); !errors.Is(err, discovery.ErrNotFound) {
		t.Errorf("second Stop = %v, want ErrNotFound", err)
	}
}

func TestMDNSAdvertiserRejectsBadInstance(t *testing.T) {
	adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		t.Fatal(err)
	}
	err = adv.Advertise(context.Background(), &discovery.ServiceInfo{ID: "x", Protocol: "echo"})
	if !errors.Is(err, discovery.ErrMissingRequired) {
		t.Errorf("expected ErrMissingRequired, got %v", err)
	}
	if err := adv.Update("absent", &discovery.ServiceInfo{}); !errors.Is(err, discovery.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMDNSBrowserClosesOnCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the host network")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	ch, err := discovery.NewMDNSBrowser(discovery.BrowserConfig{}).Browse(ctx)
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("browse channel not closed after cancel")
		}
	}
}
