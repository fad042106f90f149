package ephemeral_test

import (
	"testing"

	"github.com/firasghr/wreqbridge/client"
	"github.com/firasghr/wreqbridge/ephemeral"
)

func TestCache_ClientFor_SameConfigStableWithinTTL(t *testing.T) {
	c := ephemeral.NewCache()
	t.Cleanup(c.Stop)

	cfg := client.SessionConfig{Emulation: "chrome_120", OS: "macos"}

	c1, err := c.ClientFor(cfg)
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	c2, err := c.ClientFor(cfg)
	if err != nil {
		t.Fatalf("ClientFor (second call): %v", err)
	}
	if c1 != c2 {
		t.Error("expected the same *http.Client instance for an identical structural SessionConfig within the TTL window")
	}
}

func TestCache_ClientFor_DifferentConfigsDistinctClients(t *testing.T) {
	c := ephemeral.NewCache()
	t.Cleanup(c.Stop)

	c1, err := c.ClientFor(client.SessionConfig{Emulation: "chrome_120", OS: "macos"})
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	c2, err := c.ClientFor(client.SessionConfig{Emulation: "chrome_131", OS: "windows"})
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if c1 == c2 {
		t.Error("expected distinct clients for distinct structural configs")
	}
}

func TestCache_ClientFor_NeverSetsJar(t *testing.T) {
	// Ephemeral clients must never be reachable from any session jar (§3
	// invariant 4): the simplest observable proxy is that client.New never
	// assigns Client.Jar.
	c := ephemeral.NewCache()
	t.Cleanup(c.Stop)

	hc, err := c.ClientFor(client.SessionConfig{Emulation: "chrome_120", OS: "macos"})
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if hc.Jar != nil {
		t.Error("ephemeral client must not carry a Client.Jar")
	}
}
