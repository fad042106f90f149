package emulation_test

import (
	"testing"

	"github.com/firasghr/wreqbridge/emulation"
)

func TestResolve_KnownProfile(t *testing.T) {
	d := emulation.Resolve("chrome_120", "windows")
	if d.Profile != "chrome_120" {
		t.Errorf("Profile: got %q, want chrome_120", d.Profile)
	}
	if d.OS != "windows" {
		t.Errorf("OS: got %q, want windows", d.OS)
	}
	if d.Headers.Get("sec-ch-ua-platform") != `"Windows"` {
		t.Errorf("sec-ch-ua-platform: got %q, want \"Windows\"", d.Headers.Get("sec-ch-ua-platform"))
	}
}

func TestResolve_UnknownProfileFallsBackWithoutError(t *testing.T) {
	d := emulation.Resolve("not-a-real-browser", "macos")
	if d.Profile != emulation.DefaultProfile {
		t.Errorf("expected fallback to %q, got %q", emulation.DefaultProfile, d.Profile)
	}
}

func TestResolve_UnknownOSFallsBackWithoutError(t *testing.T) {
	d := emulation.Resolve("chrome_120", "plan9")
	if d.OS != emulation.DefaultOS {
		t.Errorf("expected OS fallback to %q, got %q", emulation.DefaultOS, d.OS)
	}
}

func TestResolve_EmptyInputsUseDefaults(t *testing.T) {
	d := emulation.Resolve("", "")
	if d.Profile != emulation.DefaultProfile || d.OS != emulation.DefaultOS {
		t.Errorf("expected defaults, got profile=%q os=%q", d.Profile, d.OS)
	}
}

// TestResolve_HeadersVaryByOS guards against the per-profile header template
// silently ignoring the os argument: Linux and Windows must produce visibly
// different platform tokens even for the same browser profile.
func TestResolve_HeadersVaryByOS(t *testing.T) {
	win := emulation.Resolve("chrome_120", "windows")
	linux := emulation.Resolve("chrome_120", "linux")

	if win.Headers.Get("sec-ch-ua-platform") == linux.Headers.Get("sec-ch-ua-platform") {
		t.Error("sec-ch-ua-platform must differ between windows and linux profiles")
	}
	if win.UserAgent == linux.UserAgent {
		t.Error("User-Agent must differ between windows and linux profiles")
	}
}

func TestProfiles_Sorted(t *testing.T) {
	profiles := emulation.Profiles()
	if len(profiles) == 0 {
		t.Fatal("expected at least one known profile")
	}
	for i := 1; i < len(profiles); i++ {
		if profiles[i-1] >= profiles[i] {
			t.Errorf("Profiles() not sorted: %v", profiles)
			break
		}
	}
}

func TestOperatingSystems_ContainsCoreThree(t *testing.T) {
	osList := emulation.OperatingSystems()
	want := map[string]bool{"windows": false, "macos": false, "linux": false}
	for _, o := range osList {
		if _, ok := want[o]; ok {
			want[o] = true
		}
	}
	for o, found := range want {
		if !found {
			t.Errorf("OperatingSystems() missing %q", o)
		}
	}
}
