package guard_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"net"
	"testing"

	"github.com/openfang/openfang/internal/openfang/guard"
)

type fakeResolver map[string][]net.IPAddr

func (f fakeResolver) LookupIPAddr(host string) ([]net.IPAddr, error) {
	return f[host], nil
}

func TestCheckSSRFRejectsDisallowedAddresses(t *testing.T) {
	cases := []struct {
		name string
		host string
		ip   net.IP
	}{
		{"loopback", "localhost", net.ParseIP("127.0.0.1")},
		{"link-local", "link.example", net.ParseIP("169.254.1.1")},
		{"rfc1918", "internal.example", net.ParseIP("10.0.0.5")},
		{"metadata-ip", "metadata-by-ip.example", net.ParseIP("169.254.169.254")},
		{"unspecified", "zero.example", net.ParseIP("0.0.0.0")},
		{"ula", "ula.example", net.ParseIP("fd00::1")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resolver := fakeResolver{c.host: {{IP: c.ip}}}
			err := guard.CheckSSRF("http://"+c.host+"/", guard.SSRFOptions{Resolver: resolver})
			if err == nil {
				t.Fatalf("expected CheckSSRF to reject %s (%s)", c.host, c.ip)
			}
		})
	}
}

func TestCheckSSRFMetadataHostname(t *testing.T) {
	err := guard.CheckSSRF("http://metadata.google.internal/computeMetadata/v1/", guard.SSRFOptions{})
	if err == nil {
		t.Fatal("expected rejection of metadata.google.internal")
	}
}

func TestCheckSSRFAllowsPublicAddress(t *testing.T) {
	resolver := fakeResolver{"example.com": {{IP: net.ParseIP("93.184.216.34")}}}
	err := guard.CheckSSRF("https://example.com/path", guard.SSRFOptions{Resolver: resolver})
	if err != nil {
		t.Fatalf("expected public address to pass, got %v", err)
	}
}

func TestCheckSSRFAllowListOverride(t *testing.T) {
	resolver := fakeResolver{"internal.example": {{IP: net.ParseIP("10.0.0.5")}}}
	err := guard.CheckSSRF("http://internal.example/", guard.SSRFOptions{
		Resolver:   resolver,
		AllowHosts: []string{"internal.example"},
	})
	if err != nil {
		t.Fatalf("expected allow-listed host to pass, got %v", err)
	}
}

func TestCheckSSRFRejectsBadScheme(t *testing.T) {
	if err := guard.CheckSSRF("file:///etc/passwd", guard.SSRFOptions{}); err == nil {
		t.Fatal("expected file:// scheme rejection")
	}
}

func TestValidateCommandAllowlistRejectsSubstitution(t *testing.T) {
	cases := []string{
		"echo `whoami`",
		"echo $(whoami)",
		"echo ${HOME}",
	}
	for _, c := range cases {
		if err := guard.ValidateCommandAllowlist(c, []string{"echo"}, guard.PolicyEnforced); err == nil {
			t.Errorf("expected rejection of %q", c)
		}
	}
}

func TestValidateCommandAllowlistFullPolicyBypasses(t *testing.T) {
	if err := guard.ValidateCommandAllowlist("rm -rf /", nil, guard.PolicyFull); err != nil {
		t.Fatalf("PolicyFull should bypass allow-list, got %v", err)
	}
}

func TestValidateCommandAllowlistChecksEverySegment(t *testing.T) {
	err := guard.ValidateCommandAllowlist("echo hi && curl evil.example", []string{"echo"}, guard.PolicyEnforced)
	if err == nil {
		t.Fatal("expected rejection: curl is not allowed")
	}
	err = guard.ValidateCommandAllowlist("echo hi && cat file", []string{"echo"}, guard.PolicyEnforced)
	if err != nil {
		t.Fatalf("expected cat (default safe bin) to pass, got %v", err)
	}
}

func TestValidateBindMountRejectsTraversal(t *testing.T) {
	if err := guard.ValidateBindMount("/home/me/../etc/passwd", nil); err == nil {
		t.Fatal("expected traversal rejection")
	}
}

func TestValidateBindMountRejectsDockerSocket(t *testing.T) {
	if err := guard.ValidateBindMount("/var/run/docker.sock", nil); err == nil {
		t.Fatal("expected docker.sock rejection")
	}
}

func TestValidateBindMountRejectsRelative(t *testing.T) {
	if err := guard.ValidateBindMount("relative/path", nil); err == nil {
		t.Fatal("expected rejection of relative path")
	}
}

func TestValidateBindMountAllowsWorkspace(t *testing.T) {
	if err := guard.ValidateBindMount("/home/me/workspace", nil); err != nil {
		t.Fatalf("expected workspace path to pass, got %v", err)
	}
}

func TestValidateContainerName(t *testing.T) {
	if err := guard.ValidateContainerName("agent-01_build:v1.2/sub"); err != nil {
		t.Fatalf("expected valid name to pass, got %v", err)
	}
	if err := guard.ValidateContainerName(""); err == nil {
		t.Fatal("expected empty name to fail")
	}
	if err := guard.ValidateContainerName("bad name!"); err == nil {
		t.Fatal("expected name with space/! to fail")
	}
}

func TestVerifyHMACSHA256(t *testing.T) {
	key := []byte("shared-secret")
	body := []byte(`{"event":"push"}`)
	sig := hmacSum(key, body)

	if err := guard.VerifyHMACSHA256(key, body, sig); err != nil {
		t.Fatalf("expected valid signature to pass, got %v", err)
	}

	bad := append([]byte(nil), sig...)
	bad[0] ^= 0xFF
	if err := guard.VerifyHMACSHA256(key, body, bad); err != guard.ErrAuthFailed {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func hmacSum(key, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return mac.Sum(nil)
}
