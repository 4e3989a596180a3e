package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogResolvesUnknownToFallback(t *testing.T) {
	t.Parallel()

	c := Default()
	if got := c.Fallback().Key; got != KeyGeneral {
		t.Fatalf("fallback key = %q, want %q", got, KeyGeneral)
	}

	level, ok := c.ByKey(KeyLevel)
	if !ok {
		t.Fatal("level designer missing from default catalog")
	}
	if got := c.Resolve(level.Tag); got.Key != KeyLevel {
		t.Errorf("Resolve(level tag) = %q", got.Key)
	}
	if got := c.Resolve("does-not-exist"); got.Key != KeyGeneral {
		t.Errorf("Resolve(unknown) = %q, want fallback", got.Key)
	}
	if c.Known("does-not-exist") {
		t.Error("unknown tag reported as known")
	}
	if n := len(c.All()); n != 6 {
		t.Errorf("expected 6 personas, got %d", n)
	}
}

func TestLoadFileOverridesCatalog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "personas.yaml")
	content := `fallback: helper
personas:
  - key: helper
    tag: Helper
    icon: build
  - key: critic
    tag: Critic
    label: Harsh Critic
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write persona file: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if got := c.Resolve("Critic").Label; got != "Harsh Critic" {
		t.Errorf("critic label = %q", got)
	}
	if got := c.Resolve("Helper").Label; got != "Helper" {
		t.Errorf("label should default to tag, got %q", got)
	}
	if got := c.Fallback().Key; got != "helper" {
		t.Errorf("fallback = %q", got)
	}
}

func TestNewRejectsMissingFallbackAndDuplicates(t *testing.T) {
	t.Parallel()

	if _, err := New([]Persona{{Key: "a", Tag: "A"}}, "b"); err == nil {
		t.Error("expected error for missing fallback")
	}
	if _, err := New([]Persona{{Key: "a", Tag: "A"}, {Key: "b", Tag: "A"}}, "a"); err == nil {
		t.Error("expected error for duplicate tag")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
