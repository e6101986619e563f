package identity

import (
	"strings"
	"testing"
)

func TestNew_HasPrefix(t *testing.T) {
	name := New("orchestrated")
	if !strings.HasPrefix(name, "orchestrated-") {
		t.Errorf("New(%q) = %q, want orchestrated- prefix", "orchestrated", name)
	}
}

func TestNew_Unique(t *testing.T) {
	a := New("orchestrated")
	b := New("orchestrated")
	if a == b {
		t.Errorf("New() produced duplicate identities: %q", a)
	}
}

func TestHasPrefix(t *testing.T) {
	cases := []struct {
		name, prefix string
		want         bool
	}{
		{"orchestrated-ab12cd34ef56", "orchestrated", true},
		{"orchestrated", "orchestrated", true},
		{"other-foo", "orchestrated", false},
		{"orchestratedrogue", "orchestrated", false},
	}
	for _, c := range cases {
		if got := HasPrefix(c.name, c.prefix); got != c.want {
			t.Errorf("HasPrefix(%q, %q) = %v, want %v", c.name, c.prefix, got, c.want)
		}
	}
}

func TestContainerName(t *testing.T) {
	got := ContainerName("github-runner", "orchestrated-ab12cd34ef56")
	want := "github-runner-orchestrated-ab12cd34ef56"
	if got != want {
		t.Errorf("ContainerName() = %q, want %q", got, want)
	}
}

func TestLabels_AlwaysIncludesManagedBy(t *testing.T) {
	labels := Labels("ctrl-1", nil)
	if labels[LabelManagedBy] != "ctrl-1" {
		t.Errorf("Labels()[%s] = %q, want %q", LabelManagedBy, labels[LabelManagedBy], "ctrl-1")
	}
	if labels[LabelComponent] != ComponentWorker {
		t.Errorf("Labels()[%s] = %q, want %q", LabelComponent, labels[LabelComponent], ComponentWorker)
	}
}

func TestLabels_MergesExtra(t *testing.T) {
	labels := Labels("ctrl-1", map[string]string{"role": "build"})
	if labels["role"] != "build" {
		t.Errorf("Labels() did not merge extra label: %v", labels)
	}
}
