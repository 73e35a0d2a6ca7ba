package geo

import (
	"testing"

	"github.com/opensource-finance/kite/internal/domain"
)

func mustResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver()
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	return r
}

func TestResolveAlbertaFastPath(t *testing.T) {
	r := mustResolver(t)

	res := r.Resolve("Calgary, AB")
	if !res.Known {
		t.Fatal("expected known location")
	}
	if res.RegionCode != domain.HomeRegion {
		t.Errorf("expected region %q, got %q", domain.HomeRegion, res.RegionCode)
	}
	if res.Message != MsgAlberta {
		t.Errorf("expected %q, got %q", MsgAlberta, res.Message)
	}
}

func TestResolveSubdivision(t *testing.T) {
	r := mustResolver(t)

	res := r.Resolve("Toronto, Ontario")
	if !res.Known || res.Message != MsgSubdivision {
		t.Fatalf("expected subdivision match, got %+v", res)
	}
	if res.RegionCode != "ontario" {
		t.Errorf("expected lowercase region token, got %q", res.RegionCode)
	}
}

func TestResolveCountry(t *testing.T) {
	r := mustResolver(t)

	res := r.Resolve("Lagos, Nigeria")
	if !res.Known || res.Message != MsgCountry {
		t.Fatalf("expected country match, got %+v", res)
	}
	if res.RegionCode != "nigeria" {
		t.Errorf("expected lowercase region token, got %q", res.RegionCode)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := mustResolver(t)

	res := r.Resolve("Atlantis, Lemuria")
	if res.Known {
		t.Fatal("expected unknown location")
	}
	if res.RegionCode != "" {
		t.Errorf("expected empty region code, got %q", res.RegionCode)
	}
	if res.Message != MsgUnknown {
		t.Errorf("expected %q, got %q", MsgUnknown, res.Message)
	}
}

func TestResolveInvalidFormat(t *testing.T) {
	r := mustResolver(t)

	for _, input := range []string{"Calgary", "Calgary AB", "a, b, c", ""} {
		res := r.Resolve(input)
		if res.Known {
			t.Errorf("%q: expected unknown", input)
		}
		if res.Message != MsgInvalidFormat {
			t.Errorf("%q: expected format error, got %q", input, res.Message)
		}
	}
}

func TestResolveCaseAndWhitespace(t *testing.T) {
	r := mustResolver(t)

	res := r.Resolve("  eDmOnToN ,  aB  ")
	if !res.Known || res.RegionCode != domain.HomeRegion {
		t.Errorf("expected case-insensitive Alberta match, got %+v", res)
	}
}

func TestAlbertaCityWithNonHomeRegionFallsThrough(t *testing.T) {
	r := mustResolver(t)

	// City matches but region isn't "ab": the subdivision table decides.
	res := r.Resolve("Calgary, Alberta")
	if !res.Known || res.Message != MsgSubdivision {
		t.Fatalf("expected subdivision match, got %+v", res)
	}
	if res.RegionCode != "alberta" {
		t.Errorf("expected region token %q, got %q", "alberta", res.RegionCode)
	}
}
