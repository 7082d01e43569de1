package normalizer

import "testing"

func TestCanonicalStripsTrackingParams(t *testing.T) {
	got := Canonical("https://example.com/page?utm_source=newsletter&id=42", "third-party")
	want := "example.com/page?id=42"
	if got != want {
		t.Fatalf("Canonical() = %q, want %q", got, want)
	}
}

func TestCanonicalSortsSurvivingParams(t *testing.T) {
	got := Canonical("https://example.com/page?b=2&a=1", "third-party")
	want := "example.com/page?a=1&b=2"
	if got != want {
		t.Fatalf("Canonical() = %q, want %q", got, want)
	}
}

func TestCanonicalDropsAdCacheBusterOnlyForAdOrigin(t *testing.T) {
	url := "https://ads.example.com/creative?cb=12345&id=7"

	got := Canonical(url, "ad")
	if got != "ads.example.com/creative?id=7" {
		t.Fatalf("Canonical(ad) = %q", got)
	}
	got = Canonical(url, "third-party")
	if got != "ads.example.com/creative?cb=12345&id=7" {
		t.Fatalf("Canonical(third-party) = %q", got)
	}
}

func TestCanonicalStripsLargeDecimalValuesForAdOrigin(t *testing.T) {
	url := "https://pagead2.googlesyndication.com/pagead?x=1234567890123&id=7"
	got := Canonical(url, "ad")
	want := "pagead2.googlesyndication.com/pagead?id=7"
	if got != want {
		t.Fatalf("Canonical() = %q, want %q", got, want)
	}
}

func TestCanonicalPathOnlyHostDropsQueryEntirely(t *testing.T) {
	got := Canonical("https://fonts.gstatic.com/s/roboto/v1/font.woff2?skip=true", "third-party")
	want := "fonts.gstatic.com/s/roboto/v1/font.woff2"
	if got != want {
		t.Fatalf("Canonical() = %q, want %q", got, want)
	}
}

func TestCanonicalNoQueryParams(t *testing.T) {
	got := Canonical("https://example.com/page", "third-party")
	if got != "example.com/page" {
		t.Fatalf("Canonical() = %q", got)
	}
}

func TestKeyIsStableSHA256Hex(t *testing.T) {
	k1 := Key("example.com/page")
	k2 := Key("example.com/page")
	if k1 != k2 {
		t.Fatalf("Key() not stable: %q != %q", k1, k2)
	}
	if len(k1) != 64 {
		t.Fatalf("Key() length = %d, want 64", len(k1))
	}
}

func TestAliasAdHostIgnoresQuery(t *testing.T) {
	got := Alias("https://securepubads.g.doubleclick.net/gampad/ads?cb=1&id=2")
	want := "alias|securepubads.g.doubleclick.net/gampad/ads"
	if got != want {
		t.Fatalf("Alias() = %q, want %q", got, want)
	}
}

func TestAliasStaticAssetStripsVersionParams(t *testing.T) {
	got := Alias("https://cdn.example.com/app.js?v=3&chunk=2&feature=on")
	want := "alias|cdn.example.com/app.js?feature=on"
	if got != want {
		t.Fatalf("Alias() = %q, want %q", got, want)
	}
}

func TestAliasStaticAssetNoVersionParamsReturnsEmpty(t *testing.T) {
	got := Alias("https://cdn.example.com/app.js?feature=on")
	if got != "" {
		t.Fatalf("Alias() = %q, want empty (no version params removed)", got)
	}
}

func TestAliasNonStaticNonAdReturnsEmpty(t *testing.T) {
	got := Alias("https://example.com/api/data?v=3")
	if got != "" {
		t.Fatalf("Alias() = %q, want empty", got)
	}
}

func TestAliasAllVersionParamsStrippedKeepsBase(t *testing.T) {
	got := Alias("https://cdn.example.com/app.js?v=3")
	want := "alias|cdn.example.com/app.js"
	if got != want {
		t.Fatalf("Alias() = %q, want %q", got, want)
	}
}

func TestVarySuffixOnlyAppliesWhenVaryMentionsAccept(t *testing.T) {
	canonical := "example.com/data"
	if got := VarySuffix(canonical, "application/json", "Origin"); got != canonical {
		t.Fatalf("VarySuffix() = %q, want unchanged %q", got, canonical)
	}
	got := VarySuffix(canonical, "application/json", "Accept")
	if got == canonical {
		t.Fatalf("VarySuffix() did not append a suffix for Vary: Accept")
	}
}

func TestVarySuffixStableForSameAccept(t *testing.T) {
	a := VarySuffix("example.com/data", "application/json", "Accept")
	b := VarySuffix("example.com/data", "application/json", "Accept")
	if a != b {
		t.Fatalf("VarySuffix() not stable: %q != %q", a, b)
	}
}

func TestNormalizeHostFoldsIDNToPunycode(t *testing.T) {
	got := Canonical("https://München.example/", "third-party")
	if got == "münchen.example/" {
		t.Fatalf("expected IDNA punycode folding, got raw lowercase %q", got)
	}
}

func TestDocKeyStableAndDistinctFromAssetKey(t *testing.T) {
	k1 := DocKey("https://example.com/page?utm_source=x&id=1")
	k2 := DocKey("https://example.com/page?id=1")
	if k1 != k2 {
		t.Fatalf("DocKey() should strip tracking params: %q != %q", k1, k2)
	}
	if DocKey("https://example.com/page") == Key(Canonical("https://example.com/page", "third-party")) {
		t.Fatalf("DocKey() should not collide with asset Key()")
	}
}

func TestDocCanonicalKeepsQueryUnlikeAssetPathOnlyHosts(t *testing.T) {
	got := DocCanonical("https://fonts.gstatic.com/page?id=1")
	want := "fonts.gstatic.com/page?id=1"
	if got != want {
		t.Fatalf("DocCanonical() = %q, want %q (documents never use path-only special casing)", got, want)
	}
}

func TestCanonicalMalformedURLReturnsInputUnchanged(t *testing.T) {
	raw := "://not a url"
	if got := Canonical(raw, "third-party"); got != raw {
		t.Fatalf("Canonical() = %q, want unchanged %q on parse failure", got, raw)
	}
}
