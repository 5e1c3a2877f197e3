package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetEnvValueReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("KOOL_LLM_API_KEY=abc\nKOOL_JWT_SECRET=old\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, "KOOL_JWT_SECRET", "new"); err != nil {
		t.Fatalf("set existing: %v", err)
	}
	if err := setEnvValue(path, "KOOL_USER", "ana"); err != nil {
		t.Fatalf("set new: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "KOOL_LLM_API_KEY=abc\nKOOL_JWT_SECRET=new\nKOOL_USER=ana\n"
	if string(data) != want {
		t.Fatalf("unexpected .env:\n%s", data)
	}
}

func TestSetEnvValueCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := setEnvValue(path, "KOOL_JWT_SECRET", "s3cret"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "KOOL_JWT_SECRET=s3cret\n" {
		t.Fatalf("unexpected .env: %q", data)
	}
}

func TestReadProfileYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "profile.yml")
	if err := os.WriteFile(yml, []byte(strings.Join([]string{
		"artist_name: Lua Nova",
		"language: pt",
		"socials:",
		"  instagram_followers: 1200",
		"discography:",
		"  singles: 3",
		"  upcoming_releases:",
		"    - title: Maré",
		"      release_date: \"2026-11-20\"",
	}, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := readProfile(yml)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if p.ArtistName != "Lua Nova" || p.Socials.InstagramFollowers != 1200 || p.Discography.Singles != 3 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if len(p.Discography.UpcomingReleases) != 1 || p.Discography.UpcomingReleases[0].ReleaseDate != "2026-11-20" {
		t.Fatalf("unexpected releases: %+v", p.Discography.UpcomingReleases)
	}

	js := filepath.Join(dir, "profile.json")
	if err := os.WriteFile(js, []byte(`{"artist_name":"Lua Nova","language":"pt","live":{"shows_last_year":12}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err = readProfile(js)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if p.Live.ShowsLastYear != 12 {
		t.Fatalf("unexpected live: %+v", p.Live)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readProfile(bad); err == nil {
		t.Fatal("expected parse error")
	}
}
