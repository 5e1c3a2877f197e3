package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"kool/internal/app"
	"kool/internal/llm/llmtest"
	"kool/internal/logging"
)

func TestOpenWithDefaults(t *testing.T) {
	dir := t.TempDir()
	rt, err := app.Open(context.Background(), app.Options{Workspace: dir, JWTSecret: "s", Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if rt.Config.Server.BasePath != "/v0" {
		t.Fatalf("expected defaults, got %+v", rt.Config.Server)
	}
	if rt.Engine.LLM == nil || rt.Engine.Auth.JWTSecret != "s" {
		t.Fatalf("engine not wired")
	}
	if _, err := os.Stat(filepath.Join(dir, ".kool", "kool.db")); err != nil {
		t.Fatalf("db not created: %v", err)
	}
}

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "kool.yml"), []byte("credits:\n  starting_balance: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rt, err := app.Open(ctx, app.Options{Workspace: dir, LLM: llmtest.Text("hi"), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if _, _, err := rt.Engine.EnsureUser(ctx, "u1", ""); err != nil {
		t.Fatal(err)
	}
	if bal, _ := rt.Engine.Balance(ctx, "u1"); bal != 3 {
		t.Fatalf("expected configured starting balance, got %d", bal)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "kool.yml"), []byte("server:\n  base_path: nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := app.Open(context.Background(), app.Options{Workspace: dir}); err == nil {
		t.Fatalf("expected config error")
	}
}
