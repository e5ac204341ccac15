package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"futurehuman/internal/config"
	"futurehuman/internal/db"
	"futurehuman/internal/domain"
	"futurehuman/internal/engine"
	"futurehuman/internal/migrate"
	"futurehuman/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func registerTestUser(t *testing.T, env testEnv, email string) domain.User {
	t.Helper()
	u, err := env.Engine.RegisterUser(env.Ctx, email, "super-secret-1", "Tester")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	u := registerTestUser(t, env, "Ada@Example.com")
	if u.Email != "ada@example.com" {
		t.Fatalf("email not lowercased: %q", u.Email)
	}
	if u.PasswordHash == "super-secret-1" || u.PasswordHash == "" {
		t.Fatal("password stored without hashing")
	}

	got, err := env.Engine.Authenticate(env.Ctx, "ada@example.com", "super-secret-1")
	if err != nil || got.ID != u.ID {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "ada@example.com", "wrong"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nobody@example.com", "super-secret-1"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("unknown email should look like bad credentials, got %v", err)
	}

	if _, err := env.Engine.RegisterUser(env.Ctx, "ada@example.com", "super-secret-1", ""); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("duplicate email should conflict, got %v", err)
	}
	if _, err := env.Engine.RegisterUser(env.Ctx, "short@example.com", "tiny", ""); err == nil {
		t.Fatal("short password accepted")
	}
}

func TestCreateAgentShapesSections(t *testing.T) {
	env := newTestEnv(t)
	u := registerTestUser(t, env, "ada@example.com")

	a, err := env.Engine.CreateAgent(env.Ctx, u.ID, engine.AgentSections{
		Identity: domain.Identity{Name: "  Support Bot  "},
		Style:    domain.Style{Formality: 99, Pace: -4},
		Brain:    domain.Brain{ID: "starter"},
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if a.Identity.Name != "Support Bot" {
		t.Fatalf("name not trimmed: %q", a.Identity.Name)
	}
	if a.Style.Formality != 10 || a.Style.Pace != 0 {
		t.Fatalf("style not clamped: %+v", a.Style)
	}
	if a.Voice.Language != "en-US" || a.Voice.Name != "Joanna" {
		t.Fatalf("voice defaults not applied: %+v", a.Voice)
	}

	if _, err := env.Engine.CreateAgent(env.Ctx, u.ID, engine.AgentSections{
		Identity: domain.Identity{Name: "Bot"},
		Brain:    domain.Brain{ID: "galaxy-brain"},
	}); err == nil {
		t.Fatal("unknown brain accepted")
	}
}

func TestAgentOwnership(t *testing.T) {
	env := newTestEnv(t)
	ada := registerTestUser(t, env, "ada@example.com")
	grace := registerTestUser(t, env, "grace@example.com")

	a, err := env.Engine.CreateAgent(env.Ctx, ada.ID, engine.AgentSections{
		Identity: domain.Identity{Name: "Ada's Bot"},
		Brain:    domain.Brain{ID: "starter"},
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	if _, err := env.Engine.GetAgentOwned(env.Ctx, grace.ID, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign agent should read as not found, got %v", err)
	}
	if err := env.Engine.DeleteAgent(env.Ctx, grace.ID, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign delete should read as not found, got %v", err)
	}
	if _, err := env.Engine.GetAgentOwned(env.Ctx, ada.ID, a.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
}

func TestConnectionUniqueKeyAndPatch(t *testing.T) {
	env := newTestEnv(t)
	u := registerTestUser(t, env, "ada@example.com")
	a, err := env.Engine.CreateAgent(env.Ctx, u.ID, engine.AgentSections{
		Identity: domain.Identity{Name: "Bot"},
		Brain:    domain.Brain{ID: "starter"},
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	c, err := env.Engine.CreateConnection(env.Ctx, u.ID, a.ID, engine.ConnectionFields{ProviderID: "gmail"})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}
	if c.ExtID != "gmail" || c.Status != domain.ConnectionStatusDefault {
		t.Fatalf("defaults not applied: %+v", c)
	}

	if _, err := env.Engine.CreateConnection(env.Ctx, u.ID, a.ID, engine.ConnectionFields{ProviderID: "gmail"}); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("duplicate (provider, ext) should conflict, got %v", err)
	}
	if _, err := env.Engine.CreateConnection(env.Ctx, u.ID, a.ID, engine.ConnectionFields{ProviderID: "myspace"}); err == nil {
		t.Fatal("unknown provider accepted")
	}

	token := "tok-1"
	updated, err := env.Engine.UpdateConnection(env.Ctx, u.ID, a.ID, c.ID, engine.ConnectionUpdateOptions{
		Status:    "connected",
		ConfigSet: true,
		Config:    map[string]any{"label": "inbox"},
		TokenSet:  true,
		Token:     &token,
	})
	if err != nil {
		t.Fatalf("update connection: %v", err)
	}
	if updated.Status != "connected" || updated.Token == nil || *updated.Token != "tok-1" {
		t.Fatalf("update not applied: %+v", updated)
	}

	cleared, err := env.Engine.UpdateConnection(env.Ctx, u.ID, a.ID, c.ID, engine.ConnectionUpdateOptions{TokenSet: true})
	if err != nil {
		t.Fatalf("clear token: %v", err)
	}
	if cleared.Token != nil {
		t.Fatalf("token not cleared: %v", *cleared.Token)
	}
	if cleared.Config["label"] != "inbox" {
		t.Fatalf("config lost on token clear: %+v", cleared.Config)
	}

	if err := env.Engine.DeleteConnection(env.Ctx, u.ID, a.ID, c.ID); err != nil {
		t.Fatalf("delete connection: %v", err)
	}
	if _, err := env.Engine.UpdateConnection(env.Ctx, u.ID, a.ID, c.ID, engine.ConnectionUpdateOptions{Status: "error"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("update of deleted connection should be not found, got %v", err)
	}
}

func TestDeleteAgentCascadesConnections(t *testing.T) {
	env := newTestEnv(t)
	u := registerTestUser(t, env, "ada@example.com")
	a, err := env.Engine.CreateAgent(env.Ctx, u.ID, engine.AgentSections{
		Identity: domain.Identity{Name: "Bot"},
		Brain:    domain.Brain{ID: "starter"},
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if _, err := env.Engine.CreateConnection(env.Ctx, u.ID, a.ID, engine.ConnectionFields{ProviderID: "gmail"}); err != nil {
		t.Fatalf("create connection: %v", err)
	}
	if err := env.Engine.DeleteAgent(env.Ctx, u.ID, a.ID); err != nil {
		t.Fatalf("delete agent: %v", err)
	}
	conns, err := env.Engine.Repo.ListConnections(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	if len(conns) != 0 {
		t.Fatalf("connections survived agent delete: %d", len(conns))
	}
}
