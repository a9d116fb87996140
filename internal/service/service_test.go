package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/and161185/keygate/internal/clock"
	"github.com/and161185/keygate/internal/metrics"
	"github.com/and161185/keygate/internal/model"
	"github.com/and161185/keygate/internal/repository/memory"
)

const ownerID int64 = 1

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type env struct {
	store  *memory.Store
	clock  *clock.Fake
	ent    *EntitlementService
	admins *AdminService
}

func newEnv(t *testing.T) env {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(t0)
	log := zaptest.NewLogger(t)
	e := env{
		store:  st,
		clock:  clk,
		ent:    NewEntitlementService(st, st, st, clk, log, metrics.Nop(), EntitlementOptions{}),
		admins: NewAdminService(st, ownerID, clk, log),
	}
	if err := e.admins.EnsureOwner(context.Background()); err != nil {
		t.Fatalf("EnsureOwner: %v", err)
	}
	return e
}

func mustIssue(t *testing.T, e env, d time.Duration) model.IssuedKey {
	t.Helper()
	k, err := e.ent.IssueKey(context.Background(), ownerID, d)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	return k
}

var errBoom = errors.New("boom")
