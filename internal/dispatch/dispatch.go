// Package dispatch turns chat-style command text into engine calls and reply text.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/clock"
	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/limiter"
	"github.com/and161185/keygate/internal/metrics"
	"github.com/and161185/keygate/internal/model"
)

// Throttled operation names.
const (
	OpRedeem = "redeem"
	OpCheck  = "check"
)

// Entitlements is the subset of the entitlement service used by commands.
type Entitlements interface {
	GrantAccess(ctx context.Context, granter, userID int64, d time.Duration) (model.AccessGrant, error)
	HasAccess(ctx context.Context, userID int64) (bool, error)
	AccessInfo(ctx context.Context, userID int64) (*model.AccessGrant, error)
	RevokeAccess(ctx context.Context, userID int64) error
	IssueKey(ctx context.Context, issuer int64, d time.Duration) (model.IssuedKey, error)
	Redeem(ctx context.Context, code string, userID int64) (model.AccessGrant, error)
	KeyStatus(ctx context.Context, code string) (*model.IssuedKey, error)
	ListKeys(ctx context.Context, limit int) ([]model.IssuedKey, error)
	SweepExpired(ctx context.Context) (int64, error)
}

// Admins is the subset of the admin registry used by commands.
type Admins interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	IsOwner(userID int64) bool
	AddAdmin(ctx context.Context, requester, target int64) error
	RemoveAdmin(ctx context.Context, requester, target int64) error
	ListAdmins(ctx context.Context) ([]model.Admin, error)
}

type handler func(ctx context.Context, userID int64, args []string) string

type command struct {
	run   handler
	admin bool // requires admin membership before run
	usage string
}

// Dispatcher routes commands. It is safe for concurrent use.
type Dispatcher struct {
	ent      Entitlements
	admins   Admins
	lim      limiter.Limiter
	verifier Verifier
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics

	commands map[string]command
}

// New constructs a Dispatcher. A nil verifier means Unavailable.
func New(ent Entitlements, admins Admins, lim limiter.Limiter, v Verifier, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if v == nil {
		v = Unavailable{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{ent: ent, admins: admins, lim: lim, verifier: v, clock: clk, log: log, metrics: m}
	d.commands = map[string]command{
		"/start":       {run: d.help},
		"/help":        {run: d.help},
		"/redeem":      {run: d.redeem, usage: "/redeem <code>"},
		"/info":        {run: d.info},
		"/check":       {run: d.check, usage: "/check <input>"},
		"/genkey":      {run: d.genKey, admin: true, usage: "/genkey <duration>"},
		"/keystatus":   {run: d.keyStatus, admin: true, usage: "/keystatus <code>"},
		"/keys":        {run: d.keys, admin: true},
		"/grant":       {run: d.grant, admin: true, usage: "/grant <user_id> <duration>"},
		"/revoke":      {run: d.revoke, admin: true, usage: "/revoke <user_id>"},
		"/addadmin":    {run: d.addAdmin, usage: "/addadmin <user_id>"},
		"/removeadmin": {run: d.removeAdmin, usage: "/removeadmin <user_id>"},
		"/admins":      {run: d.listAdmins, admin: true},
		"/sweep":       {run: d.sweep, admin: true},
	}
	return d
}

// Handle executes one command line for userID and returns the reply.
func (d *Dispatcher) Handle(ctx context.Context, userID int64, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return msgUnknown
	}
	name, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	cmd, ok := d.commands[name]
	if !ok {
		return msgUnknown
	}
	d.log.Debug("command", zap.Int64("user_id", userID), zap.String("cmd", name))

	if cmd.admin {
		ok, err := d.admins.IsAdmin(ctx, userID)
		if err != nil {
			return message(err)
		}
		if !ok {
			return message(errs.ErrForbidden)
		}
	}
	return cmd.run(ctx, userID, fields[1:])
}

// throttle consumes one slot of op. A non-empty reply means the call must stop.
func (d *Dispatcher) throttle(ctx context.Context, userID int64, op string) string {
	ok, retry, err := d.lim.Allow(ctx, userID, op)
	if err != nil {
		d.log.Error("limiter failure", zap.String("op", op), zap.Error(err))
		return msgUnavailable
	}
	if !ok {
		d.metrics.Throttled(ctx, op)
		return fmt.Sprintf("%s Retry in %s.", message(errs.ErrRateLimited), retry.Round(time.Second))
	}
	return ""
}

func usage(u string) string { return "Usage: " + u }

func parseUserID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func (d *Dispatcher) help(ctx context.Context, userID int64, _ []string) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/redeem <code> - activate an access key\n")
	b.WriteString("/info - show your access\n")
	b.WriteString("/check <input> - run a verification (requires access)\n")
	if ok, _ := d.admins.IsAdmin(ctx, userID); ok {
		b.WriteString("\nAdmin:\n")
		b.WriteString("/genkey <duration> - issue a key, e.g. /genkey 3d\n")
		b.WriteString("/keystatus <code>, /keys\n")
		b.WriteString("/grant <user_id> <duration>, /revoke <user_id>\n")
		b.WriteString("/addadmin <user_id>, /removeadmin <user_id>, /admins\n")
		b.WriteString("/sweep - remove expired grants now\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) redeem(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 {
		return usage(d.commands["/redeem"].usage)
	}
	if msg := d.throttle(ctx, userID, OpRedeem); msg != "" {
		return msg
	}
	g, err := d.ent.Redeem(ctx, args[0], userID)
	if errors.Is(err, errs.ErrNotFound) {
		return "Invalid code."
	}
	if err != nil {
		return message(err)
	}
	return fmt.Sprintf("Access granted until %s.", g.ExpiresAt.UTC().Format(time.RFC3339))
}

func (d *Dispatcher) info(ctx context.Context, userID int64, _ []string) string {
	admin := "no"
	if ok, err := d.admins.IsAdmin(ctx, userID); err != nil {
		return message(err)
	} else if ok {
		admin = "yes"
	}

	g, err := d.ent.AccessInfo(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Sprintf("You have no access.\nAdmin: %s", admin)
	}
	if err != nil {
		return message(err)
	}
	now := d.clock.Now()
	if !g.Active(now) {
		return fmt.Sprintf("Access expired at %s.\nAdmin: %s", g.ExpiresAt.UTC().Format(time.RFC3339), admin)
	}
	hours := int64(g.ExpiresAt.Sub(now) / time.Hour)
	return fmt.Sprintf("Access expires in %dh (%s).\nAdmin: %s", hours, g.ExpiresAt.UTC().Format(time.RFC3339), admin)
}

func (d *Dispatcher) check(ctx context.Context, userID int64, args []string) string {
	if len(args) == 0 {
		return usage(d.commands["/check"].usage)
	}
	allowed, err := d.ent.HasAccess(ctx, userID)
	if err != nil {
		return message(err)
	}
	if !allowed {
		if allowed, err = d.admins.IsAdmin(ctx, userID); err != nil {
			return message(err)
		}
	}
	if !allowed {
		return msgNoAccess
	}
	if msg := d.throttle(ctx, userID, OpCheck); msg != "" {
		return msg
	}

	v, err := d.verifier.Verify(ctx, strings.Join(args, " "))
	if err != nil {
		d.log.Warn("verifier failure", zap.Int64("user_id", userID), zap.Error(err))
		v = model.VerdictUnavailable
	}
	switch v {
	case model.VerdictApproved:
		return "Result: approved."
	case model.VerdictDeclined:
		return "Result: declined."
	default:
		return "Verification is unavailable right now."
	}
}

func (d *Dispatcher) genKey(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 {
		return usage(d.commands["/genkey"].usage)
	}
	dur, err := ParseDuration(args[0])
	if err != nil {
		return message(err)
	}
	k, err := d.ent.IssueKey(ctx, userID, dur)
	if err != nil {
		return message(err)
	}
	return fmt.Sprintf("Key: %s\nGrants: %s\nRedeem by: %s",
		k.Code, FormatDuration(k.Duration), k.ExpiresAt.UTC().Format(time.RFC3339))
}

func (d *Dispatcher) keyStatus(ctx context.Context, _ int64, args []string) string {
	if len(args) != 1 {
		return usage(d.commands["/keystatus"].usage)
	}
	k, err := d.ent.KeyStatus(ctx, args[0])
	if err != nil {
		return message(err)
	}
	return describeKey(*k, d.clock.Now())
}

func describeKey(k model.IssuedKey, now time.Time) string {
	line := fmt.Sprintf("%s: %s, grants %s", k.Code, k.Status(now), FormatDuration(k.Duration))
	if k.RedeemedBy != nil && k.RedeemedAt != nil {
		line += fmt.Sprintf(", redeemed by %d at %s", *k.RedeemedBy, k.RedeemedAt.UTC().Format(time.RFC3339))
	}
	return line
}

func (d *Dispatcher) keys(ctx context.Context, _ int64, _ []string) string {
	ks, err := d.ent.ListKeys(ctx, 0)
	if err != nil {
		return message(err)
	}
	if len(ks) == 0 {
		return "No keys issued."
	}
	now := d.clock.Now()
	lines := make([]string, 0, len(ks))
	for _, k := range ks {
		lines = append(lines, describeKey(k, now))
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) grant(ctx context.Context, userID int64, args []string) string {
	if len(args) != 2 {
		return usage(d.commands["/grant"].usage)
	}
	target, err := parseUserID(args[0])
	if err != nil {
		return usage(d.commands["/grant"].usage)
	}
	dur, err := ParseDuration(args[1])
	if err != nil {
		return message(err)
	}
	g, err := d.ent.GrantAccess(ctx, userID, target, dur)
	if err != nil {
		return message(err)
	}
	return fmt.Sprintf("Access granted to %d until %s.", target, g.ExpiresAt.UTC().Format(time.RFC3339))
}

func (d *Dispatcher) revoke(ctx context.Context, _ int64, args []string) string {
	if len(args) != 1 {
		return usage(d.commands["/revoke"].usage)
	}
	target, err := parseUserID(args[0])
	if err != nil {
		return usage(d.commands["/revoke"].usage)
	}
	err = d.ent.RevokeAccess(ctx, target)
	if errors.Is(err, errs.ErrNotFound) {
		return "That user has no access."
	}
	if err != nil {
		return message(err)
	}
	return fmt.Sprintf("Access revoked for %d.", target)
}

func (d *Dispatcher) addAdmin(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 {
		return usage(d.commands["/addadmin"].usage)
	}
	target, err := parseUserID(args[0])
	if err != nil {
		return usage(d.commands["/addadmin"].usage)
	}
	if err := d.admins.AddAdmin(ctx, userID, target); err != nil {
		return message(err)
	}
	return fmt.Sprintf("Admin %d added.", target)
}

func (d *Dispatcher) removeAdmin(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 {
		return usage(d.commands["/removeadmin"].usage)
	}
	target, err := parseUserID(args[0])
	if err != nil {
		return usage(d.commands["/removeadmin"].usage)
	}
	if err := d.admins.RemoveAdmin(ctx, userID, target); err != nil {
		return message(err)
	}
	return fmt.Sprintf("Admin %d removed.", target)
}

func (d *Dispatcher) listAdmins(ctx context.Context, _ int64, _ []string) string {
	as, err := d.admins.ListAdmins(ctx)
	if err != nil {
		return message(err)
	}
	lines := make([]string, 0, len(as)+1)
	lines = append(lines, "Admins:")
	for _, a := range as {
		l := strconv.FormatInt(a.UserID, 10)
		if a.IsOwner {
			l += " (owner)"
		}
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) sweep(ctx context.Context, userID int64, _ []string) string {
	n, err := d.ent.SweepExpired(ctx)
	if err != nil {
		return message(err)
	}
	d.log.Info("manual sweep", zap.Int64("user_id", userID), zap.Int64("removed", n))
	return fmt.Sprintf("Removed %d expired grant(s).", n)
}
