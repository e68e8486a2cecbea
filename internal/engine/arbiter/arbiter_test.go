package arbiter

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/louisbranch/statemachine.host/internal/engine/identity"
	"github.com/louisbranch/statemachine.host/internal/engine/notify"
	"github.com/louisbranch/statemachine.host/internal/engine/session"
	"github.com/louisbranch/statemachine.host/internal/engine/sessionlock"
	"github.com/louisbranch/statemachine.host/internal/engine/storage"
	"github.com/louisbranch/statemachine.host/internal/engine/storage/sqlite"
	"github.com/louisbranch/statemachine.host/internal/engine/template"
	"github.com/louisbranch/statemachine.host/internal/engine/template/chess"
	"github.com/louisbranch/statemachine.host/internal/engine/template/rps"
	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

type harness struct {
	arbiter  *Arbiter
	sessions *session.Service
	identity *identity.Service
	notifier *notify.Notifier
}

type player struct {
	agentID string
	bearer  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	registry := template.NewRegistry(rps.New(), chess.New())
	notifier := notify.New()
	identitySvc := identity.NewService(store)
	return &harness{
		arbiter:  New(identitySvc, store, registry, sessionlock.New(), notifier),
		sessions: session.NewService(store, registry, notifier),
		identity: identitySvc,
		notifier: notifier,
	}
}

func (h *harness) newPlayer(t *testing.T) player {
	t.Helper()
	ctx := context.Background()
	reg, err := h.identity.Register(ctx)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	creds, err := h.identity.Claim(ctx, reg.AgentID, reg.ClaimSecret)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	return player{agentID: creds.AgentID, bearer: creds.BearerSecret}
}

func (h *harness) newChessGame(t *testing.T) (string, player, player) {
	t.Helper()
	white := h.newPlayer(t)
	black := h.newPlayer(t)
	view, err := h.sessions.Create(context.Background(), white.agentID, "chess.v1", map[string]string{
		"white": white.agentID,
		"black": black.agentID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return view.SessionID, white, black
}

func (h *harness) newRPSGame(t *testing.T) (string, player, player) {
	t.Helper()
	p1 := h.newPlayer(t)
	p2 := h.newPlayer(t)
	view, err := h.sessions.Create(context.Background(), p1.agentID, "rps.v1", map[string]string{
		"player_1": p1.agentID,
		"player_2": p2.agentID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return view.SessionID, p1, p2
}

func tick(v int64) *int64 { return &v }

func TestChessAlternatingMoves(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, white, black := h.newChessGame(t)

	result, err := h.arbiter.Submit(ctx, white.bearer, sessionID, "e2e4", tick(0))
	if err != nil {
		t.Fatalf("white move: %v", err)
	}
	if result.Tick != 1 {
		t.Fatalf("tick = %d, want 1", result.Tick)
	}
	if result.Status != storage.StatusActive {
		t.Fatalf("status = %q, want active", result.Status)
	}

	result, err = h.arbiter.Submit(ctx, black.bearer, sessionID, "e7e5", tick(1))
	if err != nil {
		t.Fatalf("black move: %v", err)
	}
	if result.Tick != 2 {
		t.Fatalf("tick = %d, want 2", result.Tick)
	}
}

func TestChessOutOfTurnRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, _, black := h.newChessGame(t)

	_, err := h.arbiter.Submit(ctx, black.bearer, sessionID, "e7e5", tick(0))
	if apperrors.CodeOf(err) != apperrors.CodeInvalidAction {
		t.Fatalf("code = %v, want INVALID_ACTION", apperrors.CodeOf(err))
	}
}

func TestChessStaleTickConflicts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, white, black := h.newChessGame(t)

	if _, err := h.arbiter.Submit(ctx, white.bearer, sessionID, "e2e4", tick(0)); err != nil {
		t.Fatalf("white move: %v", err)
	}

	_, err := h.arbiter.Submit(ctx, black.bearer, sessionID, "e7e5", tick(0))
	if apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("code = %v, want CONFLICT", apperrors.CodeOf(err))
	}

	// Re-read and retry with the current tick.
	view, err := h.sessions.Read(ctx, black.agentID, sessionID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := h.arbiter.Submit(ctx, black.bearer, sessionID, "e7e5", tick(view.Tick)); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestChessMissingExpectedTick(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, white, _ := h.newChessGame(t)

	_, err := h.arbiter.Submit(ctx, white.bearer, sessionID, "e2e4", nil)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidRequest {
		t.Fatalf("code = %v, want INVALID_REQUEST", apperrors.CodeOf(err))
	}
}

func TestChessScholarsMate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, white, black := h.newChessGame(t)

	moves := []struct {
		p    player
		move string
	}{
		{white, "e2e4"}, {black, "e7e5"},
		{white, "f1c4"}, {black, "b8c6"},
		{white, "d1h5"}, {black, "g8f6"},
		{white, "h5f7"},
	}
	var last Result
	for i, m := range moves {
		result, err := h.arbiter.Submit(ctx, m.p.bearer, sessionID, m.move, tick(int64(i)))
		if err != nil {
			t.Fatalf("move %d (%s): %v", i, m.move, err)
		}
		last = result
	}

	if last.Status != storage.StatusCompleted {
		t.Fatalf("status = %q, want completed", last.Status)
	}
	var state struct {
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(last.State, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Outcome != "white_wins" {
		t.Fatalf("outcome = %q, want white_wins", state.Outcome)
	}

	// The session is frozen.
	_, err := h.arbiter.Submit(ctx, black.bearer, sessionID, "e8f7", tick(7))
	if apperrors.CodeOf(err) != apperrors.CodeInvalidAction {
		t.Fatalf("post-terminal code = %v, want INVALID_ACTION", apperrors.CodeOf(err))
	}
}

func TestRPSResolution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, p1, p2 := h.newRPSGame(t)

	first, err := h.arbiter.Submit(ctx, p1.bearer, sessionID, "rock", nil)
	if err != nil {
		t.Fatalf("player_1 commit: %v", err)
	}
	if first.Status != storage.StatusActive {
		t.Fatalf("status = %q, want active", first.Status)
	}

	// Opponent's pending choice is masked in player_2's view.
	view, err := h.sessions.Read(ctx, p2.agentID, sessionID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var masked struct {
		Choices map[string]string `json:"choices"`
	}
	if err := json.Unmarshal(view.State, &masked); err != nil {
		t.Fatalf("unmarshal view: %v", err)
	}
	if masked.Choices["player_1"] != "hidden" {
		t.Fatalf("player_1 choice = %q, want hidden", masked.Choices["player_1"])
	}

	second, err := h.arbiter.Submit(ctx, p2.bearer, sessionID, "scissors", nil)
	if err != nil {
		t.Fatalf("player_2 commit: %v", err)
	}
	if second.Status != storage.StatusCompleted {
		t.Fatalf("status = %q, want completed", second.Status)
	}
	var resolved struct {
		Result  string            `json:"result"`
		Choices map[string]string `json:"choices"`
	}
	if err := json.Unmarshal(second.State, &resolved); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if resolved.Result != "player_1_wins" {
		t.Fatalf("result = %q, want player_1_wins", resolved.Result)
	}
	if resolved.Choices["player_1"] != "rock" {
		t.Fatalf("revealed choice = %q, want rock", resolved.Choices["player_1"])
	}
}

func TestRPSDoubleSubmit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, p1, _ := h.newRPSGame(t)

	if _, err := h.arbiter.Submit(ctx, p1.bearer, sessionID, "rock", nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, err := h.arbiter.Submit(ctx, p1.bearer, sessionID, "paper", nil)
	if apperrors.CodeOf(err) != apperrors.CodeAlreadyActed {
		t.Fatalf("code = %v, want ALREADY_ACTED", apperrors.CodeOf(err))
	}
}

func TestSubmitAuthChecks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, white, _ := h.newChessGame(t)
	outsider := h.newPlayer(t)

	if _, err := h.arbiter.Submit(ctx, "", sessionID, "e2e4", tick(0)); apperrors.CodeOf(err) != apperrors.CodeUnauthorized {
		t.Fatalf("empty bearer code = %v, want UNAUTHORIZED", apperrors.CodeOf(err))
	}
	if _, err := h.arbiter.Submit(ctx, "bogus-token", sessionID, "e2e4", tick(0)); apperrors.CodeOf(err) != apperrors.CodeUnauthorized {
		t.Fatalf("bad bearer code = %v, want UNAUTHORIZED", apperrors.CodeOf(err))
	}
	if _, err := h.arbiter.Submit(ctx, outsider.bearer, sessionID, "e2e4", tick(0)); apperrors.CodeOf(err) != apperrors.CodeForbidden {
		t.Fatalf("outsider code = %v, want FORBIDDEN", apperrors.CodeOf(err))
	}
	if _, err := h.arbiter.Submit(ctx, white.bearer, "no-such-session", "e2e4", tick(0)); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("missing session code = %v, want NOT_FOUND", apperrors.CodeOf(err))
	}
}

func TestSubmitOnWaitingSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p1 := h.newPlayer(t)

	view, err := h.sessions.Create(ctx, p1.agentID, "rps.v1", map[string]string{"player_1": p1.agentID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = h.arbiter.Submit(ctx, p1.bearer, view.SessionID, "rock", nil)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidAction {
		t.Fatalf("code = %v, want INVALID_ACTION", apperrors.CodeOf(err))
	}
}

func TestSubmitPublishesChangeEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, white, _ := h.newChessGame(t)

	sub := h.notifier.Subscribe(sessionID)
	defer sub.Close()

	if _, err := h.arbiter.Submit(ctx, white.bearer, sessionID, "e2e4", tick(0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case event := <-sub.Events():
		if event.SessionID != sessionID {
			t.Fatalf("event session = %q, want %q", event.SessionID, sessionID)
		}
	default:
		t.Fatal("expected change event")
	}
}

func TestLogMatchesCommits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sessionID, white, black := h.newChessGame(t)

	if _, err := h.arbiter.Submit(ctx, white.bearer, sessionID, "e2e4", tick(0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := h.arbiter.Submit(ctx, black.bearer, sessionID, "e7e5", tick(1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	entries, err := h.sessions.ReadLog(ctx, white.agentID, sessionID)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for i, want := range []struct {
		role   string
		action string
	}{{"white", "e2e4"}, {"black", "e7e5"}} {
		if entries[i].Tick != int64(i) {
			t.Fatalf("entry %d tick = %d, want %d", i, entries[i].Tick, i)
		}
		if entries[i].Role != want.role || entries[i].Action != want.action {
			t.Fatalf("entry %d = %s/%s, want %s/%s", i, entries[i].Role, entries[i].Action, want.role, want.action)
		}
	}
}
