package monitor

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rmarques/fanvuebot/internal/database"
	"github.com/rmarques/fanvuebot/internal/fanvue"
	"github.com/rmarques/fanvuebot/internal/state"
)

type sentReply struct {
	conversationID string
	text           string
}

type fakePlatform struct {
	mu       sync.Mutex
	messages []fanvue.Message
	fetchErr error
	sendErr  error
	fetches  int
	sent     []sentReply
}

func (f *fakePlatform) FetchNewMessages(_ context.Context) ([]fanvue.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]fanvue.Message(nil), f.messages...), nil
}

func (f *fakePlatform) SendReply(_ context.Context, conversationID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentReply{conversationID: conversationID, text: text})
	return nil
}

func (f *fakePlatform) sentReplies() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.sent...)
}

func (f *fakePlatform) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

type genCall struct {
	persona string
	handle  string
	content string
	history []fanvue.Turn
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []genCall
}

func (g *fakeGenerator) Generate(_ context.Context, persona string, msg fanvue.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, genCall{persona: persona, handle: msg.SenderHandle, content: msg.Text, history: msg.History})
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGenerator) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func testAccount(id, persona string) database.Account {
	return database.Account{
		ID:           id,
		APIKey:       "key-" + id,
		SystemPrompt: sql.NullString{String: persona, Valid: persona != ""},
		ExpiresAt:    time.Now().Add(time.Hour),
		UserID:       "user-1",
	}
}

func testMessage(id, conversationID, handle, text string, sentAt time.Time) fanvue.Message {
	return fanvue.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderHandle:   handle,
		Text:           text,
		SentAt:         sentAt,
	}
}

func newTestState(t *testing.T) *state.Store {
	t.Helper()
	st, err := state.Load(filepath.Join(t.TempDir(), "state.json"), nil)
	if err != nil {
		t.Fatalf("state.Load() error = %v", err)
	}
	return st
}

func newTestMonitor(account database.Account, client *fakePlatform, gen *fakeGenerator, st *state.Store) *Monitor {
	return New(account, client, gen, st, 10*time.Millisecond, 10*time.Millisecond, nil)
}

func TestNoDuplicateRepliesAcrossCycles(t *testing.T) {
	t.Parallel()

	now := time.Now()
	client := &fakePlatform{messages: []fanvue.Message{
		testMessage("m-1", "sub-1", "alice", "hi", now),
		testMessage("m-2", "sub-1", "alice", "you there?", now.Add(time.Minute)),
	}}
	gen := &fakeGenerator{reply: "hello!"}
	m := newTestMonitor(testAccount("acct-1", ""), client, gen, newTestState(t))

	// The platform re-serves the same messages on every poll; only the
	// first cycle may answer them.
	for i := 0; i < 3; i++ {
		if err := m.runCycle(t.Context()); err != nil {
			t.Fatalf("runCycle() #%d error = %v", i, err)
		}
	}

	if got := len(client.sentReplies()); got != 2 {
		t.Errorf("sent %d replies across repeated cycles, want 2", got)
	}
	if got := gen.callCount(); got != 2 {
		t.Errorf("generator called %d times, want 2", got)
	}
}

func TestRepliesFollowMessageOrder(t *testing.T) {
	t.Parallel()

	now := time.Now()
	client := &fakePlatform{messages: []fanvue.Message{
		testMessage("m-1", "sub-1", "alice", "first", now),
		testMessage("m-2", "sub-2", "bob", "second", now.Add(time.Minute)),
		testMessage("m-3", "sub-1", "alice", "third", now.Add(2*time.Minute)),
	}}
	gen := &fakeGenerator{reply: "ok"}
	m := newTestMonitor(testAccount("acct-1", ""), client, gen, newTestState(t))

	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}

	wantContents := []string{"first", "second", "third"}
	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.calls) != len(wantContents) {
		t.Fatalf("generator called %d times, want %d", len(gen.calls), len(wantContents))
	}
	for i, want := range wantContents {
		if gen.calls[i].content != want {
			t.Errorf("generation #%d content = %q, want %q", i, gen.calls[i].content, want)
		}
	}
}

func TestSelfMessagesNeverReachGenerator(t *testing.T) {
	t.Parallel()

	msg := testMessage("m-1", "sub-1", "creator", "thanks!", time.Now())
	msg.FromSelf = true
	client := &fakePlatform{messages: []fanvue.Message{msg}}
	gen := &fakeGenerator{reply: "never"}
	m := newTestMonitor(testAccount("acct-1", ""), client, gen, newTestState(t))

	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}
	if got := gen.callCount(); got != 0 {
		t.Errorf("generator called %d times for a self message, want 0", got)
	}
	if got := len(client.sentReplies()); got != 0 {
		t.Errorf("sent %d replies for a self message, want 0", got)
	}
}

func TestEmptyMessagesNeverReachGenerator(t *testing.T) {
	t.Parallel()

	st := newTestState(t)
	now := time.Now()
	client := &fakePlatform{messages: []fanvue.Message{
		testMessage("m-1", "sub-1", "alice", "", now),
		testMessage("m-2", "sub-1", "alice", "  \n\t", now.Add(time.Minute)),
	}}
	gen := &fakeGenerator{reply: "never"}
	m := newTestMonitor(testAccount("acct-1", ""), client, gen, st)

	// Media-only and blank messages get no reply and stay unrecorded.
	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}
	if got := gen.callCount(); got != 0 {
		t.Errorf("generator called %d times for empty messages, want 0", got)
	}
	if got := len(client.sentReplies()); got != 0 {
		t.Errorf("sent %d replies for empty messages, want 0", got)
	}
	if st.IsProcessed("acct-1", "m-1") || st.IsProcessed("acct-1", "m-2") {
		t.Error("empty message recorded as processed")
	}
}

func TestSendFailureLeavesMessageUnprocessed(t *testing.T) {
	t.Parallel()

	st := newTestState(t)
	client := &fakePlatform{messages: []fanvue.Message{
		testMessage("m-1", "sub-1", "alice", "hi", time.Now()),
	}}
	client.setSendErr(fanvue.ErrNetwork)
	gen := &fakeGenerator{reply: "hello!"}
	m := newTestMonitor(testAccount("acct-1", ""), client, gen, st)

	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}
	if st.IsProcessed("acct-1", "m-1") {
		t.Error("message marked processed despite failed send")
	}

	// The next cycle retries and succeeds.
	client.setSendErr(nil)
	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("second runCycle() error = %v", err)
	}
	if !st.IsProcessed("acct-1", "m-1") {
		t.Error("message not marked processed after successful send")
	}
	if got := len(client.sentReplies()); got != 1 {
		t.Errorf("sent %d replies, want 1", got)
	}
}

func TestGenerationFailureLeavesMessageUnprocessed(t *testing.T) {
	t.Parallel()

	st := newTestState(t)
	client := &fakePlatform{messages: []fanvue.Message{
		testMessage("m-1", "sub-1", "alice", "hi", time.Now()),
	}}
	gen := &fakeGenerator{reply: "hello!"}
	gen.setErr(errors.New("generation failed"))
	m := newTestMonitor(testAccount("acct-1", ""), client, gen, st)

	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}
	if len(client.sentReplies()) != 0 {
		t.Error("reply sent despite generation failure")
	}
	if st.IsProcessed("acct-1", "m-1") {
		t.Error("message marked processed despite generation failure")
	}

	gen.setErr(nil)
	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("second runCycle() error = %v", err)
	}
	if !st.IsProcessed("acct-1", "m-1") {
		t.Error("message not marked processed after recovery")
	}
}

func TestPersonaReplyScenario(t *testing.T) {
	t.Parallel()

	st := newTestState(t)
	msg := testMessage("m-1", "sub-1", "sam", "hi", time.Now())
	msg.History = []fanvue.Turn{
		{FromSelf: true, Text: "welcome!"},
		{FromSelf: false, Text: "hi"},
	}
	client := &fakePlatform{messages: []fanvue.Message{msg}}
	gen := &fakeGenerator{reply: "Hey! How are you?"}
	m := newTestMonitor(testAccount("acct-1", "You are Aria"), client, gen, st)

	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("runCycle() error = %v", err)
	}

	gen.mu.Lock()
	if len(gen.calls) != 1 {
		t.Fatalf("generator called %d times, want 1", len(gen.calls))
	}
	call := gen.calls[0]
	gen.mu.Unlock()
	if call.persona != "You are Aria" || call.content != "hi" || call.handle != "sam" {
		t.Errorf("generator call = %+v, want persona=You are Aria handle=sam content=hi", call)
	}
	if len(call.history) != 2 {
		t.Errorf("generator received %d history turns, want 2", len(call.history))
	}

	sent := client.sentReplies()
	if len(sent) != 1 || sent[0].text != "Hey! How are you?" || sent[0].conversationID != "sub-1" {
		t.Errorf("sent = %+v, want one reply %q to sub-1", sent, "Hey! How are you?")
	}
	if !st.IsProcessed("acct-1", "m-1") {
		t.Error("message id not recorded after confirmed send")
	}

	// A later poll serving the same message id must trigger nothing.
	if err := m.runCycle(t.Context()); err != nil {
		t.Fatalf("second runCycle() error = %v", err)
	}
	if got := gen.callCount(); got != 1 {
		t.Errorf("generator called %d times after re-poll, want 1", got)
	}
}

func TestFailureIsolationAcrossAccounts(t *testing.T) {
	t.Parallel()

	st := newTestState(t)
	now := time.Now()

	clientA := &fakePlatform{messages: []fanvue.Message{
		testMessage("m-a", "sub-a", "alice", "hi A", now),
	}}
	clientA.setSendErr(fanvue.ErrNetwork)
	clientB := &fakePlatform{messages: []fanvue.Message{
		testMessage("m-b", "sub-b", "bob", "hi B", now),
	}}

	monitorA := newTestMonitor(testAccount("acct-a", ""), clientA, &fakeGenerator{reply: "ra"}, st)
	monitorB := newTestMonitor(testAccount("acct-b", ""), clientB, &fakeGenerator{reply: "rb"}, st)

	if err := monitorA.runCycle(t.Context()); err != nil {
		t.Fatalf("account A runCycle() error = %v", err)
	}
	if err := monitorB.runCycle(t.Context()); err != nil {
		t.Fatalf("account B runCycle() error = %v", err)
	}

	if st.IsProcessed("acct-a", "m-a") {
		t.Error("account A's failed message marked processed")
	}
	if !st.IsProcessed("acct-b", "m-b") {
		t.Error("account B's message not marked processed despite A's failure")
	}
	if got := len(clientB.sentReplies()); got != 1 {
		t.Errorf("account B sent %d replies, want 1", got)
	}
}

func TestRunStopsOnAuthFailure(t *testing.T) {
	t.Parallel()

	client := &fakePlatform{messages: []fanvue.Message{
		testMessage("m-1", "sub-1", "alice", "hi", time.Now()),
	}}
	client.setSendErr(fanvue.ErrAuth)
	m := newTestMonitor(testAccount("acct-1", ""), client, &fakeGenerator{reply: "x"}, newTestState(t))

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after authentication failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	client := &fakePlatform{}
	m := newTestMonitor(testAccount("acct-1", ""), client, &fakeGenerator{reply: "x"}, newTestState(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after context cancellation")
	}

	client.mu.Lock()
	fetches := client.fetches
	client.mu.Unlock()
	if fetches == 0 {
		t.Error("Run() never polled before cancellation")
	}
}
