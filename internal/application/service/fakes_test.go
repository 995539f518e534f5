package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

// memStore is an in-memory ApprovalStore with the same compare-and-set rules as the SQLite store
type memStore struct {
	mu        sync.Mutex
	approvals map[string]*entity.Approval
	approvers map[string][]*entity.Approver

	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		approvals: make(map[string]*entity.Approval),
		approvers: make(map[string][]*entity.Approver),
	}
}

func (s *memStore) Create(ctx context.Context, approval *entity.Approval, approvers []*entity.Approver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.approvals[approval.ApprovalID]; ok {
		return fmt.Errorf("approval %s: %w", approval.ApprovalID, port.ErrConflict)
	}
	a := *approval
	s.approvals[a.ApprovalID] = &a
	rows := make([]*entity.Approver, 0, len(approvers))
	for i, ap := range approvers {
		c := *ap
		c.ID = int64(i + 1)
		rows = append(rows, &c)
	}
	s.approvers[a.ApprovalID] = rows
	return nil
}

func (s *memStore) Get(ctx context.Context, approvalID string) (*entity.Approval, []*entity.Approver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[approvalID]
	if !ok {
		return nil, nil, fmt.Errorf("approval %s: %w", approvalID, port.ErrNotFound)
	}
	cp := *a
	rows := make([]*entity.Approver, 0, len(s.approvers[approvalID]))
	for _, ap := range s.approvers[approvalID] {
		c := *ap
		rows = append(rows, &c)
	}
	return &cp, rows, nil
}

func (s *memStore) RecordApproverResponse(ctx context.Context, approvalID, approverRef string, outcome port.ApproverOutcome) (port.ResponseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[approvalID]
	if !ok {
		return port.ResponseNotFound, nil
	}
	for _, ap := range s.approvers[approvalID] {
		if ap.ApproverRef != approverRef {
			continue
		}
		if a.IsTerminal() {
			return port.ResponseRequestClosed, nil
		}
		if !ap.IsPending() {
			return port.ResponseAlreadyResponded, nil
		}
		at := outcome.RespondedAt
		ap.Status = outcome.Status
		ap.ResponseCode = outcome.ResponseCode
		ap.ResponseLabel = outcome.ResponseLabel
		ap.Comment = outcome.Comment
		ap.RespondedAt = &at
		return port.ResponseApplied, nil
	}
	return port.ResponseNotFound, nil
}

func (s *memStore) TransitionRequest(ctx context.Context, approvalID, fromStatus, toStatus string, fields port.ResolutionFields) (port.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[approvalID]
	if !ok {
		return port.TransitionNotFound, nil
	}
	if a.Status != fromStatus {
		return port.TransitionAlreadyTerminal, nil
	}
	at := fields.RespondedAt
	a.Status = toStatus
	a.ResultCode = fields.ResultCode
	a.ResultLabel = fields.ResultLabel
	a.Comment = fields.Comment
	a.RespondedBy = fields.RespondedBy
	a.RespondedAt = &at
	return port.TransitionApplied, nil
}

func (s *memStore) FindTimedOutPending(ctx context.Context, now time.Time, limit int) ([]*entity.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Approval
	for _, a := range s.approvals {
		if a.Status == entity.StatusPending && a.ExpiresAt().Before(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SetMessageRef(ctx context.Context, approvalID, approverRef, chatID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ap := range s.approvers[approvalID] {
		if ap.ApproverRef == approverRef {
			ap.ChannelChatID = chatID
			ap.ChannelMessageID = messageID
			return nil
		}
	}
	return port.ErrNotFound
}

func (s *memStore) ExpirePendingApprovers(ctx context.Context, approvalID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ap := range s.approvers[approvalID] {
		if ap.IsPending() {
			t := at
			ap.Status = entity.ApproverStatusTimeout
			ap.RespondedAt = &t
			n++
		}
	}
	return n, nil
}

func (s *memStore) FindPendingByRecipient(ctx context.Context, recipient string) ([]*entity.Approver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Approver
	for id, rows := range s.approvers {
		if s.approvals[id].Status != entity.StatusPending {
			continue
		}
		for _, ap := range rows {
			if ap.ChannelRecipient == recipient && ap.IsPending() {
				c := *ap
				out = append(out, &c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) List(ctx context.Context, filter port.ApprovalFilter) ([]*entity.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Approval
	for _, a := range s.approvals {
		if filter.Status == "" || a.Status == filter.Status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) Stats(ctx context.Context) (*entity.ApprovalStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &entity.ApprovalStats{ByStatus: make(map[string]int)}
	for id, a := range s.approvals {
		stats.Total++
		stats.ByStatus[a.Status]++
		stats.Approvers += len(s.approvers[id])
	}
	return stats, nil
}

func (s *memStore) approval(id string) *entity.Approval {
	a, _, _ := s.Get(context.Background(), id)
	return a
}

// mockMappings resolves user refs from a fixed table
type mockMappings struct {
	byRef      map[string]*entity.IdentityMapping
	byUsername map[string]*entity.IdentityMapping
	findErr    error
}

func newMockMappings(pairs ...string) *mockMappings {
	m := &mockMappings{
		byRef:      make(map[string]*entity.IdentityMapping),
		byUsername: make(map[string]*entity.IdentityMapping),
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.byRef[pairs[i]] = &entity.IdentityMapping{
			OriginUserRef:    pairs[i],
			ChannelRecipient: pairs[i+1],
			DisplayName:      "User " + pairs[i],
			IsActive:         true,
		}
	}
	return m
}

func (m *mockMappings) FindActive(ctx context.Context, originSystemRef, originUserRef string) (*entity.IdentityMapping, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.byRef[originUserRef], nil
}

func (m *mockMappings) FindActiveByRecipient(ctx context.Context, recipient string) (*entity.IdentityMapping, error) {
	for _, mp := range m.byRef {
		if mp.ChannelRecipient == recipient {
			return mp, nil
		}
	}
	return nil, nil
}

func (m *mockMappings) FindActiveByUsername(ctx context.Context, originSystemRef, username string) (*entity.IdentityMapping, error) {
	return m.byUsername[username], nil
}

func (m *mockMappings) Upsert(ctx context.Context, mapping *entity.IdentityMapping) error {
	m.byRef[mapping.OriginUserRef] = mapping
	return nil
}

func (m *mockMappings) Deactivate(ctx context.Context, originSystemRef, originUserRef string) error {
	delete(m.byRef, originUserRef)
	return nil
}

func (m *mockMappings) DeactivateByOrigin(ctx context.Context, originSystemRef string) (int, error) {
	n := len(m.byRef)
	m.byRef = make(map[string]*entity.IdentityMapping)
	return n, nil
}

func (m *mockMappings) ListActive(ctx context.Context, originSystemRef string) ([]*entity.IdentityMapping, error) {
	out := make([]*entity.IdentityMapping, 0, len(m.byRef))
	for _, mp := range m.byRef {
		out = append(out, mp)
	}
	return out, nil
}

// mockNotifier records channel traffic
type mockNotifier struct {
	mu sync.Mutex

	sendFunc     func(recipient string, msg port.ApprovalMessage) (port.MessageRef, error)
	finalizeFunc func(ref port.MessageRef, notice port.FinalNotice) error

	sent      []string
	finalized []port.FinalNotice
	texts     []string
	answers   []string
}

func (n *mockNotifier) Channel() string { return "mock" }

func (n *mockNotifier) SendApproval(ctx context.Context, recipient string, msg port.ApprovalMessage) (port.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendFunc != nil {
		return n.sendFunc(recipient, msg)
	}
	n.sent = append(n.sent, recipient)
	return port.MessageRef{ChatID: recipient, MessageID: "m-" + recipient}, nil
}

func (n *mockNotifier) Finalize(ctx context.Context, ref port.MessageRef, notice port.FinalNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.finalizeFunc != nil {
		return n.finalizeFunc(ref, notice)
	}
	n.finalized = append(n.finalized, notice)
	return nil
}

func (n *mockNotifier) SendText(ctx context.Context, recipient, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *mockNotifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.answers = append(n.answers, text)
	return nil
}

func (n *mockNotifier) Ping(ctx context.Context) (string, error) {
	return "@mock_bot", nil
}

func (n *mockNotifier) finalizedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.finalized)
}

// mockReporter records reports
type mockReporter struct {
	mu         sync.Mutex
	reportFunc func(report port.ResultReport) error
	reports    []port.ResultReport
	ctxErrs    []error
	deadlines  []time.Time
}

func (r *mockReporter) Report(ctx context.Context, report port.ResultReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	deadline, _ := ctx.Deadline()
	r.deadlines = append(r.deadlines, deadline)
	if r.reportFunc != nil {
		return r.reportFunc(report)
	}
	return nil
}

func (r *mockReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// mockEvents is an in-memory audit trail
type mockEvents struct {
	mu     sync.Mutex
	events []*entity.ApprovalEvent
}

func (e *mockEvents) Append(ctx context.Context, evt *entity.ApprovalEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return nil
}

func (e *mockEvents) ListByApproval(ctx context.Context, approvalID string) ([]*entity.ApprovalEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*entity.ApprovalEvent
	for _, evt := range e.events {
		if evt.ApprovalID == approvalID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (e *mockEvents) types(approvalID string) []string {
	evts, _ := e.ListByApproval(context.Background(), approvalID)
	out := make([]string, 0, len(evts))
	for _, evt := range evts {
		out = append(out, evt.EventType)
	}
	return out
}

// mockLogger discards logs
type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
