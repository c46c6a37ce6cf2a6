package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/BenyBen1/EstienCapital-sub000/internal/store"
	"github.com/google/uuid"
)

// memRepo is an in-memory store.Repository. Every method holds mu for its whole
// body, which gives the same conditional-update semantics the SQL relies on.
type memRepo struct {
	mu sync.Mutex

	profiles     map[uuid.UUID]*domain.Profile
	wallets      map[string]*domain.Wallet
	security     map[uuid.UUID]*domain.SecuritySettings
	transactions map[uuid.UUID]*domain.Transaction
	kyc          map[uuid.UUID]*domain.KYCSubmission
	groups       map[uuid.UUID]*domain.AccountGroup
	members      map[uuid.UUID][]*domain.GroupMember
	events       []domain.NotificationEvent

	createKYCErr error
	clock        time.Time
}

var _ store.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		profiles:     map[uuid.UUID]*domain.Profile{},
		wallets:      map[string]*domain.Wallet{},
		security:     map[uuid.UUID]*domain.SecuritySettings{},
		transactions: map[uuid.UUID]*domain.Transaction{},
		kyc:          map[uuid.UUID]*domain.KYCSubmission{},
		groups:       map[uuid.UUID]*domain.AccountGroup{},
		members:      map[uuid.UUID][]*domain.GroupMember{},
		clock:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp so ordering is deterministic.
func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func walletKey(userID uuid.UUID, currency string) string {
	return userID.String() + "|" + currency
}

func (m *memRepo) addProfile(role string, balance int64) *domain.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	name := "Test User"
	p := &domain.Profile{
		ID:          id,
		Email:       id.String()[:8] + "@example.com",
		FullName:    &name,
		Role:        role,
		AccountType: domain.AccountTypeIndividual,
		KYCStatus:   domain.StatusPending,
	}
	m.profiles[id] = p
	m.wallets[walletKey(id, "KES")] = &domain.Wallet{ID: uuid.New(), UserID: id, Currency: "KES", Balance: balance}
	cp := *p
	return &cp
}

func (m *memRepo) balance(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[walletKey(userID, "KES")].Balance
}

func (m *memRepo) transactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *memRepo) eventKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]string, 0, len(m.events))
	for _, e := range m.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (m *memRepo) enqueue(events []domain.NotificationEvent) {
	for _, e := range events {
		if e.Deliverable() {
			m.events = append(m.events, e)
		}
	}
}

func (m *memRepo) CreateProfileWithWallet(ctx context.Context, profile *domain.Profile, currency string) (*domain.Profile, *domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.ID]; !ok {
		cp := *profile
		cp.CreatedAt = m.tick()
		m.profiles[profile.ID] = &cp
	}
	key := walletKey(profile.ID, currency)
	if _, ok := m.wallets[key]; !ok {
		m.wallets[key] = &domain.Wallet{ID: uuid.New(), UserID: profile.ID, Currency: currency}
	}
	p := *m.profiles[profile.ID]
	w := *m.wallets[key]
	return &p, &w, nil
}

func (m *memRepo) FindProfileByID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) FindWalletByUserID(ctx context.Context, userID uuid.UUID, currency string) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletKey(userID, currency)]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memRepo) GetSecuritySettings(ctx context.Context, userID uuid.UUID) (*domain.SecuritySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.security[userID]
	if !ok || s.TransactionPINHash == "" {
		return nil, domain.ErrTransactionPINNotSet
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) UpsertTransactionPIN(ctx context.Context, userID uuid.UUID, pinHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.security[userID] = &domain.SecuritySettings{UserID: userID, TransactionPINHash: pinHash}
	return nil
}

func (m *memRepo) RecordFailedTransactionPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutDurationSeconds int) (*domain.SecuritySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.security[userID]
	if !ok {
		return nil, domain.ErrTransactionPINNotSet
	}
	now := time.Now()
	expired := s.LockedUntil != nil && !s.LockedUntil.After(now)
	if expired || (s.LockedUntil == nil && s.FailedAttempts >= maxAttempts) {
		s.FailedAttempts = 1
	} else {
		s.FailedAttempts++
	}
	s.LockedUntil = nil
	if s.FailedAttempts >= maxAttempts {
		until := now.Add(time.Duration(lockoutDurationSeconds) * time.Second)
		s.LockedUntil = &until
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) ResetTransactionPINFailureState(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.security[userID]; ok {
		s.FailedAttempts = 0
		s.LockedUntil = nil
	}
	return nil
}

func (m *memRepo) CreateTransactionRequest(ctx context.Context, txn *domain.Transaction, events []domain.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn.Type == domain.TransactionTypeWithdrawal && txn.Context == domain.TransactionContextPersonal {
		w, ok := m.wallets[walletKey(txn.UserID, txn.Currency)]
		if !ok {
			return store.ErrWalletNotFound
		}
		if w.Balance < txn.Amount {
			return domain.ErrInsufficientBalance
		}
	}
	m.insertLocked(txn)
	m.enqueue(events)
	return nil
}

func (m *memRepo) insertLocked(txn *domain.Transaction) {
	cp := *txn
	cp.CreatedAt = m.tick()
	cp.UpdatedAt = cp.CreatedAt
	txn.CreatedAt = cp.CreatedAt
	txn.UpdatedAt = cp.UpdatedAt
	m.transactions[txn.ID] = &cp
}

func (m *memRepo) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[transactionID]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memRepo) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.Transaction
	for _, t := range m.transactions {
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		matched = append(matched, *t)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memRepo) ApplyTransactionDecision(ctx context.Context, decision domain.TransactionDecision) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[decision.TransactionID]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	if t.Status != decision.FromStatus {
		return nil, fmt.Errorf("transaction %s is %s: %w", t.ID, t.Status, domain.ErrInvalidTransition)
	}

	if decision.WalletDelta != 0 {
		w, ok := m.wallets[walletKey(t.UserID, t.Currency)]
		if !ok {
			return nil, store.ErrWalletNotFound
		}
		if w.Balance+decision.WalletDelta < 0 {
			return nil, domain.ErrInsufficientBalance
		}
		w.Balance += decision.WalletDelta
	}

	previous := *t
	t.Status = decision.ToStatus
	if decision.Notes != nil {
		t.Notes = decision.Notes
	}
	t.ReviewedBy = decision.ReviewerID
	if decision.RecomputeGroupID != nil {
		g, err := m.recomputeLocked(*decision.RecomputeGroupID)
		if err != nil {
			*t = previous
			return nil, err
		}
		if g.SimpleBalance < 0 {
			*t = previous
			m.recomputeLocked(g.ID)
			return nil, domain.ErrInsufficientBalance
		}
	}
	m.enqueue(decision.Events)
	cp := *t
	return &cp, nil
}

func (m *memRepo) CreateKYCSubmission(ctx context.Context, submission *domain.KYCSubmission, events []domain.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createKYCErr != nil {
		return m.createKYCErr
	}
	cp := *submission
	cp.CreatedAt = m.tick()
	m.kyc[submission.ID] = &cp
	m.mirrorKYCLocked(submission.UserID)
	m.enqueue(events)
	return nil
}

func (m *memRepo) latestKYCLocked(userID uuid.UUID) *domain.KYCSubmission {
	var latest *domain.KYCSubmission
	for _, k := range m.kyc {
		if k.UserID == userID && (latest == nil || k.CreatedAt.After(latest.CreatedAt)) {
			latest = k
		}
	}
	return latest
}

func (m *memRepo) mirrorKYCLocked(userID uuid.UUID) {
	if latest := m.latestKYCLocked(userID); latest != nil {
		if p, ok := m.profiles[userID]; ok {
			p.KYCStatus = latest.Status
		}
	}
}

func (m *memRepo) FindKYCSubmissionByID(ctx context.Context, submissionID uuid.UUID) (*domain.KYCSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.kyc[submissionID]
	if !ok {
		return nil, store.ErrKYCSubmissionNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *memRepo) FindLatestKYCSubmissionByUserID(ctx context.Context, userID uuid.UUID) (*domain.KYCSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := m.latestKYCLocked(userID)
	if latest == nil {
		return nil, store.ErrKYCSubmissionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memRepo) ListKYCSubmissions(ctx context.Context, filter domain.KYCFilter) ([]domain.KYCSubmission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.KYCSubmission
	for _, k := range m.kyc {
		if filter.Status == "" || k.Status == filter.Status {
			matched = append(matched, *k)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (m *memRepo) ReviewKYCSubmission(ctx context.Context, review domain.KYCReview) (*domain.KYCSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.kyc[review.SubmissionID]
	if !ok {
		return nil, store.ErrKYCSubmissionNotFound
	}
	if k.Status != review.FromStatus {
		return nil, fmt.Errorf("kyc submission is %s: %w", k.Status, domain.ErrInvalidTransition)
	}
	k.Status = review.ToStatus
	k.RejectionReason = review.RejectionReason
	k.Notes = review.Notes
	k.ReviewedBy = review.ReviewerID
	m.mirrorKYCLocked(k.UserID)
	m.enqueue(review.Events)
	cp := *k
	return &cp, nil
}

func (m *memRepo) CreateGroup(ctx context.Context, group *domain.AccountGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *group
	cp.CreatedAt = m.tick()
	m.groups[group.ID] = &cp
	return nil
}

func (m *memRepo) FindGroupByID(ctx context.Context, groupID uuid.UUID) (*domain.AccountGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, store.ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memRepo) ListGroups(ctx context.Context, page, limit int) ([]domain.AccountGroup, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.AccountGroup
	for _, g := range m.groups {
		all = append(all, *g)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	return all[start:end], total, nil
}

func (m *memRepo) AddGroupMember(ctx context.Context, member *domain.GroupMember) (*domain.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[member.GroupID]; !ok {
		return nil, store.ErrGroupNotFound
	}
	for _, existing := range m.members[member.GroupID] {
		if existing.UserID == member.UserID {
			return nil, store.ErrGroupMemberExists
		}
	}
	cp := *member
	cp.AccountNumber = fmt.Sprintf("GRP-%04d", len(m.members[member.GroupID])+1)
	m.members[member.GroupID] = append(m.members[member.GroupID], &cp)
	if _, err := m.recomputeLocked(member.GroupID); err != nil {
		return nil, err
	}
	out := cp
	return &out, nil
}

func (m *memRepo) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GroupMember
	for _, gm := range m.members[groupID] {
		out = append(out, *gm)
	}
	return out, nil
}

func (m *memRepo) isActiveMemberLocked(groupID, userID uuid.UUID) bool {
	for _, gm := range m.members[groupID] {
		if gm.UserID == userID && gm.Status == domain.MemberStatusActive {
			return true
		}
	}
	return false
}

func (m *memRepo) RecordGroupTransaction(ctx context.Context, txn *domain.Transaction) (*domain.AccountGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn.GroupID == nil {
		return nil, domain.NewValidationError("group_id", "is required")
	}
	if _, ok := m.groups[*txn.GroupID]; !ok {
		return nil, store.ErrGroupNotFound
	}
	if !m.isActiveMemberLocked(*txn.GroupID, txn.UserID) {
		return nil, store.ErrGroupMemberNotFound
	}
	if txn.Type == domain.TransactionTypeWithdrawal {
		g, err := m.recomputeLocked(*txn.GroupID)
		if err != nil {
			return nil, err
		}
		if g.SimpleBalance < txn.Amount {
			return nil, domain.ErrInsufficientBalance
		}
	}
	m.insertLocked(txn)
	return m.recomputeLocked(*txn.GroupID)
}

func (m *memRepo) recomputeLocked(groupID uuid.UUID) (*domain.AccountGroup, error) {
	g, ok := m.groups[groupID]
	if !ok {
		return nil, store.ErrGroupNotFound
	}
	count := 0
	for _, gm := range m.members[groupID] {
		if gm.Status == domain.MemberStatusActive {
			count++
		}
	}
	var balance int64
	for _, t := range m.transactions {
		if t.GroupID == nil || *t.GroupID != groupID || t.Status != domain.StatusCompleted {
			continue
		}
		balance += t.SignedAmount()
	}
	g.MemberCount = count
	g.SimpleBalance = balance
	cp := *g
	return &cp, nil
}

func (m *memRepo) RecomputeGroupAggregates(ctx context.Context, groupID uuid.UUID) (*domain.AccountGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recomputeLocked(groupID)
}

func (m *memRepo) RecomputeAllGroupAggregates(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed int64
	for id, g := range m.groups {
		before := *g
		after, err := m.recomputeLocked(id)
		if err != nil {
			return 0, err
		}
		if before.MemberCount != after.MemberCount || before.SimpleBalance != after.SimpleBalance {
			changed++
		}
	}
	return changed, nil
}

func (m *memRepo) GetGroupEquity(ctx context.Context, groupID uuid.UUID) (*domain.GroupEquity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[groupID]; !ok {
		return nil, store.ErrGroupNotFound
	}
	contributed := map[uuid.UUID]int64{}
	var total int64
	for _, t := range m.transactions {
		if t.GroupID == nil || *t.GroupID != groupID || t.Status != domain.StatusCompleted || t.Type != domain.TransactionTypeDeposit {
			continue
		}
		contributed[t.UserID] += t.Amount
		total += t.Amount
	}
	equity := &domain.GroupEquity{GroupID: groupID, TotalContributions: total, ComputedAt: m.tick()}
	for _, gm := range m.members[groupID] {
		if gm.Status != domain.MemberStatusActive {
			continue
		}
		equity.Members = append(equity.Members, domain.MemberEquity{
			UserID:           gm.UserID,
			AccountNumber:    gm.AccountNumber,
			TotalContributed: contributed[gm.UserID],
			EquityPercentage: domain.Percentage(contributed[gm.UserID], total),
		})
	}
	return equity, nil
}

func (m *memRepo) GetDashboardMetrics(ctx context.Context) (*domain.DashboardMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics := &domain.DashboardMetrics{TotalUsers: int64(len(m.profiles)), TotalGroups: int64(len(m.groups))}
	for _, t := range m.transactions {
		if t.Status == domain.StatusPending {
			metrics.PendingTransactions++
		}
	}
	for _, w := range m.wallets {
		metrics.TotalWalletBalance += w.Balance
	}
	return metrics, nil
}

func (m *memRepo) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]store.OutboxMessage, error) {
	return nil, nil
}

func (m *memRepo) MarkOutboxPublished(ctx context.Context, id int64) error { return nil }

func (m *memRepo) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	return nil
}

func (m *memRepo) GetOutboxBacklog(ctx context.Context) (*store.OutboxBacklog, error) {
	return &store.OutboxBacklog{}, nil
}
