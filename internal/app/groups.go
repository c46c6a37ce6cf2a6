package app

import (
	"context"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GroupDetail is a group with its member list.
type GroupDetail struct {
	Group   *domain.AccountGroup `json:"group"`
	Members []domain.GroupMember `json:"members"`
}

// CreateGroup opens an active group with no members.
func (s *Service) CreateGroup(ctx context.Context, creatorID uuid.UUID, req domain.CreateGroupRequest) (*domain.AccountGroup, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	switch req.Type {
	case domain.GroupTypeSACCO, domain.GroupTypeInvestmentClub, domain.GroupTypeJoint:
	default:
		return nil, domain.NewValidationError("type", "must be sacco, investment_club or joint")
	}

	now := s.now().UTC()
	group := &domain.AccountGroup{
		ID:        uuid.New(),
		Name:      name,
		Type:      req.Type,
		Status:    domain.GroupStatusActive,
		Currency:  s.currencyOrDefault(req.Currency),
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	zap.L().Info("group created",
		zap.String("component", "groups"),
		zap.String("group_id", group.ID.String()),
		zap.String("type", group.Type),
	)
	return group, nil
}

// ListGroups returns a page of groups, newest first.
func (s *Service) ListGroups(ctx context.Context, page, limit int) (domain.Page[domain.AccountGroup], error) {
	page, limit = normalizePaging(page, limit)
	items, total, err := s.repo.ListGroups(ctx, page, limit)
	if err != nil {
		return domain.Page[domain.AccountGroup]{}, err
	}
	return domain.NewPage(items, total, page, limit), nil
}

// GetGroup returns the group and its members.
func (s *Service) GetGroup(ctx context.Context, groupID uuid.UUID) (*GroupDetail, error) {
	group, err := s.repo.FindGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []domain.GroupMember{}
	}
	return &GroupDetail{Group: group, Members: members}, nil
}

// AddGroupMember enrolls an existing user as an active member. The store assigns
// the member's account number and refreshes member_count.
func (s *Service) AddGroupMember(ctx context.Context, groupID uuid.UUID, req domain.AddMemberRequest) (*domain.GroupMember, error) {
	if req.UserID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "is required")
	}
	if _, err := s.repo.FindProfileByID(ctx, req.UserID); err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = domain.MemberRoleMember
	}
	member := &domain.GroupMember{
		ID:       uuid.New(),
		GroupID:  groupID,
		UserID:   req.UserID,
		Role:     role,
		Status:   domain.MemberStatusActive,
		JoinedAt: s.now().UTC(),
	}
	return s.repo.AddGroupMember(ctx, member)
}

// RecordGroupTransaction writes a group ledger entry for an active member and
// returns the group with refreshed aggregates. Entries are completed unless the
// request asks for pending, in which case they wait for admin approval.
func (s *Service) RecordGroupTransaction(ctx context.Context, groupID uuid.UUID, req domain.GroupTransactionRequest) (*domain.Transaction, *domain.AccountGroup, error) {
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, nil, err
	}
	if req.Type != domain.TransactionTypeDeposit && req.Type != domain.TransactionTypeWithdrawal {
		return nil, nil, domain.NewValidationError("type", "must be deposit or withdrawal")
	}
	group, err := s.repo.FindGroupByID(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	status, err := domain.TransitionTransaction("", domain.EventSubmit)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != domain.StatusPending {
		if status, err = domain.TransitionTransaction(status, domain.EventApprove); err != nil {
			return nil, nil, err
		}
	}

	now := s.now().UTC()
	gid := group.ID
	txn := &domain.Transaction{
		ID:            uuid.New(),
		UserID:        req.UserID,
		GroupID:       &gid,
		Type:          req.Type,
		Context:       domain.TransactionContextGroup,
		Amount:        req.Amount,
		Currency:      group.Currency,
		Status:        status,
		Reference:     s.newReference(groupReferencePrefix),
		PaymentMethod: "group_ledger",
		Description:   optionalString(req.Description),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	updated, err := s.repo.RecordGroupTransaction(ctx, txn)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("group transaction recorded",
		zap.String("component", "groups"),
		zap.String("group_id", gid.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.String("status", txn.Status),
	)
	return txn, updated, nil
}

// RecomputeGroup refreshes one group's aggregates from its members and ledger.
func (s *Service) RecomputeGroup(ctx context.Context, groupID uuid.UUID) (*domain.AccountGroup, error) {
	return s.repo.RecomputeGroupAggregates(ctx, groupID)
}

// ReconcileGroups repairs aggregate drift across all groups and returns how many
// rows changed.
func (s *Service) ReconcileGroups(ctx context.Context) (int64, error) {
	return s.repo.RecomputeAllGroupAggregates(ctx)
}

// GetGroupEquity returns each member's share of completed contributions.
func (s *Service) GetGroupEquity(ctx context.Context, groupID uuid.UUID) (*domain.GroupEquity, error) {
	return s.repo.GetGroupEquity(ctx, groupID)
}
