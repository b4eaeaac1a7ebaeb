package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fund-ledger/internal/ledger"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Ledger used by tests and by the server's
// in-memory mode. Transactions run on a copy of the state that replaces the
// committed state only when fn succeeds; writers are serialized.
type MemoryStore struct {
	writeMu *sync.Mutex
	mu      sync.RWMutex
	state   *memState
	inTx    bool
	faults  *faultSet
	now     func() time.Time
}

type memState struct {
	seq            int64
	funds          map[int64]Fund
	fundHistory    []FundHistory
	positions      map[int64]EarningPosition
	earningHistory []EarningHistory
	participants   map[int64]Participant
	clients        map[int64]Client
	payments       map[int64]Payment
	subscriptions  map[int64]Subscription
	allocations    map[int64]Allocation
	referrals      map[int64]ReferralLink
	closures       map[int64]ClosureSnapshot
	rewards        map[int64]RewardRecord
}

type faultSet struct {
	mu     sync.Mutex
	byName map[string]error
}

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		writeMu: &sync.Mutex{},
		state:   newMemState(),
		faults:  &faultSet{byName: make(map[string]error)},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func newMemState() *memState {
	return &memState{
		funds:         make(map[int64]Fund),
		positions:     make(map[int64]EarningPosition),
		participants:  make(map[int64]Participant),
		clients:       make(map[int64]Client),
		payments:      make(map[int64]Payment),
		subscriptions: make(map[int64]Subscription),
		allocations:   make(map[int64]Allocation),
		referrals:     make(map[int64]ReferralLink),
		closures:      make(map[int64]ClosureSnapshot),
		rewards:       make(map[int64]RewardRecord),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		seq:            st.seq,
		funds:          make(map[int64]Fund, len(st.funds)),
		fundHistory:    append([]FundHistory(nil), st.fundHistory...),
		positions:      make(map[int64]EarningPosition, len(st.positions)),
		earningHistory: append([]EarningHistory(nil), st.earningHistory...),
		participants:   make(map[int64]Participant, len(st.participants)),
		clients:        make(map[int64]Client, len(st.clients)),
		payments:       make(map[int64]Payment, len(st.payments)),
		subscriptions:  make(map[int64]Subscription, len(st.subscriptions)),
		allocations:    make(map[int64]Allocation, len(st.allocations)),
		referrals:      make(map[int64]ReferralLink, len(st.referrals)),
		closures:       make(map[int64]ClosureSnapshot, len(st.closures)),
		rewards:        make(map[int64]RewardRecord, len(st.rewards)),
	}
	for k, v := range st.funds {
		c.funds[k] = v
	}
	for k, v := range st.positions {
		c.positions[k] = v
	}
	for k, v := range st.participants {
		c.participants[k] = v
	}
	for k, v := range st.clients {
		c.clients[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range st.allocations {
		c.allocations[k] = v
	}
	for k, v := range st.referrals {
		c.referrals[k] = v
	}
	for k, v := range st.closures {
		c.closures[k] = v
	}
	for k, v := range st.rewards {
		c.rewards[k] = v
	}
	return c
}

func (st *memState) nextID() int64 {
	st.seq++
	return st.seq
}

// SetClock overrides the timestamp source
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// FailOn makes the named Store method return err until cleared with a nil err
func (s *MemoryStore) FailOn(method string, err error) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	if err == nil {
		delete(s.faults.byName, method)
		return
	}
	s.faults.byName[method] = err
}

func (s *MemoryStore) fault(method string) error {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	return s.faults.byName[method]
}

// write locks the state for a mutation. Outside a transaction it also takes
// the writer lock so a concurrent commit cannot overwrite the change.
func (s *MemoryStore) write() func() {
	if !s.inTx {
		s.writeMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !s.inTx {
			s.writeMu.Unlock()
		}
	}
}

func (s *MemoryStore) read() func() {
	s.mu.RLock()
	return s.mu.RUnlock
}

// HealthCheck always succeeds
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// InTx runs fn against a private copy of the state and commits it on success
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	view := &MemoryStore{writeMu: s.writeMu, state: work, inTx: true, faults: s.faults, now: s.now}
	if err := fn(view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if err := s.fault("Commit"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

// ============================================================================
// FUNDS
// ============================================================================

func (s *MemoryStore) CreateFund(ctx context.Context, fund *Fund) error {
	if err := s.fault("CreateFund"); err != nil {
		return err
	}
	defer s.write()()
	for _, f := range s.state.funds {
		if f.Category == fund.Category && f.Name == fund.Name {
			return fmt.Errorf("fund %q: %w", fund.Name, ledger.ErrDuplicate)
		}
	}
	if fund.Status == "" {
		fund.Status = FundStatusOpen
	}
	fund.ID = s.state.nextID()
	fund.Version = 1
	fund.CreatedAt = s.now()
	fund.UpdatedAt = fund.CreatedAt
	s.state.funds[fund.ID] = *fund
	return nil
}

func (s *MemoryStore) GetFund(ctx context.Context, id int64) (*Fund, error) {
	defer s.read()()
	f, ok := s.state.funds[id]
	if !ok {
		return nil, fmt.Errorf("fund %d: %w", id, ledger.ErrNotFound)
	}
	return &f, nil
}

func (s *MemoryStore) LockFund(ctx context.Context, id int64) (*Fund, error) {
	if !s.inTx {
		return nil, fmt.Errorf("LockFund requires a transaction")
	}
	if err := s.fault("LockFund"); err != nil {
		return nil, err
	}
	return s.GetFund(ctx, id)
}

func (s *MemoryStore) ListFunds(ctx context.Context) ([]*Fund, error) {
	defer s.read()()
	funds := make([]*Fund, 0, len(s.state.funds))
	for _, f := range s.state.funds {
		f := f
		funds = append(funds, &f)
	}
	sort.Slice(funds, func(i, j int) bool { return funds[i].ID > funds[j].ID })
	return funds, nil
}

func (s *MemoryStore) UpdateFundValuation(ctx context.Context, fund *Fund, newAmount decimal.Decimal) error {
	if err := s.fault("UpdateFundValuation"); err != nil {
		return err
	}
	defer s.write()()
	stored, ok := s.state.funds[fund.ID]
	if !ok || stored.Version != fund.Version || stored.Status != FundStatusOpen {
		return fmt.Errorf("update fund %d valuation: %w", fund.ID, ledger.ErrConcurrentModification)
	}
	stored.CurrentAmount = newAmount
	stored.Version++
	stored.UpdatedAt = s.now()
	s.state.funds[fund.ID] = stored
	fund.CurrentAmount, fund.Version, fund.UpdatedAt = stored.CurrentAmount, stored.Version, stored.UpdatedAt
	return nil
}

func (s *MemoryStore) UpdateFundStatus(ctx context.Context, fund *Fund, status FundStatus) error {
	if err := s.fault("UpdateFundStatus"); err != nil {
		return err
	}
	defer s.write()()
	stored, ok := s.state.funds[fund.ID]
	if !ok || stored.Version != fund.Version {
		return fmt.Errorf("update fund %d status: %w", fund.ID, ledger.ErrConcurrentModification)
	}
	stored.Status = status
	stored.Version++
	stored.UpdatedAt = s.now()
	s.state.funds[fund.ID] = stored
	fund.Status, fund.Version, fund.UpdatedAt = stored.Status, stored.Version, stored.UpdatedAt
	return nil
}

func (s *MemoryStore) InsertFundHistory(ctx context.Context, h *FundHistory) error {
	if err := s.fault("InsertFundHistory"); err != nil {
		return err
	}
	defer s.write()()
	if _, ok := s.state.funds[h.FundID]; !ok {
		return fmt.Errorf("fund %d: %w", h.FundID, ledger.ErrNotFound)
	}
	h.ID = s.state.nextID()
	if h.RecordedAt.IsZero() {
		h.RecordedAt = s.now()
	}
	s.state.fundHistory = append(s.state.fundHistory, *h)
	return nil
}

func (s *MemoryStore) ListFundHistory(ctx context.Context, fundID int64) ([]*FundHistory, error) {
	defer s.read()()
	var history []*FundHistory
	for _, h := range s.state.fundHistory {
		if h.FundID == fundID {
			h := h
			history = append(history, &h)
		}
	}
	return history, nil
}

// ============================================================================
// POSITIONS
// ============================================================================

func (s *MemoryStore) CreatePosition(ctx context.Context, p *EarningPosition) error {
	if err := s.fault("CreatePosition"); err != nil {
		return err
	}
	defer s.write()()
	switch {
	case p.Kind == PositionKindClient && p.InitialAmount.IsPositive():
	case p.Kind == PositionKindCompany && p.InitialAmount.IsZero():
		if p.FundID != nil {
			for _, existing := range s.state.positions {
				if existing.Kind == PositionKindCompany && existing.FundID != nil && *existing.FundID == *p.FundID {
					return fmt.Errorf("company position of fund %d: %w", *p.FundID, ledger.ErrDuplicate)
				}
			}
		}
	default:
		return fmt.Errorf("%s position with initial amount %s: %w", p.Kind, p.InitialAmount, ledger.ErrInvalidPosition)
	}
	p.ID = s.state.nextID()
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.state.positions[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPosition(ctx context.Context, id int64) (*EarningPosition, error) {
	defer s.read()()
	p, ok := s.state.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", id, ledger.ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) ListPositionsByFund(ctx context.Context, fundID int64) ([]*EarningPosition, error) {
	defer s.read()()
	var positions []*EarningPosition
	for _, p := range s.state.positions {
		if p.FundID != nil && *p.FundID == fundID {
			p := p
			positions = append(positions, &p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, nil
}

func (s *MemoryStore) UpdatePositionAmount(ctx context.Context, positionID int64, amount decimal.Decimal) error {
	if err := s.fault("UpdatePositionAmount"); err != nil {
		return err
	}
	defer s.write()()
	p, ok := s.state.positions[positionID]
	if !ok {
		return fmt.Errorf("position %d: %w", positionID, ledger.ErrNotFound)
	}
	if p.FundID != nil {
		if f, ok := s.state.funds[*p.FundID]; ok && f.Status == FundStatusClosed {
			return fmt.Errorf("position %d belongs to a closed fund: %w", positionID, ledger.ErrInvalidState)
		}
	}
	p.CurrentAmount = amount
	p.UpdatedAt = s.now()
	s.state.positions[positionID] = p
	return nil
}

func (s *MemoryStore) InsertEarningHistory(ctx context.Context, h *EarningHistory) error {
	if err := s.fault("InsertEarningHistory"); err != nil {
		return err
	}
	defer s.write()()
	if _, ok := s.state.positions[h.PositionID]; !ok {
		return fmt.Errorf("position %d: %w", h.PositionID, ledger.ErrNotFound)
	}
	h.ID = s.state.nextID()
	if h.RecordedAt.IsZero() {
		h.RecordedAt = s.now()
	}
	s.state.earningHistory = append(s.state.earningHistory, *h)
	return nil
}

func (s *MemoryStore) ListEarningHistory(ctx context.Context, positionID int64) ([]*EarningHistory, error) {
	defer s.read()()
	var history []*EarningHistory
	for _, h := range s.state.earningHistory {
		if h.PositionID == positionID {
			h := h
			history = append(history, &h)
		}
	}
	return history, nil
}

func (s *MemoryStore) CreateParticipant(ctx context.Context, p *Participant) error {
	if err := s.fault("CreateParticipant"); err != nil {
		return err
	}
	defer s.write()()
	p.ID = s.state.nextID()
	if p.StartedAt.IsZero() {
		p.StartedAt = s.now()
	}
	s.state.participants[p.ID] = *p
	return nil
}

func (s *MemoryStore) ListParticipantsByPosition(ctx context.Context, positionID int64) ([]*Participant, error) {
	defer s.read()()
	var participants []*Participant
	for _, p := range s.state.participants {
		if p.PositionID != nil && *p.PositionID == positionID {
			p := p
			participants = append(participants, &p)
		}
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].ID < participants[j].ID })
	return participants, nil
}

func (s *MemoryStore) SyncParticipantAmounts(ctx context.Context, positionID int64, amount decimal.Decimal) error {
	if err := s.fault("SyncParticipantAmounts"); err != nil {
		return err
	}
	defer s.write()()
	for id, p := range s.state.participants {
		if p.PositionID != nil && *p.PositionID == positionID {
			p.FinalInvestmentAmount = amount
			s.state.participants[id] = p
		}
	}
	return nil
}

// ============================================================================
// DEPOSITS
// ============================================================================

func (s *MemoryStore) CreateClient(ctx context.Context, c *Client) error {
	defer s.write()()
	if existing, ok := s.state.clients[c.UserID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = s.now()
	}
	s.state.clients[c.UserID] = *c
	return nil
}

func (s *MemoryStore) GetClient(ctx context.Context, userID int64) (*Client, error) {
	defer s.read()()
	c, ok := s.state.clients[userID]
	if !ok {
		return nil, fmt.Errorf("client %d: %w", userID, ledger.ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p *Payment) error {
	if err := s.fault("CreatePayment"); err != nil {
		return err
	}
	defer s.write()()
	if !p.Amount.IsPositive() {
		return fmt.Errorf("payment amount %s: %w", p.Amount, ledger.ErrInvalidAmount)
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	p.ID = s.state.nextID()
	p.CreatedAt = s.now()
	s.state.payments[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	defer s.read()()
	p, ok := s.state.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, ledger.ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) CountCompletedPayments(ctx context.Context, payerUserID int64) (int, error) {
	defer s.read()()
	count := 0
	for _, p := range s.state.payments {
		if p.PayerUserID == payerUserID && p.Status == PaymentStatusCompleted {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if err := s.fault("CreateSubscription"); err != nil {
		return err
	}
	defer s.write()()
	sub.ID = s.state.nextID()
	if sub.StartedAt.IsZero() {
		sub.StartedAt = s.now()
	}
	s.state.subscriptions[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) GetSubscriptionByPayment(ctx context.Context, paymentID int64) (*Subscription, error) {
	defer s.read()()
	var found *Subscription
	for _, sub := range s.state.subscriptions {
		if sub.PaymentID != nil && *sub.PaymentID == paymentID && (found == nil || sub.ID < found.ID) {
			sub := sub
			found = &sub
		}
	}
	if found == nil {
		return nil, fmt.Errorf("subscription of payment %d: %w", paymentID, ledger.ErrNotFound)
	}
	return found, nil
}

// ============================================================================
// ALLOCATIONS
// ============================================================================

func (s *MemoryStore) CreateAllocation(ctx context.Context, a *Allocation) error {
	if err := s.fault("CreateAllocation"); err != nil {
		return err
	}
	defer s.write()()
	for _, existing := range s.state.allocations {
		if existing.PaymentID == a.PaymentID {
			return fmt.Errorf("payment %d is already allocated to fund %d: %w", a.PaymentID, existing.FundID, ledger.ErrDuplicate)
		}
	}
	if a.Status == "" {
		a.Status = AllocationStatusAccrued
	}
	a.ID = s.state.nextID()
	a.CreatedAt = s.now()
	s.state.allocations[a.ID] = *a
	return nil
}

func (s *MemoryStore) GetAllocation(ctx context.Context, id int64) (*Allocation, error) {
	defer s.read()()
	a, ok := s.state.allocations[id]
	if !ok {
		return nil, fmt.Errorf("allocation %d: %w", id, ledger.ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryStore) filterAllocations(keep func(Allocation) bool) []*Allocation {
	defer s.read()()
	var allocations []*Allocation
	for _, a := range s.state.allocations {
		if keep(a) {
			a := a
			allocations = append(allocations, &a)
		}
	}
	sort.Slice(allocations, func(i, j int) bool { return allocations[i].ID < allocations[j].ID })
	return allocations
}

func (s *MemoryStore) ListAllocationsByFund(ctx context.Context, fundID int64) ([]*Allocation, error) {
	return s.filterAllocations(func(a Allocation) bool { return a.FundID == fundID }), nil
}

func (s *MemoryStore) ListActiveAllocations(ctx context.Context, fundID int64) ([]*Allocation, error) {
	return s.filterAllocations(func(a Allocation) bool {
		return a.FundID == fundID && a.Status != AllocationStatusCancelled
	}), nil
}

func (s *MemoryStore) GetAllocationByPayment(ctx context.Context, paymentID int64) (*Allocation, error) {
	allocations := s.filterAllocations(func(a Allocation) bool { return a.PaymentID == paymentID })
	if len(allocations) == 0 {
		return nil, fmt.Errorf("allocation of payment %d: %w", paymentID, ledger.ErrNotFound)
	}
	return allocations[0], nil
}

func (s *MemoryStore) EarliestAllocation(ctx context.Context, fundID, clientUserID int64) (*Allocation, error) {
	allocations := s.filterAllocations(func(a Allocation) bool {
		return a.FundID == fundID && a.ClientUserID == clientUserID
	})
	if len(allocations) == 0 {
		return nil, fmt.Errorf("earliest allocation of client %d in fund %d: %w", clientUserID, fundID, ledger.ErrNotFound)
	}
	return allocations[0], nil
}

func (s *MemoryStore) UpdateAllocationStatus(ctx context.Context, id int64, status AllocationStatus) error {
	if err := s.fault("UpdateAllocationStatus"); err != nil {
		return err
	}
	defer s.write()()
	a, ok := s.state.allocations[id]
	if !ok {
		return fmt.Errorf("allocation %d: %w", id, ledger.ErrNotFound)
	}
	a.Status = status
	s.state.allocations[id] = a
	return nil
}

// ============================================================================
// REFERRALS
// ============================================================================

func (s *MemoryStore) CreateReferralLink(ctx context.Context, l *ReferralLink) error {
	if err := s.fault("CreateReferralLink"); err != nil {
		return err
	}
	defer s.write()()
	if l.IsFirstDeposit {
		for _, existing := range s.state.referrals {
			if existing.IsFirstDeposit && existing.ReferredUserID == l.ReferredUserID {
				return fmt.Errorf("first deposit referral of user %d: %w", l.ReferredUserID, ledger.ErrDuplicate)
			}
		}
	}
	if l.Status == "" {
		l.Status = ReferralStatusPending
	}
	l.ID = s.state.nextID()
	l.CreatedAt = s.now()
	s.state.referrals[l.ID] = *l
	return nil
}

func (s *MemoryStore) FindFirstDepositReferral(ctx context.Context, referredUserID int64) (*ReferralLink, error) {
	defer s.read()()
	var found *ReferralLink
	for _, l := range s.state.referrals {
		if l.IsFirstDeposit && l.ReferredUserID == referredUserID && (found == nil || l.ID < found.ID) {
			l := l
			found = &l
		}
	}
	if found == nil {
		return nil, fmt.Errorf("first deposit referral of user %d: %w", referredUserID, ledger.ErrNotFound)
	}
	return found, nil
}

func (s *MemoryStore) MarkReferralPaid(ctx context.Context, id int64, commission decimal.Decimal, rewardID int64, paidAt time.Time) error {
	if err := s.fault("MarkReferralPaid"); err != nil {
		return err
	}
	defer s.write()()
	l, ok := s.state.referrals[id]
	if !ok || l.Status == ReferralStatusPaid {
		return fmt.Errorf("referral %d missing or already paid: %w", id, ledger.ErrConcurrentModification)
	}
	l.CommissionAmount = commission
	l.RewardID = &rewardID
	l.Status = ReferralStatusPaid
	l.PaidAt = &paidAt
	s.state.referrals[id] = l
	return nil
}

func (s *MemoryStore) ListReferralsByReferrer(ctx context.Context, referrerUserID int64) ([]*ReferralLink, error) {
	defer s.read()()
	var links []*ReferralLink
	for _, l := range s.state.referrals {
		if l.ReferrerUserID == referrerUserID {
			l := l
			links = append(links, &l)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	return links, nil
}

// ============================================================================
// CLOSURES
// ============================================================================

func (s *MemoryStore) CreateClosureSnapshot(ctx context.Context, c *ClosureSnapshot) error {
	if err := s.fault("CreateClosureSnapshot"); err != nil {
		return err
	}
	defer s.write()()
	for _, existing := range s.state.closures {
		if existing.FundID == c.FundID {
			return fmt.Errorf("closure of fund %d: %w", c.FundID, ledger.ErrDuplicate)
		}
	}
	c.ID = s.state.nextID()
	c.CreatedAt = s.now()
	s.state.closures[c.ID] = *c
	return nil
}

func (s *MemoryStore) GetLatestClosure(ctx context.Context, fundID int64) (*ClosureSnapshot, error) {
	defer s.read()()
	var latest *ClosureSnapshot
	for _, c := range s.state.closures {
		if c.FundID == fundID && (latest == nil || c.ID > latest.ID) {
			c := c
			latest = &c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("closure of fund %d: %w", fundID, ledger.ErrNotFound)
	}
	return latest, nil
}

func (s *MemoryStore) CreateReward(ctx context.Context, r *RewardRecord) error {
	if err := s.fault("CreateReward"); err != nil {
		return err
	}
	defer s.write()()
	for _, existing := range s.state.rewards {
		if existing.ClosureID == r.ClosureID && existing.AllocationID == r.AllocationID {
			return fmt.Errorf("reward for allocation %d: %w", r.AllocationID, ledger.ErrDuplicate)
		}
	}
	r.ID = s.state.nextID()
	r.CreatedAt = s.now()
	s.state.rewards[r.ID] = *r
	return nil
}

func (s *MemoryStore) filterRewards(keep func(RewardRecord) bool) []*RewardRecord {
	defer s.read()()
	var rewards []*RewardRecord
	for _, r := range s.state.rewards {
		if keep(r) {
			r := r
			rewards = append(rewards, &r)
		}
	}
	sort.Slice(rewards, func(i, j int) bool { return rewards[i].ID < rewards[j].ID })
	return rewards
}

func (s *MemoryStore) ListRewardsByFund(ctx context.Context, fundID int64) ([]*RewardRecord, error) {
	return s.filterRewards(func(r RewardRecord) bool { return r.FundID == fundID }), nil
}

func (s *MemoryStore) ListRewardsByClient(ctx context.Context, clientUserID int64) ([]*RewardRecord, error) {
	return s.filterRewards(func(r RewardRecord) bool { return r.ClientUserID == clientUserID }), nil
}

var _ Ledger = (*MemoryStore)(nil)
