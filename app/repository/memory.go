package repository

import (
	"strings"
	"sync"
	"time"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"gorm.io/gorm"
)

// NewMemoryRepositories returns a repository bundle backed by in-process
// maps. It mirrors the GORM implementations' semantics (atomic conditional
// balance updates, insert-if-absent claims, rollback on WithTx error) and
// exists so services can be exercised without a database.
func NewMemoryRepositories() *Repositories {
	state := &memoryState{
		accounts:    map[uint]*models.Account{},
		events:      map[string]*models.WebhookEvent{},
		generations: map[string]*models.Generation{},
	}
	return newMemoryRepositories(state)
}

func newMemoryRepositories(state *memoryState) *Repositories {
	return &Repositories{
		Account:      &memoryAccountRepository{state: state},
		Transaction:  &memoryTransactionRepository{state: state},
		WebhookEvent: &memoryWebhookEventRepository{state: state},
		Generation:   &memoryGenerationRepository{state: state},
		memory:       state,
	}
}

type memoryState struct {
	mu   sync.Mutex
	txMu sync.Mutex

	accounts    map[uint]*models.Account
	accountSeq  uint
	txns        []*models.CreditTransaction
	txnSeq      uint
	events      map[string]*models.WebhookEvent
	eventSeq    uint
	generations map[string]*models.Generation
	genSeq      uint
}

func (s *memoryState) snapshot() *memoryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := &memoryState{
		accounts:    make(map[uint]*models.Account, len(s.accounts)),
		accountSeq:  s.accountSeq,
		txns:        make([]*models.CreditTransaction, len(s.txns)),
		txnSeq:      s.txnSeq,
		events:      make(map[string]*models.WebhookEvent, len(s.events)),
		eventSeq:    s.eventSeq,
		generations: make(map[string]*models.Generation, len(s.generations)),
		genSeq:      s.genSeq,
	}
	for id, account := range s.accounts {
		clone := *account
		copied.accounts[id] = &clone
	}
	for i, txn := range s.txns {
		clone := *txn
		copied.txns[i] = &clone
	}
	for key, event := range s.events {
		clone := *event
		copied.events[key] = &clone
	}
	for key, generation := range s.generations {
		clone := *generation
		copied.generations[key] = &clone
	}
	return copied
}

func (s *memoryState) restore(from *memoryState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = from.accounts
	s.accountSeq = from.accountSeq
	s.txns = from.txns
	s.txnSeq = from.txnSeq
	s.events = from.events
	s.eventSeq = from.eventSeq
	s.generations = from.generations
	s.genSeq = from.genSeq
}

// withTx serializes memory transactions and rolls the whole state back when
// fn fails, matching the database behavior the services rely on.
func (s *memoryState) withTx(fn func(tx *Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	before := s.snapshot()
	if err := fn(newMemoryRepositories(s)); err != nil {
		s.restore(before)
		return err
	}
	return nil
}

type memoryAccountRepository struct {
	state *memoryState
}

func (r *memoryAccountRepository) Create(account *models.Account) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, existing := range r.state.accounts {
		if existing.IdentityID == account.IdentityID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.state.accountSeq++
	account.ID = r.state.accountSeq
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	clone := *account
	r.state.accounts[account.ID] = &clone
	return nil
}

func (r *memoryAccountRepository) GetByID(id uint) (*models.Account, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	account, ok := r.state.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *account
	return &clone, nil
}

func (r *memoryAccountRepository) GetByIdentityID(identityID string) (*models.Account, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, account := range r.state.accounts {
		if account.IdentityID == identityID {
			clone := *account
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryAccountRepository) GetByAPIKeyHash(hash string) (*models.Account, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	if strings.TrimSpace(hash) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	for _, account := range r.state.accounts {
		if account.APIKeyHash == hash {
			clone := *account
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryAccountRepository) UpdateIdentity(identityID string, fields IdentityFields) (*models.Account, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, account := range r.state.accounts {
		if account.IdentityID != identityID {
			continue
		}
		if fields.Email != nil {
			account.Email = *fields.Email
		}
		if fields.Name != nil {
			account.Name = *fields.Name
		}
		if fields.AvatarURL != nil {
			account.AvatarURL = *fields.AvatarURL
		}
		account.UpdatedAt = time.Now()
		clone := *account
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryAccountRepository) DeleteByIdentityID(identityID string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for id, account := range r.state.accounts {
		if account.IdentityID == identityID {
			delete(r.state.accounts, id)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memoryAccountRepository) AdjustBalance(accountID uint, delta int64, txn *models.CreditTransaction) (*models.Account, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	if txn.Kind == models.TransactionKindRefund && txn.GenerationID != "" {
		// Same lock as the insert below, so concurrent refunds for one
		// generation id resolve to a single entry.
		for _, existing := range r.state.txns {
			if existing.Kind == models.TransactionKindRefund && existing.GenerationID == txn.GenerationID {
				return nil, ErrAlreadyRefunded
			}
		}
	}

	account, ok := r.state.accounts[accountID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if txn.Kind == models.TransactionKindUsage && account.Balance+delta < 0 {
		return nil, ErrInsufficientBalance
	}

	account.Balance += delta
	account.UpdatedAt = time.Now()

	r.state.txnSeq++
	txn.ID = r.state.txnSeq
	txn.AccountID = accountID
	txn.CreatedAt = time.Now()
	clone := *txn
	r.state.txns = append(r.state.txns, &clone)

	result := *account
	return &result, nil
}

type memoryTransactionRepository struct {
	state *memoryState
}

func (r *memoryTransactionRepository) FindByExternalPaymentRef(ref string) (*models.CreditTransaction, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	if strings.TrimSpace(ref) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	for _, txn := range r.state.txns {
		if txn.ExternalPaymentRef == ref {
			clone := *txn
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryTransactionRepository) FindRefundForGeneration(generationID string) (*models.CreditTransaction, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, txn := range r.state.txns {
		if txn.Kind == models.TransactionKindRefund && txn.GenerationID == generationID {
			clone := *txn
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryTransactionRepository) ListByAccount(accountID uint, offset, limit int) ([]models.CreditTransaction, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	var matched []models.CreditTransaction
	for i := len(r.state.txns) - 1; i >= 0; i-- {
		if r.state.txns[i].AccountID == accountID {
			matched = append(matched, *r.state.txns[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *memoryTransactionRepository) CountByAccount(accountID uint) (int64, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	var count int64
	for _, txn := range r.state.txns {
		if txn.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (r *memoryTransactionRepository) SumByAccount(accountID uint) (int64, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	var sum int64
	for _, txn := range r.state.txns {
		if txn.AccountID == accountID {
			sum += txn.Amount
		}
	}
	return sum, nil
}

func (r *memoryTransactionRepository) FindUnrefundedUsages(olderThan time.Time) ([]models.CreditTransaction, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	refunded := map[string]bool{}
	for _, txn := range r.state.txns {
		if txn.Kind == models.TransactionKindRefund && txn.GenerationID != "" {
			refunded[txn.GenerationID] = true
		}
	}

	var stale []models.CreditTransaction
	for _, txn := range r.state.txns {
		if txn.Kind != models.TransactionKindUsage || txn.GenerationID == "" {
			continue
		}
		if !txn.CreatedAt.Before(olderThan) {
			continue
		}
		if refunded[txn.GenerationID] {
			continue
		}
		if _, ok := r.state.generations[txn.GenerationID]; ok {
			continue
		}
		stale = append(stale, *txn)
	}
	return stale, nil
}

type memoryWebhookEventRepository struct {
	state *memoryState
}

func eventKey(source, eventID string) string {
	return source + "|" + eventID
}

func (r *memoryWebhookEventRepository) TryClaim(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	key := eventKey(event.Source, event.EventID)
	if existing, ok := r.state.events[key]; ok {
		clone := *existing
		return false, &clone, nil
	}

	r.state.eventSeq++
	event.ID = r.state.eventSeq
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	clone := *event
	r.state.events[key] = &clone
	stored := clone
	return true, &stored, nil
}

func (r *memoryWebhookEventRepository) MarkProcessed(id uint, processingError string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, event := range r.state.events {
		if event.ID == id {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			event.UpdatedAt = now
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memoryWebhookEventRepository) PruneOlderThan(cutoff time.Time) (int64, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	var pruned int64
	for key, event := range r.state.events {
		if event.ProcessedAt != nil && event.CreatedAt.Before(cutoff) {
			delete(r.state.events, key)
			pruned++
		}
	}
	return pruned, nil
}

type memoryGenerationRepository struct {
	state *memoryState
}

func (r *memoryGenerationRepository) Create(generation *models.Generation) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	if _, ok := r.state.generations[generation.GenerationID]; ok {
		return gorm.ErrDuplicatedKey
	}
	r.state.genSeq++
	generation.ID = r.state.genSeq
	generation.CreatedAt = time.Now()
	clone := *generation
	r.state.generations[generation.GenerationID] = &clone
	return nil
}

func (r *memoryGenerationRepository) GetByGenerationID(generationID string) (*models.Generation, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	generation, ok := r.state.generations[generationID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *generation
	return &clone, nil
}
