package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps accounts in process memory. Every read and write
// copies, so callers never share state with the store.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.Account
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*models.Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func cloneAccount(a *models.Account, withPasswordHash bool) *models.Account {
	c := *a
	if !withPasswordHash {
		c.PasswordHash = ""
	}
	if a.Verification != nil {
		v := *a.Verification
		c.Verification = &v
	}
	if a.Reset != nil {
		r := *a.Reset
		c.Reset = &r
	}
	return &c
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string, opts ...FindOption) (*models.Account, error) {
	o := applyFindOptions(opts)

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneAccount(r.byID[id], o.withPasswordHash), nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string, opts ...FindOption) (*models.Account, error) {
	o := applyFindOptions(opts)

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneAccount(a, o.withPasswordHash), nil
}

func (r *MemoryRepository) FindByResetOTP(ctx context.Context, code int, now time.Time) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.byID {
		if a.Reset.Valid(code, now) {
			return cloneAccount(a, false), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := account.Email
	if _, taken := r.byEmail[key]; taken {
		return common.ErrDuplicateAccount
	}

	account.ID = uuid.NewString()
	account.CreatedAt = r.now().UTC()

	r.byID[account.ID] = cloneAccount(account, true)
	r.byEmail[key] = account.ID
	return nil
}

func (r *MemoryRepository) Save(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[account.ID]
	if !ok {
		return common.ErrNotFound
	}

	next := cloneAccount(account, true)
	if next.PasswordHash == "" {
		next.PasswordHash = stored.PasswordHash
	}
	next.Email = stored.Email
	next.CreatedAt = stored.CreatedAt

	r.byID[account.ID] = next
	return nil
}
