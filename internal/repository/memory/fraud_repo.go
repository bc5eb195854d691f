package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type FraudRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*domain.FraudRule
}

func NewFraudRuleRepository() *FraudRuleRepository {
	return &FraudRuleRepository{
		rules: make(map[string]*domain.FraudRule),
	}
}

func (r *FraudRuleRepository) Save(ctx context.Context, rule *domain.FraudRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID]; exists {
		return fmt.Errorf("%w: fraud rule %s", repository.ErrDuplicate, rule.ID)
	}
	copied := *rule
	r.rules[rule.ID] = &copied

	return nil
}

func (r *FraudRuleRepository) GetEnabled(ctx context.Context) ([]*domain.FraudRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.FraudRule
	for _, rule := range r.rules {
		if rule.Enabled {
			copied := *rule
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

type FraudEventRepository struct {
	mu     sync.RWMutex
	events map[string]*domain.FraudEvent
}

func NewFraudEventRepository() *FraudEventRepository {
	return &FraudEventRepository{
		events: make(map[string]*domain.FraudEvent),
	}
}

func (r *FraudEventRepository) Save(ctx context.Context, event *domain.FraudEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[event.ID]; exists {
		return fmt.Errorf("%w: fraud event %s", repository.ErrDuplicate, event.ID)
	}
	copied := *event
	copied.Flags = append([]string(nil), event.Flags...)
	r.events[event.ID] = &copied

	return nil
}

func (r *FraudEventRepository) GetByAccountID(ctx context.Context, accountID string) ([]*domain.FraudEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.FraudEvent
	for _, event := range r.events {
		if event.AccountID == accountID {
			copied := *event
			copied.Flags = append([]string(nil), event.Flags...)
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}
