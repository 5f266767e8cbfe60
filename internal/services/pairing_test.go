package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nearish-backend/internal/models"
	"nearish-backend/internal/repository"
)

// stubIdentityStore is an in-memory identity table shared by the pairing and
// entitlement tests. ClaimPartners and ApplyEntitlements are atomic under the
// mutex, matching the transactional guarantees of the real repository.
type stubIdentityStore struct {
	mu         sync.Mutex
	identities map[string]*models.Identity
}

func newStubIdentityStore(ids ...string) *stubIdentityStore {
	s := &stubIdentityStore{identities: make(map[string]*models.Identity)}
	for _, id := range ids {
		s.identities[id] = &models.Identity{ID: id, AccountID: "acct-" + id}
	}
	return s
}

func (s *stubIdentityStore) GetByID(_ context.Context, id string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *stubIdentityStore) GetByConnectionCode(_ context.Context, code string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.ConnectionCode != nil && *identity.ConnectionCode == code {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *stubIdentityStore) CodeExists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.ConnectionCode != nil && *identity.ConnectionCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubIdentityStore) SetConnectionCode(_ context.Context, id, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return models.ErrNotFound
	}
	if identity.PartnerID != nil {
		return models.ErrAlreadyPaired
	}
	for otherID, other := range s.identities {
		if otherID != id && other.ConnectionCode != nil && *other.ConnectionCode == code {
			return models.ErrCodeTaken
		}
	}
	identity.ConnectionCode = &code
	return nil
}

func (s *stubIdentityStore) ClaimPartners(_ context.Context, meID, partnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	me, ok := s.identities[meID]
	if !ok {
		return models.ErrNotFound
	}
	partner, ok := s.identities[partnerID]
	if !ok {
		return models.ErrNotFound
	}
	if me.PartnerID != nil {
		return models.ErrAlreadyPaired
	}
	if partner.PartnerID != nil {
		return models.ErrTargetAlreadyPaired
	}
	me.PartnerID = &partner.ID
	partner.PartnerID = &me.ID
	me.ConnectionCode = nil
	partner.ConnectionCode = nil
	return nil
}

func (s *stubIdentityStore) ClearPartners(_ context.Context, aID, bID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.identities[aID]; ok {
		a.PartnerID = nil
	}
	if b, ok := s.identities[bID]; ok {
		b.PartnerID = nil
	}
	return nil
}

func (s *stubIdentityStore) ApplyEntitlements(_ context.Context, identityID string, rule func(me, partner *models.Identity) []repository.EntitlementUpdate) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	me, ok := s.identities[identityID]
	if !ok {
		return nil, models.ErrNotFound
	}
	var partner *models.Identity
	if me.PartnerID != nil {
		partner = s.identities[*me.PartnerID]
	}
	for _, u := range rule(me, partner) {
		identity, ok := s.identities[u.IdentityID]
		if !ok {
			return nil, models.ErrNotFound
		}
		identity.IsPro = u.IsPro
		identity.IsProViaPartner = u.IsProViaPartner
	}
	cp := *me
	return &cp, nil
}

// checkSymmetry fails the test if any partner link is one-directional
func (s *stubIdentityStore) checkSymmetry(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.PartnerID == nil {
			continue
		}
		partner := s.identities[*identity.PartnerID]
		if partner == nil || partner.PartnerID == nil || *partner.PartnerID != identity.ID {
			t.Fatalf("partner link of %s is not symmetric", identity.ID)
		}
	}
}

func drainEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestIssueCodeIdempotent(t *testing.T) {
	store := newStubIdentityStore("a")
	svc := NewPairingService(store, NewEventBus())

	me, _ := store.GetByID(context.Background(), "a")
	code, err := svc.IssueCode(context.Background(), me)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if len(code) != codeLength {
		t.Fatalf("code length = %d, want %d", len(code), codeLength)
	}

	me, _ = store.GetByID(context.Background(), "a")
	again, err := svc.IssueCode(context.Background(), me)
	if err != nil {
		t.Fatalf("IssueCode again: %v", err)
	}
	if again != code {
		t.Fatalf("second IssueCode returned %q, want %q", again, code)
	}
}

// collidingPairingStore fails the first n SetConnectionCode calls as if a
// concurrent issuer had just taken the code
type collidingPairingStore struct {
	*stubIdentityStore
	collisions int
}

func (s *collidingPairingStore) SetConnectionCode(ctx context.Context, id, code string) error {
	if s.collisions > 0 {
		s.collisions--
		return models.ErrCodeTaken
	}
	return s.stubIdentityStore.SetConnectionCode(ctx, id, code)
}

func TestIssueCodeRetriesTakenCode(t *testing.T) {
	store := &collidingPairingStore{stubIdentityStore: newStubIdentityStore("a"), collisions: 2}
	svc := NewPairingService(store, NewEventBus())

	me, _ := store.GetByID(context.Background(), "a")
	code, err := svc.IssueCode(context.Background(), me)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if store.collisions != 0 {
		t.Fatalf("collisions remaining = %d, want 0", store.collisions)
	}
	stored, _ := store.GetByID(context.Background(), "a")
	if stored.ConnectionCode == nil || *stored.ConnectionCode != code {
		t.Fatal("code not stored after retries")
	}
}

func TestIssueCodeAlreadyPaired(t *testing.T) {
	store := newStubIdentityStore("a", "b")
	svc := NewPairingService(store, NewEventBus())

	pairUp(t, svc, store, "a", "b")

	me, _ := store.GetByID(context.Background(), "a")
	if _, err := svc.IssueCode(context.Background(), me); !errors.Is(err, models.ErrAlreadyPaired) {
		t.Fatalf("IssueCode on paired identity: got %v, want ErrAlreadyPaired", err)
	}
}

// pairUp issues a code for owner and connects joiner to it
func pairUp(t *testing.T, svc *PairingService, store *stubIdentityStore, owner, joiner string) string {
	t.Helper()
	o, _ := store.GetByID(context.Background(), owner)
	code, err := svc.IssueCode(context.Background(), o)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	j, _ := store.GetByID(context.Background(), joiner)
	if _, err := svc.Connect(context.Background(), j, code, "Tester"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return code
}

func TestConnectLinksSymmetrically(t *testing.T) {
	store := newStubIdentityStore("a", "b")
	bus := NewEventBus()
	svc := NewPairingService(store, bus)

	ownerSub := bus.Subscribe("a")
	defer bus.Unsubscribe(ownerSub)

	pairUp(t, svc, store, "a", "b")
	store.checkSymmetry(t)

	a, _ := store.GetByID(context.Background(), "a")
	b, _ := store.GetByID(context.Background(), "b")
	if a.PartnerID == nil || *a.PartnerID != "b" || b.PartnerID == nil || *b.PartnerID != "a" {
		t.Fatal("partner ids not linked")
	}
	if a.ConnectionCode != nil || b.ConnectionCode != nil {
		t.Fatal("connection codes not cleared")
	}

	ev := drainEvent(t, ownerSub)
	if ev.Type != "partner_connected" {
		t.Fatalf("event type = %q, want partner_connected", ev.Type)
	}
}

func TestConnectSelf(t *testing.T) {
	store := newStubIdentityStore("a")
	svc := NewPairingService(store, NewEventBus())

	me, _ := store.GetByID(context.Background(), "a")
	code, _ := svc.IssueCode(context.Background(), me)

	me, _ = store.GetByID(context.Background(), "a")
	if _, err := svc.Connect(context.Background(), me, code, ""); !errors.Is(err, models.ErrSelfConnect) {
		t.Fatalf("self connect: got %v, want ErrSelfConnect", err)
	}
}

func TestConnectCodeNotFound(t *testing.T) {
	store := newStubIdentityStore("a")
	svc := NewPairingService(store, NewEventBus())

	me, _ := store.GetByID(context.Background(), "a")
	if _, err := svc.Connect(context.Background(), me, "NOPE42", ""); !errors.Is(err, models.ErrCodeNotFound) {
		t.Fatalf("unknown code: got %v, want ErrCodeNotFound", err)
	}
}

func TestCodeNotReusableAfterConnect(t *testing.T) {
	store := newStubIdentityStore("a", "b", "c")
	svc := NewPairingService(store, NewEventBus())

	code := pairUp(t, svc, store, "a", "b")

	c, _ := store.GetByID(context.Background(), "c")
	if _, err := svc.Connect(context.Background(), c, code, ""); !errors.Is(err, models.ErrCodeNotFound) {
		t.Fatalf("consumed code reuse: got %v, want ErrCodeNotFound", err)
	}
}

func TestConnectAlreadyPaired(t *testing.T) {
	store := newStubIdentityStore("a", "b", "c")
	svc := NewPairingService(store, NewEventBus())

	pairUp(t, svc, store, "a", "b")

	c, _ := store.GetByID(context.Background(), "c")
	code, _ := svc.IssueCode(context.Background(), c)

	a, _ := store.GetByID(context.Background(), "a")
	if _, err := svc.Connect(context.Background(), a, code, ""); !errors.Is(err, models.ErrAlreadyPaired) {
		t.Fatalf("paired caller: got %v, want ErrAlreadyPaired", err)
	}
}

func TestConcurrentConnectSameCode(t *testing.T) {
	store := newStubIdentityStore("owner", "b", "c")
	svc := NewPairingService(store, NewEventBus())

	o, _ := store.GetByID(context.Background(), "owner")
	code, err := svc.IssueCode(context.Background(), o)
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, caller := range []string{"b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			identity, _ := store.GetByID(context.Background(), id)
			_, err := svc.Connect(context.Background(), identity, code, "")
			results <- err
		}(caller)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, models.ErrCodeNotFound) && !errors.Is(err, models.ErrTargetAlreadyPaired) {
			t.Fatalf("loser error = %v, want ErrCodeNotFound or ErrTargetAlreadyPaired", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
	store.checkSymmetry(t)
}

func TestDisconnect(t *testing.T) {
	store := newStubIdentityStore("a", "b")
	bus := NewEventBus()
	svc := NewPairingService(store, bus)

	pairUp(t, svc, store, "a", "b")

	partnerSub := bus.Subscribe("b")
	defer bus.Unsubscribe(partnerSub)

	a, _ := store.GetByID(context.Background(), "a")
	if err := svc.Disconnect(context.Background(), a); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	store.checkSymmetry(t)

	a, _ = store.GetByID(context.Background(), "a")
	b, _ := store.GetByID(context.Background(), "b")
	if a.PartnerID != nil || b.PartnerID != nil {
		t.Fatal("partner ids not cleared")
	}

	ev := drainEvent(t, partnerSub)
	if ev.Type != "partner_disconnected" {
		t.Fatalf("event type = %q, want partner_disconnected", ev.Type)
	}

	if err := svc.Disconnect(context.Background(), a); !errors.Is(err, models.ErrNotPaired) {
		t.Fatalf("double disconnect: got %v, want ErrNotPaired", err)
	}
}
