package services

import (
	"context"
	"sync"
	"testing"
)

// checkEntitlementInvariant asserts that via-partner pro always implies pro
func checkEntitlementInvariant(t *testing.T, store *stubIdentityStore) {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, identity := range store.identities {
		if identity.IsProViaPartner && !identity.IsPro {
			t.Fatalf("identity %s is via-partner pro but not pro", identity.ID)
		}
	}
}

func reportFor(t *testing.T, svc *EntitlementService, store *stubIdentityStore, id string, ownSub bool) {
	t.Helper()
	identity, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	if err := svc.Report(context.Background(), identity, ownSub); err != nil {
		t.Fatalf("Report(%s, %v): %v", id, ownSub, err)
	}
	checkEntitlementInvariant(t, store)
}

func assertEntitlement(t *testing.T, store *stubIdentityStore, id string, isPro, viaPartner bool) {
	t.Helper()
	identity, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	if identity.IsPro != isPro || identity.IsProViaPartner != viaPartner {
		t.Fatalf("identity %s: isPro=%v viaPartner=%v, want isPro=%v viaPartner=%v",
			id, identity.IsPro, identity.IsProViaPartner, isPro, viaPartner)
	}
}

func pairedEntitlementFixture(t *testing.T) (*EntitlementService, *stubIdentityStore) {
	t.Helper()
	store := newStubIdentityStore("a", "b")
	pairing := NewPairingService(store, NewEventBus())
	pairUp(t, pairing, store, "a", "b")
	return NewEntitlementService(store), store
}

func TestReportSolo(t *testing.T) {
	store := newStubIdentityStore("a")
	svc := NewEntitlementService(store)

	reportFor(t, svc, store, "a", true)
	assertEntitlement(t, store, "a", true, false)

	reportFor(t, svc, store, "a", false)
	assertEntitlement(t, store, "a", false, false)
}

func TestReportDonatesToPartner(t *testing.T) {
	svc, store := pairedEntitlementFixture(t)

	reportFor(t, svc, store, "a", true)
	assertEntitlement(t, store, "a", true, false)
	assertEntitlement(t, store, "b", true, true)
}

func TestReportIdempotent(t *testing.T) {
	svc, store := pairedEntitlementFixture(t)

	reportFor(t, svc, store, "a", true)
	reportFor(t, svc, store, "a", true)
	assertEntitlement(t, store, "a", true, false)
	assertEntitlement(t, store, "b", true, true)
}

func TestDonatedProSurvivesPartnerReport(t *testing.T) {
	svc, store := pairedEntitlementFixture(t)

	reportFor(t, svc, store, "a", true)
	// b reports having no subscription of their own; a's donation still holds
	reportFor(t, svc, store, "b", false)
	assertEntitlement(t, store, "b", true, true)
	assertEntitlement(t, store, "a", true, false)
}

func TestReportRevokesDonation(t *testing.T) {
	svc, store := pairedEntitlementFixture(t)

	reportFor(t, svc, store, "a", true)
	reportFor(t, svc, store, "a", false)
	assertEntitlement(t, store, "a", false, false)
	assertEntitlement(t, store, "b", false, false)
}

func TestBothSubscribedNeitherViaPartner(t *testing.T) {
	svc, store := pairedEntitlementFixture(t)

	reportFor(t, svc, store, "a", true)
	reportFor(t, svc, store, "b", true)
	assertEntitlement(t, store, "a", true, false)
	assertEntitlement(t, store, "b", true, false)

	// a cancels; b's own subscription now covers a
	reportFor(t, svc, store, "a", false)
	assertEntitlement(t, store, "a", true, true)
	assertEntitlement(t, store, "b", true, false)
}

func TestConcurrentReportsSerialize(t *testing.T) {
	// Both sides report their own subscription at the same time. Whatever the
	// interleaving, a self-subscribed identity must never end up flagged as
	// pro via partner.
	for round := 0; round < 20; round++ {
		svc, store := pairedEntitlementFixture(t)

		var wg sync.WaitGroup
		for _, id := range []string{"a", "b"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				identity, _ := store.GetByID(context.Background(), id)
				if err := svc.Report(context.Background(), identity, true); err != nil {
					t.Errorf("Report(%s): %v", id, err)
				}
			}(id)
		}
		wg.Wait()

		assertEntitlement(t, store, "a", true, false)
		assertEntitlement(t, store, "b", true, false)
		checkEntitlementInvariant(t, store)
	}
}

func TestDonationDoesNotChain(t *testing.T) {
	svc, store := pairedEntitlementFixture(t)

	reportFor(t, svc, store, "a", true)
	// b's pro is via-partner only, so b reporting must not mark a via-partner
	reportFor(t, svc, store, "b", false)
	assertEntitlement(t, store, "a", true, false)
}
