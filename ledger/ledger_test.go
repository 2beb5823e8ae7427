package ledger

import (
	"sync"
	"testing"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/storage"
)

func TestCreditAndBalance(t *testing.T) {
	l := New(storage.NewMemoryStore())
	if err := l.Credit("client-1", "AGT", 1000); err != nil {
		t.Fatal(err)
	}
	bal, err := l.Balance("client-1", "AGT")
	if err != nil {
		t.Fatal(err)
	}
	if bal != 1000 {
		t.Fatalf("expected 1000, got %d", bal)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	l := New(storage.NewMemoryStore())
	l.Credit("client-1", "AGT", 50)
	err := l.Debit("client-1", "AGT", 100)
	if errs.KindOf(err) != errs.InsufficientFunds {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}

func TestTransferConservesTotal(t *testing.T) {
	l := New(storage.NewMemoryStore())
	l.Credit("client-1", "AGT", 1000)
	if err := l.Transfer("client-1", "provider-1", "AGT", 100); err != nil {
		t.Fatal(err)
	}
	clientBal, _ := l.Balance("client-1", "AGT")
	providerBal, _ := l.Balance("provider-1", "AGT")
	if clientBal != 900 {
		t.Fatalf("expected client balance 900, got %d", clientBal)
	}
	if providerBal != 100 {
		t.Fatalf("expected provider balance 100, got %d", providerBal)
	}
	if clientBal+providerBal != 1000 {
		t.Fatal("total token supply must be conserved across transfer")
	}
}

func TestConcurrentCreditsAreConsistent(t *testing.T) {
	l := New(storage.NewMemoryStore())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Credit("pool", "AGT", 1)
		}()
	}
	wg.Wait()
	bal, _ := l.Balance("pool", "AGT")
	if bal != 100 {
		t.Fatalf("expected 100 after 100 concurrent credits, got %d", bal)
	}
}
