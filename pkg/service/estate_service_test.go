package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aigree/aigree/pkg/db"
)

func TestRegisterEstate_AndUpdate(t *testing.T) {
	gdb := newTestDB(t)
	owner := seedUser(t, gdb, "山田太郎", "taro@example.com")
	project := seedProject(t, gdb, owner, "実家の相続")
	svc := NewEstateService(gdb)

	valuation := int64(32_000_000)
	estate, err := svc.RegisterEstate(context.Background(), project.ID, &db.RegisterEstateRequest{
		Address:      "東京都世田谷区1-2-3",
		TaxValuation: &valuation,
		IssueTags:    []string{"実家", "固定資産税"},
	})
	if err != nil {
		t.Fatalf("RegisterEstate() error = %v", err)
	}

	assets := int64(8_000_000)
	updated, err := svc.UpdateEstate(context.Background(), project.ID, estate.ID, &db.UpdateEstateRequest{
		FinancialAssets: &assets,
	})
	if err != nil {
		t.Fatalf("UpdateEstate() error = %v", err)
	}
	if updated.FinancialAssets == nil || *updated.FinancialAssets != assets {
		t.Fatalf("FinancialAssets = %v, want %d", updated.FinancialAssets, assets)
	}
	if updated.TaxValuation == nil || *updated.TaxValuation != valuation {
		t.Fatalf("TaxValuation lost on partial update: %v", updated.TaxValuation)
	}
	if len(updated.IssueTags) != 2 {
		t.Fatalf("IssueTags = %v, want 2 entries", updated.IssueTags)
	}

	estates, err := svc.ListEstates(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("ListEstates() error = %v", err)
	}
	if len(estates) != 1 {
		t.Fatalf("len(estates) = %d, want 1", len(estates))
	}
}

func TestRegisterEstate_RequiresAddress(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewEstateService(gdb)
	if _, err := svc.RegisterEstate(context.Background(), "p", &db.RegisterEstateRequest{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("RegisterEstate() error = %v, want ErrValidation", err)
	}
}

func TestDeleteEstate_Unknown(t *testing.T) {
	gdb := newTestDB(t)
	svc := NewEstateService(gdb)
	if err := svc.DeleteEstate(context.Background(), "p", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteEstate() error = %v, want ErrNotFound", err)
	}
}

func TestEstate_ScopedToProject(t *testing.T) {
	gdb := newTestDB(t)
	owner := seedUser(t, gdb, "山田太郎", "taro@example.com")
	project := seedProject(t, gdb, owner, "実家の相続")
	other := seedProject(t, gdb, owner, "別荘の相続")
	svc := NewEstateService(gdb)

	estate, err := svc.RegisterEstate(context.Background(), project.ID, &db.RegisterEstateRequest{
		Address: "東京都世田谷区1-2-3",
	})
	if err != nil {
		t.Fatalf("RegisterEstate() error = %v", err)
	}

	address := "書き換え"
	if _, err := svc.UpdateEstate(context.Background(), other.ID, estate.ID, &db.UpdateEstateRequest{
		Address: &address,
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateEstate(wrong project) error = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteEstate(context.Background(), other.ID, estate.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteEstate(wrong project) error = %v, want ErrNotFound", err)
	}

	if err := svc.DeleteEstate(context.Background(), project.ID, estate.ID); err != nil {
		t.Fatalf("DeleteEstate() error = %v", err)
	}
}
