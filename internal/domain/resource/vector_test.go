package resource_test

import (
	"testing"

	"github.com/Strob0t/CodeForge/internal/domain/resource"
)

func TestVector_Validate(t *testing.T) {
	if err := (resource.Vector{"cpu": 2}).Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := (resource.Vector{"cpu": -1}).Validate(); err == nil {
		t.Fatal("expected error for negative component")
	}
}

func TestVector_Fits(t *testing.T) {
	req := resource.Vector{"cpu": 2, "memory": 100}
	if !req.Fits(resource.Vector{"cpu": 4, "memory": 100}) {
		t.Fatal("expected fit")
	}
	if req.Fits(resource.Vector{"cpu": 4, "memory": 50}) {
		t.Fatal("expected no fit: memory short")
	}
	if req.Fits(resource.Vector{"cpu": 4}) {
		t.Fatal("expected no fit: missing memory component treated as zero")
	}
}

func TestVector_SubAdd_RoundTrip(t *testing.T) {
	total := resource.Vector{"cpu": 4}
	reserved := resource.Vector{"cpu": 2}
	avail := total.Sub(reserved)
	if avail["cpu"] != 2 {
		t.Fatalf("expected 2, got %v", avail["cpu"])
	}
	back := avail.Add(reserved)
	if back["cpu"] != 4 {
		t.Fatalf("expected 4, got %v", back["cpu"])
	}
}

func TestVector_Exceeds(t *testing.T) {
	if !(resource.Vector{"cpu": 5}).Exceeds(resource.Vector{"cpu": 4}) {
		t.Fatal("expected exceeds")
	}
	if (resource.Vector{"cpu": 4}).Exceeds(resource.Vector{"cpu": 4}) {
		t.Fatal("expected not exceeds at equality")
	}
}

func TestVector_Clone_Independent(t *testing.T) {
	orig := resource.Vector{"cpu": 1}
	clone := orig.Clone()
	clone["cpu"] = 99
	if orig["cpu"] != 1 {
		t.Fatal("mutating clone affected original")
	}
}
