package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// newTestPasswordService returns a PasswordService at bcrypt.MinCost so the
// tests run in milliseconds.
func newTestPasswordService() *PasswordService {
	return newPasswordService(bcrypt.MinCost)
}

func TestHash_MaxPasswordBytesBoundary(t *testing.T) {
	ps := newTestPasswordService()

	atLimit := strings.Repeat("a", MaxPasswordBytes)
	hash, err := ps.Hash(atLimit)
	if err != nil {
		t.Fatalf("Hash(%d bytes) error = %v", MaxPasswordBytes, err)
	}
	if err := ps.Verify(hash, atLimit); err != nil {
		t.Errorf("Verify(%d bytes) error = %v", MaxPasswordBytes, err)
	}

	if _, err := ps.Hash(atLimit + "a"); err == nil {
		t.Errorf("Hash(%d bytes) should fail", MaxPasswordBytes+1)
	}
}

func TestHash_UsesConfiguredCost(t *testing.T) {
	ps := newPasswordService(bcrypt.MinCost + 1)

	hash, err := ps.Hash("secret")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("bcrypt.Cost() error = %v", err)
	}
	if cost != bcrypt.MinCost+1 {
		t.Errorf("cost = %d, want %d", cost, bcrypt.MinCost+1)
	}
}

func TestVerify_ErrorKinds(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("correct")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name         string
		hash         string
		password     string
		wantErr      bool
		wantMismatch bool
	}{
		{name: "match", hash: hash, password: "correct"},
		{name: "wrong password", hash: hash, password: "wrong", wantErr: true, wantMismatch: true},
		{name: "empty password", hash: hash, password: "", wantErr: true, wantMismatch: true},
		{name: "garbage hash", hash: "not-a-bcrypt-hash", password: "correct", wantErr: true},
		{name: "empty hash", hash: "", password: "correct", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, ErrPasswordMismatch); got != tt.wantMismatch {
				t.Errorf("errors.Is(err, ErrPasswordMismatch) = %v, want %v (err = %v)", got, tt.wantMismatch, err)
			}
		})
	}
}

func TestNewPasswordService_PrecomputesDummyHash(t *testing.T) {
	ps := newTestPasswordService()

	if len(ps.dummyHash) == 0 {
		t.Fatal("dummy hash not built by the constructor")
	}
	cost, err := bcrypt.Cost(ps.dummyHash)
	if err != nil {
		t.Fatalf("dummy hash is not a bcrypt hash: %v", err)
	}
	if cost != ps.cost {
		t.Errorf("dummy hash cost = %d, want %d", cost, ps.cost)
	}
}

func TestVerifyDummy_RunsRealComparison(t *testing.T) {
	ps := newTestPasswordService()

	// A valid hash means VerifyDummy's comparison goes through the full
	// key schedule instead of failing early on a malformed hash.
	if err := bcrypt.CompareHashAndPassword(ps.dummyHash, []byte(dummyPassword)); err != nil {
		t.Fatalf("dummy hash does not verify: %v", err)
	}

	before := string(ps.dummyHash)
	ps.VerifyDummy("anything")
	ps.VerifyDummy("")
	if string(ps.dummyHash) != before {
		t.Error("VerifyDummy changed the dummy hash")
	}
}
