package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sakif/roomchat/internal/apperror"
	"github.com/sakif/roomchat/internal/auth"
	"github.com/sakif/roomchat/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository that enforces the
// same unique-email rule as the real table.
type fakeUserRepo struct {
	users   map[int64]*model.User
	byEmail map[string]int64
	nextID  int64
	// set to a non-nil error to simulate a database failure
	createErr error
	getErr    error
	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[int64]*model.User),
		byEmail: make(map[string]int64),
	}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, dup := f.byEmail[user.Email]; dup {
		return apperror.DuplicateEmail()
	}
	f.nextID++
	user.ID = f.nextID
	stored := *user
	f.users[user.ID] = &stored
	f.byEmail[user.Email] = user.ID
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	id, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	return f.GetUserByID(ctx, id)
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id int64, about, avatar string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.About = about
	u.Avatar = avatar
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAccountService(repo *fakeUserRepo) *AccountService {
	// Cost 4 is the bcrypt minimum, keeps tests fast.
	return NewAccountService(repo, auth.NewPasswordServiceForTest(4), discardLogger())
}

func mustRegister(t *testing.T, svc *AccountService, name, email, password string) *model.User {
	t.Helper()
	u, err := svc.Register(context.Background(), name, email, password)
	if err != nil {
		t.Fatalf("Register(%q) error = %v", email, err)
	}
	return u
}

// =========================================================================
// Register TESTS
// =========================================================================

func TestRegister_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAccountService(repo)

	user := mustRegister(t, svc, "  Alice ", " alice@example.com ", "s3cret")

	if user.ID == 0 {
		t.Error("Register() did not set an ID")
	}
	if user.Name != "Alice" || user.Email != "alice@example.com" {
		t.Errorf("Register() did not trim fields: %+v", user)
	}
	if user.Avatar != model.DefaultAvatar {
		t.Errorf("Avatar = %q, want %q", user.Avatar, model.DefaultAvatar)
	}
	if user.About != "" {
		t.Errorf("About = %q, want empty", user.About)
	}
}

func TestRegister_PasswordIsHashed(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAccountService(repo)

	user := mustRegister(t, svc, "Bob", "bob@example.com", "plain-text")

	stored := repo.users[user.ID]
	if stored.PasswordHash == "plain-text" || !strings.HasPrefix(stored.PasswordHash, "$2") {
		t.Errorf("stored password is not a bcrypt hash: %q", stored.PasswordHash)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAccountService(repo)

	mustRegister(t, svc, "first", "dup@example.com", "pw1")

	_, err := svc.Register(context.Background(), "second", "dup@example.com", "pw2")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Register() error = %v, want ErrConflict", err)
	}
	if got := apperror.UserMessage(err); got != apperror.MsgDuplicateEmail {
		t.Errorf("message = %q, want %q", got, apperror.MsgDuplicateEmail)
	}
	if len(repo.users) != 1 {
		t.Errorf("stored users = %d, want 1", len(repo.users))
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		email    string
		password string
		field    string
	}{
		{"empty name", "  ", "a@example.com", "pw", "name"},
		{"long name", strings.Repeat("n", MaxNameLength+1), "a@example.com", "pw", "name"},
		{"empty email", "A", "", "pw", "email"},
		{"empty password", "A", "a@example.com", "", "password"},
		{"long password", "A", "a@example.com", strings.Repeat("p", auth.MaxPasswordBytes+1), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAccountService(newFakeUserRepo())

			_, err := svc.Register(context.Background(), tt.user, tt.email, tt.password)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Register() error = %v, want validation error", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestRegister_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErr = errors.New("database is on fire")
	svc := newTestAccountService(repo)

	_, err := svc.Register(context.Background(), "A", "a@example.com", "pw")
	if err == nil {
		t.Fatal("Register() should propagate repository errors")
	}
	if errors.Is(err, apperror.ErrConflict) {
		t.Error("a raw repository error must not look like a duplicate email")
	}
}

// =========================================================================
// Authenticate TESTS
// =========================================================================

func TestAuthenticate_Success(t *testing.T) {
	svc := newTestAccountService(newFakeUserRepo())
	registered := mustRegister(t, svc, "Carol", "carol@example.com", "right")

	user, err := svc.Authenticate(context.Background(), "carol@example.com", "right")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("ID = %d, want %d", user.ID, registered.ID)
	}
}

func TestAuthenticate_WrongPasswordAndUnknownEmailLookTheSame(t *testing.T) {
	svc := newTestAccountService(newFakeUserRepo())
	mustRegister(t, svc, "Dan", "dan@example.com", "right")

	_, wrongPw := svc.Authenticate(context.Background(), "dan@example.com", "wrong")
	_, noUser := svc.Authenticate(context.Background(), "ghost@example.com", "right")

	for name, err := range map[string]error{"wrong password": wrongPw, "unknown email": noUser} {
		if !errors.Is(err, apperror.ErrInvalidCredentials) {
			t.Errorf("%s: error = %v, want ErrInvalidCredentials", name, err)
		}
	}
	if wrongPw.Error() != noUser.Error() {
		t.Errorf("messages differ: %q vs %q", wrongPw.Error(), noUser.Error())
	}
	if apperror.UserMessage(wrongPw) != apperror.MsgInvalidCredentials {
		t.Errorf("UserMessage = %q, want %q", apperror.UserMessage(wrongPw), apperror.MsgInvalidCredentials)
	}
}

func TestAuthenticate_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAccountService(repo)
	repo.getErr = errors.New("connection reset")

	_, err := svc.Authenticate(context.Background(), "a@example.com", "pw")
	if err == nil || errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want a non-credential error", err)
	}
}

// =========================================================================
// Get / UpdateProfile TESTS
// =========================================================================

func TestGet(t *testing.T) {
	svc := newTestAccountService(newFakeUserRepo())
	registered := mustRegister(t, svc, "Erin", "erin@example.com", "pw")

	user, err := svc.Get(context.Background(), registered.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if user.Name != "Erin" {
		t.Errorf("Name = %q, want Erin", user.Name)
	}

	if _, err := svc.Get(context.Background(), 999); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get(999) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(context.Background(), 0); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Get(0) error = %v, want ErrValidation", err)
	}
}

func TestUpdateProfile_Overwrites(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAccountService(repo)
	u := mustRegister(t, svc, "Finn", "finn@example.com", "pw")

	if err := svc.UpdateProfile(context.Background(), u.ID, "new bio", "finn.png"); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if err := svc.UpdateProfile(context.Background(), u.ID, "", "finn.png"); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	stored := repo.users[u.ID]
	if stored.About != "" {
		t.Errorf("About = %q, want empty after overwrite", stored.About)
	}
	if stored.Avatar != "finn.png" {
		t.Errorf("Avatar = %q, want finn.png", stored.Avatar)
	}
}

func TestUpdateProfile_TooLongAbout(t *testing.T) {
	svc := newTestAccountService(newFakeUserRepo())
	u := mustRegister(t, svc, "Gus", "gus@example.com", "pw")

	err := svc.UpdateProfile(context.Background(), u.ID, strings.Repeat("x", MaxAboutLength+1), "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("UpdateProfile() error = %v, want ErrValidation", err)
	}
}

func TestUpdateProfile_UnknownUser(t *testing.T) {
	svc := newTestAccountService(newFakeUserRepo())

	err := svc.UpdateProfile(context.Background(), 77, "bio", "x.png")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateProfile() error = %v, want ErrNotFound", err)
	}
}
