package atm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"atm-client/internal/client"
)

func TestLoginPopulatesState(t *testing.T) {
	sess, store, _ := newSession(t)
	if err := sess.Login(context.Background(), "1234567890", "1234"); err != nil {
		t.Fatal(err)
	}
	if !sess.Authenticated() || sess.IsAdmin() {
		t.Fatalf("authenticated=%v admin=%v", sess.Authenticated(), sess.IsAdmin())
	}
	if store.Access() == "" || store.Refresh() == "" {
		t.Fatalf("credentials not stored: %+v", store.Credentials())
	}
	cur, _ := sess.State().Current()
	if cur.Balance != 1000 || cur.DailyLimit != 5000 {
		t.Fatalf("account=%+v", cur)
	}
}

func TestLoginRejected(t *testing.T) {
	sess, store, srv := newSession(t)
	err := sess.Login(context.Background(), "1234567890", "9999")
	if !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("want ErrLoginRejected, got %v", err)
	}
	if store.Valid() || sess.Authenticated() {
		t.Fatal("rejected login must not leave a session")
	}
	if srv.Hits("refresh") != 0 {
		t.Fatal("login must never refresh")
	}
}

func TestLoginMalformedNeverReachesBackend(t *testing.T) {
	sess, _, srv := newSession(t)
	if err := sess.Login(context.Background(), "123", "1234"); !errors.Is(err, ErrMalformedAccountNumber) {
		t.Fatalf("got %v", err)
	}
	if srv.Hits("login") != 0 {
		t.Fatal("malformed login was sent")
	}
}

func TestAdminLogin(t *testing.T) {
	sess, _, _ := newSession(t)
	if err := sess.Login(context.Background(), "9999999999", "0000"); err != nil {
		t.Fatal(err)
	}
	if !sess.IsAdmin() {
		t.Fatal("admin role not recognised")
	}
}

func TestResume(t *testing.T) {
	sess, store, srv := newSession(t)
	ctx := context.Background()

	if ok, err := sess.Resume(ctx); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	access, refresh := srv.Issue("1234567890")
	_ = store.SetCredentials(access, refresh)
	ok, err := sess.Resume(ctx)
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if cur, _ := sess.State().Current(); cur.AccountNumber != "1234567890" {
		t.Fatalf("account=%+v", cur)
	}
}

func TestResumeDiscardsDeadSession(t *testing.T) {
	sess, store, srv := newSession(t)
	access, refresh := srv.Issue("1234567890")
	_ = store.SetCredentials(access, refresh)
	srv.ExpireAccess()
	srv.SetFailRefresh(true)

	ok, err := sess.Resume(context.Background())
	if ok || !errors.Is(err, client.ErrUnauthenticated) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if store.Valid() || sess.Authenticated() {
		t.Fatal("dead session kept")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	sess, store, srv := newSession(t)
	ctx := context.Background()
	if err := sess.Login(ctx, "1234567890", "1234"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Valid() || sess.Authenticated() {
		t.Fatal("session survived logout")
	}
	if srv.Hits("logout") != 1 {
		t.Fatalf("logout hits=%d", srv.Hits("logout"))
	}
}

func TestSyncBalanceAndAuthLoss(t *testing.T) {
	sess, _, srv := newSession(t)
	ctx := context.Background()
	if err := sess.Login(ctx, "1234567890", "1234"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Orchestrator(quiet()).Deposit(ctx, 500); err != nil {
		t.Fatal(err)
	}
	a, err := sess.SyncBalance(ctx)
	if err != nil || a.Balance != 1500 {
		t.Fatalf("balance=%d err=%v", a.Balance, err)
	}

	srv.ExpireAccess()
	srv.SetFailRefresh(true)
	if _, err := sess.SyncBalance(ctx); !errors.Is(err, client.ErrUnauthenticated) {
		t.Fatalf("want auth error, got %v", err)
	}
	if _, ok := sess.State().Current(); ok {
		t.Fatal("account state kept after auth loss")
	}
}

func TestChangePIN(t *testing.T) {
	sess, _, _ := newSession(t)
	ctx := context.Background()
	if err := sess.Login(ctx, "1234567890", "1234"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.ChangePIN(ctx, "1234", "1234"); !errors.Is(err, ErrSamePIN) {
		t.Fatalf("got %v", err)
	}
	if _, err := sess.ChangePIN(ctx, "1234", "5678"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Login(ctx, "1234567890", "5678"); err != nil {
		t.Fatalf("login with new PIN: %v", err)
	}
}

func TestLoginOutageIsNotRejection(t *testing.T) {
	cases := []struct {
		status   int
		body     string
		rejected bool
	}{
		{http.StatusInternalServerError, `{"message":"database unavailable"}`, false},
		{http.StatusNotFound, `{"message":"Not found"}`, false},
		{http.StatusBadGateway, `<html>bad gateway</html>`, false},
		{http.StatusForbidden, `{"success":false,"message":"Account locked"}`, true},
		{http.StatusOK, `{"success":false,"message":"Account locked"}`, true},
	}
	for _, tc := range cases {
		sess, store, srv := newSession(t)
		srv.FailNext("login", tc.status, tc.body)

		err := sess.Login(context.Background(), "1234567890", "1234")
		if got := errors.Is(err, ErrLoginRejected); got != tc.rejected {
			t.Errorf("status %d: rejected=%v want=%v (err=%v)", tc.status, got, tc.rejected, err)
		}
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) && !tc.rejected {
			t.Errorf("status %d: want *client.APIError, got %v", tc.status, err)
		}
		if store.Valid() {
			t.Errorf("status %d: failed login left credentials", tc.status)
		}
	}
}
