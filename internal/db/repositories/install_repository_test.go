package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/fairpm/fair-go/internal/apperr"
	"github.com/fairpm/fair-go/internal/installer"
	"github.com/fairpm/fair-go/internal/registry"
)

var installCols = []string{
	"id", "did", "kind", "version", "destination", "final_state",
	"error_kind", "error", "started_at", "finished_at",
}

func newInstallRepo(t *testing.T) (*InstallRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewInstallRepository(db), mock
}

// ---------------------------------------------------------------------------
// RecordInstall
// ---------------------------------------------------------------------------

func TestRecordInstall_Success(t *testing.T) {
	repo, mock := newInstallRepo(t)
	mock.ExpectExec("INSERT INTO installs").
		WithArgs("run-1", "did:plc:abc", "plugin", "1.2.0", "/srv/plugins/hello-abc123",
			"installed", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := &installer.Result{
		RunID:       "run-1",
		DID:         "did:plc:abc",
		Kind:        registry.KindPlugin,
		Version:     "1.2.0",
		Destination: "/srv/plugins/hello-abc123",
		States:      []installer.State{installer.StateInit, installer.StateInstalled},
	}
	if err := repo.RecordInstall(context.Background(), res, time.Now(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordInstall_Failure(t *testing.T) {
	repo, mock := newInstallRepo(t)
	installErr := fmt.Errorf("%w: bad signature", apperr.ErrSignatureInvalid)
	mock.ExpectExec("INSERT INTO installs").
		WithArgs("run-2", "did:plc:abc", "", "", "", "failed",
			"signature_invalid", installErr.Error(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := &installer.Result{
		RunID:  "run-2",
		DID:    "did:plc:abc",
		States: []installer.State{installer.StateInit, installer.StateFailed},
	}
	if err := repo.RecordInstall(context.Background(), res, time.Now(), installErr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordInstall_DBError(t *testing.T) {
	repo, mock := newInstallRepo(t)
	mock.ExpectExec("INSERT INTO installs").
		WillReturnError(errors.New("db error"))

	res := &installer.Result{RunID: "run-3", DID: "did:plc:abc"}
	if err := repo.RecordInstall(context.Background(), res, time.Now(), nil); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestListInstalls_Success(t *testing.T) {
	repo, mock := newInstallRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM installs").
		WithArgs("", DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(installCols).
			AddRow("run-1", "did:plc:abc", "plugin", "1.2.0", "/srv/plugins/hello", "installed", "", "", now, now))

	rows, err := repo.List(context.Background(), "", 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || !rows[0].Succeeded() {
		t.Errorf("rows = %+v", rows)
	}
}
