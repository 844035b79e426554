package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

const deleteSessionsPattern = `DELETE FROM auth_sessions`

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// findLogField はJSONログの各行から指定キーの値を探す。
func findLogField(buf *bytes.Buffer, key string) (any, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewCleanupJob_RetentionDays(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"指定値を使用", 7, 7},
		{"0はデフォルト", 0, DefaultRetentionDays},
		{"負数はデフォルト", -3, DefaultRetentionDays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _ := newMockDB(t)
			job := NewCleanupJob(db, nil, tt.in)
			if job.RetentionDays != tt.want {
				t.Errorf("RetentionDays = %d, want %d", job.RetentionDays, tt.want)
			}
		})
	}
}

func TestCleanupJob_Run_DeletesExpiredSessions(t *testing.T) {
	var buf bytes.Buffer
	db, mock := newMockDB(t)

	mock.ExpectExec(deleteSessionsPattern).
		WithArgs("30 days").
		WillReturnResult(sqlmock.NewResult(0, 42))

	job := NewCleanupJob(db, newTestLogger(&buf), 30)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
	if count, ok := findLogField(&buf, "deleted_count"); !ok || count != float64(42) {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if days, ok := findLogField(&buf, "retention_days"); !ok || days != float64(30) {
		t.Errorf("ログに retention_days=30 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_QueryCoversExpiredAndRevoked(t *testing.T) {
	var gotQuery string
	exec := &recordingExecutor{
		execFn: func(query string, args []any) (sql.Result, error) {
			gotQuery = query
			return sqlmock.NewResult(0, 0), nil
		},
	}

	job := NewCleanupJob(exec, newTestLogger(&bytes.Buffer{}), 14)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	for _, want := range []string{"expires_at", "revoked_at", "$1::interval"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("クエリに %q が含まれていない: %s", want, gotQuery)
		}
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	db, mock := newMockDB(t)

	mock.ExpectExec(deleteSessionsPattern).
		WithArgs("30 days").
		WillReturnError(sql.ErrConnDone)

	job := NewCleanupJob(db, newTestLogger(&buf), 30)
	err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("err = %v, want wrapped sql.ErrConnDone", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnRowsAffectedFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(deleteSessionsPattern).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver does not support RowsAffected")))

	job := NewCleanupJob(db, newTestLogger(&bytes.Buffer{}), 30)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("RowsAffectedの失敗時に Run() はエラーを返すべき")
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	db, mock := newMockDB(t)

	mock.ExpectExec(deleteSessionsPattern).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(deleteSessionsPattern).WillReturnResult(sqlmock.NewResult(0, 0))

	job := NewCleanupJob(db, newTestLogger(&buf), 30)
	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}

	if count, ok := findLogField(&buf, "deleted_count"); !ok || count != float64(0) {
		t.Errorf("0件削除時にもログに deleted_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	ran := make(chan struct{}, 1)
	exec := &recordingExecutor{
		execFn: func(query string, args []any) (sql.Result, error) {
			select {
			case ran <- struct{}{}:
			default:
			}
			return sqlmock.NewResult(0, 0), nil
		},
	}
	job := NewCleanupJob(exec, newTestLogger(&bytes.Buffer{}), 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("Start は起動直後に Run を実行するべき")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start はコンテキストのキャンセルで終了するべき")
	}
}

// recordingExecutor はクエリを記録するExecutorのモック実装。
type recordingExecutor struct {
	execFn func(query string, args []any) (sql.Result, error)
}

func (e *recordingExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	return e.execFn(query, args)
}
