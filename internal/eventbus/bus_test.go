package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestDispatcher_RoutesToRegisteredHandler(t *testing.T) {
	d := NewDispatcher(testLogger())

	var gotBody []byte
	d.Register("hr.employee.created", func(ctx context.Context, body []byte) error {
		gotBody = body
		return nil
	})
	d.Register("hr.employee.exited", func(ctx context.Context, body []byte) error {
		t.Error("別キーのハンドラが呼ばれた")
		return nil
	})

	err := d.Dispatch(context.Background(), "hr.employee.created", []byte(`{"employeeId":"e-1"}`))
	if err != nil {
		t.Fatalf("Dispatchがエラーを返した: %v", err)
	}
	if string(gotBody) != `{"employeeId":"e-1"}` {
		t.Errorf("ボディが渡っていない: %s", gotBody)
	}
}

func TestDispatcher_UnknownKeyIsDiscardedWithoutError(t *testing.T) {
	d := NewDispatcher(testLogger())
	// 未登録キーはエラーにしない。nackで再配送ループに入れないため。
	if err := d.Dispatch(context.Background(), "unknown.key", nil); err != nil {
		t.Errorf("未登録キーでエラーが返った: %v", err)
	}
}

func TestDispatcher_PropagatesHandlerError(t *testing.T) {
	d := NewDispatcher(testLogger())
	wantErr := errors.New("処理失敗")
	d.Register("hr.employee.created", func(ctx context.Context, body []byte) error {
		return wantErr
	})

	if err := d.Dispatch(context.Background(), "hr.employee.created", nil); !errors.Is(err, wantErr) {
		t.Errorf("ハンドラのエラーが伝搬していない: %v", err)
	}
}

func TestInMemoryBus_DeliversToAttachedDispatchers(t *testing.T) {
	bus := NewInMemoryBus()

	var calls int
	d1 := NewDispatcher(testLogger())
	d1.Register("auth.user.provisioned", func(ctx context.Context, body []byte) error {
		calls++
		return nil
	})
	d2 := NewDispatcher(testLogger())
	d2.Register("auth.user.provisioned", func(ctx context.Context, body []byte) error {
		calls++
		return nil
	})
	bus.Attach(d1)
	bus.Attach(d2)

	err := bus.Publish(context.Background(), "auth.user.provisioned", map[string]string{"userId": "u-1"})
	if err != nil {
		t.Fatalf("Publishがエラーを返した: %v", err)
	}
	if calls != 2 {
		t.Errorf("配送回数 = %d, want 2", calls)
	}
	if got := bus.PublishedWithKey("auth.user.provisioned"); len(got) != 1 {
		t.Errorf("発行記録 = %d 件, want 1", len(got))
	}
}

func TestInMemoryBus_RecordsFailedDeliveries(t *testing.T) {
	bus := NewInMemoryBus()
	d := NewDispatcher(testLogger())
	d.Register("hr.employee.created", func(ctx context.Context, body []byte) error {
		return errors.New("処理失敗")
	})
	bus.Attach(d)

	if err := bus.Publish(context.Background(), "hr.employee.created", struct{}{}); err != nil {
		t.Fatalf("Publish自体は成功するはず: %v", err)
	}
	if got := bus.FailedDeliveries(); len(got) != 1 {
		t.Errorf("失敗記録 = %d 件, want 1", len(got))
	}
}
