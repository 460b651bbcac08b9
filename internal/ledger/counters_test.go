package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bassam-ai/bassam/internal/db"
)

type mockKV struct {
	data    map[string]int64
	expires map[string]time.Duration
	getErr  error
}

func newMockKV() *mockKV {
	return &mockKV{data: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return []byte(fmt.Sprint(v)), nil
}

func (m *mockKV) IncrBy(_ context.Context, key string, val int64) error {
	m.data[key] += val
	return nil
}

func (m *mockKV) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	if _, ok := m.expires[key]; ok && nx {
		return nil
	}
	m.expires[key] = ttl
	return nil
}

func TestKey_String(t *testing.T) {
	day := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	if got := dailyKey(day, "gemini", "requests").String(); got != "bassam:ledger:daily:2026-05-02:gemini:requests" {
		t.Errorf("daily key = %q", got)
	}
	if got := monthlyKey(day, "bandwidth_bytes").String(); got != "bassam:ledger:monthly:2026-05:bandwidth_bytes" {
		t.Errorf("monthly key = %q", got)
	}
}

func TestKVCounters_TTLByScope(t *testing.T) {
	kv := newMockKV()
	c := NewKVCounters(kv, 48*time.Hour, 62*24*time.Hour)
	now := time.Now().UTC()

	d := dailyKey(now, "gemini", "requests")
	m := monthlyKey(now, "build_ms")
	if err := c.IncrBy(context.Background(), d, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.IncrBy(context.Background(), m, 5); err != nil {
		t.Fatal(err)
	}

	if kv.expires[d.String()] != 48*time.Hour {
		t.Errorf("daily ttl = %v", kv.expires[d.String()])
	}
	if kv.expires[m.String()] != 62*24*time.Hour {
		t.Errorf("monthly ttl = %v", kv.expires[m.String()])
	}

	v, err := c.Get(context.Background(), d)
	if err != nil || v != 2 {
		t.Errorf("Get = %d, %v", v, err)
	}
}

func TestKVCounters_MissingIsZero(t *testing.T) {
	c := NewKVCounters(newMockKV(), time.Hour, time.Hour)
	v, err := c.Get(context.Background(), dailyKey(time.Now(), "x", "requests"))
	if err != nil || v != 0 {
		t.Fatalf("expected 0,nil got %d,%v", v, err)
	}
}

func TestKVCounters_GetError(t *testing.T) {
	kv := newMockKV()
	kv.getErr = errors.New("conn reset")
	c := NewKVCounters(kv, time.Hour, time.Hour)
	if _, err := c.Get(context.Background(), dailyKey(time.Now(), "x", "requests")); err == nil {
		t.Fatal("expected error")
	}
}

func TestFileCounters_Layout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	fc, err := OpenFileCounters(path)
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2026, 7, 9, 0, 0, 0, 0, time.UTC)
	if err := fc.IncrBy(context.Background(), dailyKey(day, "gemini", "requests"), 3); err != nil {
		t.Fatal(err)
	}
	if err := fc.IncrBy(context.Background(), monthlyKey(day, "bandwidth_bytes"), 512); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc fileData
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Daily["2026-07-09"]["gemini:requests"] != 3 {
		t.Errorf("daily section = %v", doc.Daily)
	}
	if doc.Monthly["2026-07"]["bandwidth_bytes"] != 512 {
		t.Errorf("monthly section = %v", doc.Monthly)
	}
}

func TestFileCounters_PrunesOldDays(t *testing.T) {
	fc, err := OpenFileCounters(filepath.Join(t.TempDir(), "c.json"))
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range maxDailyPeriods + 5 {
		if err := fc.IncrBy(context.Background(), dailyKey(start.AddDate(0, 0, i), "p", "requests"), 1); err != nil {
			t.Fatal(err)
		}
	}
	if len(fc.data.Daily) != maxDailyPeriods {
		t.Errorf("kept %d days, want %d", len(fc.data.Daily), maxDailyPeriods)
	}
	if _, ok := fc.data.Daily["2026-01-01"]; ok {
		t.Error("oldest day should be pruned")
	}
}

func TestOpenFileCounters_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := OpenFileCounters(path)
	if err == nil || !strings.Contains(err.Error(), "decode counters") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
